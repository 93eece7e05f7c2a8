package builder

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalstream/emissor/internal/document"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func validOrder() Order {
	return Order{
		OrderID: "ord-0001",
		Items: []LineItem{
			{Code: "SKU-1", Description: "Cafè em grão", Quantity: 2, UnitCents: 1250},
		},
		PaymentCode: "01",
		Customer:    &Party{Name: "José da Silva", TaxID: "123.456.789-09"},
	}
}

func validServiceOrder() ServiceOrder {
	return ServiceOrder{
		OrderID:            "svc-0042",
		Description:        "Manutenção preventiva de elevadores",
		ServiceCode:        "14.01",
		ISSRateBasisPoints: 250,
		AmountCents:        180000,
		Payer: Party{
			Name:  "Condomínio Edifício Aurora",
			TaxID: "12.345.678/0001-95",
			Address: &Address{
				Street:     "Avenida Paulista",
				Number:     "1578",
				District:   "Bela Vista",
				CityCode:   "3550308",
				State:      "SP",
				PostalCode: "01310-200",
			},
		},
	}
}

func TestBuildPointOfSale_Golden(t *testing.T) {
	payload, err := BuildPointOfSale(validOrder())
	require.NoError(t, err)
	newGoldie(t).Assert(t, "pos_invoice", payload)
}

func TestBuildPointOfSale_AnonymousConsumer_Golden(t *testing.T) {
	o := validOrder()
	o.Customer = nil
	payload, err := BuildPointOfSale(o)
	require.NoError(t, err)
	newGoldie(t).Assert(t, "pos_invoice_anonymous", payload)
}

func TestBuildService_Golden(t *testing.T) {
	payload, err := BuildService(validServiceOrder())
	require.NoError(t, err)
	newGoldie(t).Assert(t, "service_invoice", payload)
}

func TestBuildPointOfSale_CollectsAllProblems(t *testing.T) {
	o := Order{
		Items: []LineItem{{Quantity: 0, UnitCents: -1}},
	}
	_, err := BuildPointOfSale(o)
	require.Error(t, err)

	var ve *document.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, document.TypePointOfSale, ve.DocumentType)
	// order id, payment code, item description, quantity, unit amount
	assert.Len(t, ve.Fields, 5)
}

func TestBuildPointOfSale_ImplausibleTaxID(t *testing.T) {
	o := validOrder()
	o.Customer.TaxID = "1234"
	_, err := BuildPointOfSale(o)
	require.True(t, document.IsValidation(err))
}

func TestBuildService_MissingAddress(t *testing.T) {
	o := validServiceOrder()
	o.Payer.Address = nil

	_, err := BuildService(o)
	require.Error(t, err)

	var ve *document.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields[0], "postal address is required")
}

func TestBuildService_RegisteredEntitySkipsAddress(t *testing.T) {
	o := validServiceOrder()
	o.Payer.Address = nil
	o.Payer.CompanyRegistration = "CCM-8.765.432-1"

	_, err := BuildService(o)
	assert.NoError(t, err, "registered legal entity must not require an address")
}

func TestBuildService_PartialAddressListsEveryGap(t *testing.T) {
	o := validServiceOrder()
	o.Payer.Address = &Address{Street: "Avenida Paulista"}

	_, err := BuildService(o)
	var ve *document.ValidationError
	require.ErrorAs(t, err, &ve)
	// number, district, city code, state, postal code
	assert.Len(t, ve.Fields, 5)
}

func TestBuild_Dispatch(t *testing.T) {
	o := validOrder()
	payload, err := Build(document.TypePointOfSale, &o, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, payload)

	_, err = Build(document.TypeService, &o, nil)
	assert.True(t, document.IsValidation(err), "missing service data must fail validation")

	_, err = Build(document.Type("unknown"), nil, nil)
	assert.True(t, document.IsValidation(err))
}

func TestBuild_IsDeterministic(t *testing.T) {
	a, err := BuildService(validServiceOrder())
	require.NoError(t, err)
	b, err := BuildService(validServiceOrder())
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical input must serialize identically for payload diffing")
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "0.00", formatCents(0))
	assert.Equal(t, "0.05", formatCents(5))
	assert.Equal(t, "12.50", formatCents(1250))
	assert.Equal(t, "1800.00", formatCents(180000))
}
