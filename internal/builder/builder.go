// Package builder converts commercial transactions into authority submission
// payloads. Building is a pure function of the input: no I/O, no clock, no
// randomness. The produced payload is serialized once and stored verbatim on
// the document for audit and resubmission diffing.
package builder

import (
	"encoding/json"
	"fmt"

	"github.com/fiscalstream/emissor/internal/document"
)

const schemaVersion = "1.2"

// Address is a postal address as the authority expects it. All fields are
// required for a service invoice payer that is not a registered legal entity.
type Address struct {
	Street     string `yaml:"street"`
	Number     string `yaml:"number"`
	District   string `yaml:"district"`
	CityCode   string `yaml:"city_code"`
	State      string `yaml:"state"`
	PostalCode string `yaml:"postal_code"`
}

// Party identifies a customer or payer. TaxID is a CPF or CNPJ; punctuation
// is stripped before validation. CompanyRegistration marks a registered legal
// entity, which relaxes the address requirement for service invoices.
type Party struct {
	Name                string   `yaml:"name"`
	TaxID               string   `yaml:"tax_id"`
	CompanyRegistration string   `yaml:"company_registration"`
	Address             *Address `yaml:"address"`
}

// LineItem is one priced line of a point-of-sale invoice. Amounts are integer
// cents; the builder formats them to the authority's decimal wire format.
type LineItem struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Quantity    int64  `yaml:"quantity"`
	UnitCents   int64  `yaml:"unit_cents"`
}

// TotalCents returns the line total.
func (li LineItem) TotalCents() int64 {
	return li.Quantity * li.UnitCents
}

// Order is the input for a point-of-sale invoice. Customer may be nil for an
// anonymous consumer sale.
type Order struct {
	OrderID     string     `yaml:"order_id"`
	Items       []LineItem `yaml:"items"`
	PaymentCode string     `yaml:"payment_code"`
	Customer    *Party     `yaml:"customer"`
}

// ServiceOrder is the input for a service invoice. The payer is mandatory.
type ServiceOrder struct {
	OrderID string `yaml:"order_id"`
	// Description is the service discrimination text.
	Description string `yaml:"description"`
	// ServiceCode is the municipal service-classification code.
	ServiceCode string `yaml:"service_code"`
	// ISSRateBasisPoints is the applicable service-tax rate in basis points
	// (250 = 2.50%).
	ISSRateBasisPoints int64 `yaml:"iss_rate_basis_points"`
	AmountCents        int64 `yaml:"amount_cents"`
	Payer              Party `yaml:"payer"`
}

// posPayload is the point-of-sale submission schema.
type posPayload struct {
	SchemaVersion string       `json:"schema_version"`
	Reference     string       `json:"referencia"`
	Items         []posItem    `json:"itens"`
	PaymentCode   string       `json:"forma_pagamento"`
	TotalAmount   string       `json:"valor_total"`
	Customer      *posCustomer `json:"cliente,omitempty"`
}

type posItem struct {
	Code        string `json:"codigo"`
	Description string `json:"descricao"`
	Quantity    int64  `json:"quantidade"`
	UnitAmount  string `json:"valor_unitario"`
	TotalAmount string `json:"valor_total"`
}

type posCustomer struct {
	Name  string `json:"nome,omitempty"`
	TaxID string `json:"cpf_cnpj,omitempty"`
}

// servicePayload is the service invoice submission schema.
type servicePayload struct {
	SchemaVersion string       `json:"schema_version"`
	Reference     string       `json:"referencia"`
	Service       serviceLine  `json:"servico"`
	Payer         servicePayer `json:"tomador"`
}

type serviceLine struct {
	Description string `json:"discriminacao"`
	ServiceCode string `json:"codigo_municipal"`
	ISSRate     string `json:"aliquota_iss"`
	Amount      string `json:"valor"`
}

type servicePayer struct {
	Name                string          `json:"nome"`
	TaxID               string          `json:"cpf_cnpj"`
	CompanyRegistration string          `json:"inscricao_municipal,omitempty"`
	Address             *serviceAddress `json:"endereco,omitempty"`
}

type serviceAddress struct {
	Street     string `json:"logradouro"`
	Number     string `json:"numero"`
	District   string `json:"bairro"`
	CityCode   string `json:"codigo_municipio"`
	State      string `json:"uf"`
	PostalCode string `json:"cep"`
}

// BuildPointOfSale validates an order and produces the submission payload.
// Validation collects every problem before returning so the operator can fix
// the whole batch at once.
func BuildPointOfSale(o Order) ([]byte, error) {
	var missing []string

	if o.OrderID == "" {
		missing = append(missing, "order id is required")
	}
	if len(o.Items) == 0 {
		missing = append(missing, "at least one line item is required")
	}
	if o.PaymentCode == "" {
		missing = append(missing, "payment method code is required")
	}

	var total int64
	items := make([]posItem, 0, len(o.Items))
	for i, li := range o.Items {
		if li.Description == "" {
			missing = append(missing, fmt.Sprintf("item %d: description is required", i+1))
		}
		if li.Quantity <= 0 {
			missing = append(missing, fmt.Sprintf("item %d: quantity must be positive", i+1))
		}
		if li.UnitCents < 0 {
			missing = append(missing, fmt.Sprintf("item %d: unit amount must not be negative", i+1))
		}
		total += li.TotalCents()
		items = append(items, posItem{
			Code:        sanitizeText(li.Code),
			Description: sanitizeText(li.Description),
			Quantity:    li.Quantity,
			UnitAmount:  formatCents(li.UnitCents),
			TotalAmount: formatCents(li.TotalCents()),
		})
	}

	// Anonymous consumers are permitted, but a given tax ID must at least
	// look like a CPF or CNPJ.
	var customer *posCustomer
	if o.Customer != nil {
		taxID := digitsOnly(o.Customer.TaxID)
		if o.Customer.TaxID != "" && !plausibleTaxID(taxID) {
			missing = append(missing, "customer: tax id must have 11 (CPF) or 14 (CNPJ) digits")
		}
		customer = &posCustomer{
			Name:  sanitizeText(o.Customer.Name),
			TaxID: taxID,
		}
	}

	if len(missing) > 0 {
		return nil, &document.ValidationError{DocumentType: document.TypePointOfSale, Fields: missing}
	}

	return marshalPayload(posPayload{
		SchemaVersion: schemaVersion,
		Reference:     o.OrderID,
		Items:         items,
		PaymentCode:   o.PaymentCode,
		TotalAmount:   formatCents(total),
		Customer:      customer,
	})
}

// BuildService validates a service order and produces the submission payload.
// The payer identity is mandatory; a full postal address is required unless
// the payer is a registered legal entity.
func BuildService(o ServiceOrder) ([]byte, error) {
	var missing []string

	if o.OrderID == "" {
		missing = append(missing, "order id is required")
	}
	if o.Description == "" {
		missing = append(missing, "service description is required")
	}
	if o.ServiceCode == "" {
		missing = append(missing, "municipal service code is required")
	}
	if o.ISSRateBasisPoints < 0 {
		missing = append(missing, "service tax rate must not be negative")
	}
	if o.AmountCents <= 0 {
		missing = append(missing, "service amount must be positive")
	}

	if o.Payer.Name == "" {
		missing = append(missing, "payer: name is required")
	}
	taxID := digitsOnly(o.Payer.TaxID)
	if !plausibleTaxID(taxID) {
		missing = append(missing, "payer: tax id must have 11 (CPF) or 14 (CNPJ) digits")
	}

	var addr *serviceAddress
	switch {
	case o.Payer.Address != nil:
		missing = append(missing, missingAddressFields(*o.Payer.Address)...)
		addr = &serviceAddress{
			Street:     sanitizeText(o.Payer.Address.Street),
			Number:     o.Payer.Address.Number,
			District:   sanitizeText(o.Payer.Address.District),
			CityCode:   o.Payer.Address.CityCode,
			State:      o.Payer.Address.State,
			PostalCode: digitsOnly(o.Payer.Address.PostalCode),
		}
	case o.Payer.CompanyRegistration == "":
		missing = append(missing, "payer: postal address is required unless the payer is a registered legal entity")
	}

	if len(missing) > 0 {
		return nil, &document.ValidationError{DocumentType: document.TypeService, Fields: missing}
	}

	return marshalPayload(servicePayload{
		SchemaVersion: schemaVersion,
		Reference:     o.OrderID,
		Service: serviceLine{
			Description: sanitizeText(o.Description),
			ServiceCode: o.ServiceCode,
			ISSRate:     formatBasisPoints(o.ISSRateBasisPoints),
			Amount:      formatCents(o.AmountCents),
		},
		Payer: servicePayer{
			Name:                sanitizeText(o.Payer.Name),
			TaxID:               taxID,
			CompanyRegistration: o.Payer.CompanyRegistration,
			Address:             addr,
		},
	})
}

// Build dispatches on document type for callers that hold a generic order
// pair. Exactly one of the inputs must be non-nil for its type.
func Build(t document.Type, pos *Order, svc *ServiceOrder) ([]byte, error) {
	switch t {
	case document.TypePointOfSale:
		if pos == nil {
			return nil, &document.ValidationError{DocumentType: t, Fields: []string{"point-of-sale order data is required"}}
		}
		return BuildPointOfSale(*pos)
	case document.TypeService:
		if svc == nil {
			return nil, &document.ValidationError{DocumentType: t, Fields: []string{"service order data is required"}}
		}
		return BuildService(*svc)
	default:
		return nil, &document.ValidationError{DocumentType: t, Fields: []string{"unknown document type"}}
	}
}

func missingAddressFields(a Address) []string {
	var missing []string
	if a.Street == "" {
		missing = append(missing, "payer address: street is required")
	}
	if a.Number == "" {
		missing = append(missing, "payer address: number is required")
	}
	if a.District == "" {
		missing = append(missing, "payer address: district is required")
	}
	if a.CityCode == "" {
		missing = append(missing, "payer address: city code is required")
	}
	if a.State == "" {
		missing = append(missing, "payer address: state is required")
	}
	if digitsOnly(a.PostalCode) == "" {
		missing = append(missing, "payer address: postal code is required")
	}
	return missing
}

// marshalPayload serializes with stable field order (struct order) so stored
// payloads diff cleanly between attempts.
func marshalPayload(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b, nil
}

// formatCents renders integer cents in the authority's decimal wire format.
func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// formatBasisPoints renders a basis-point rate as a percentage string
// (250 → "2.50").
func formatBasisPoints(bp int64) string {
	return fmt.Sprintf("%d.%02d", bp/100, bp%100)
}

func plausibleTaxID(digits string) bool {
	return len(digits) == 11 || len(digits) == 14
}
