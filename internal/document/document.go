package document

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the fiscal document kind. It is immutable after creation;
// a correction re-submits the same type on the same record.
type Type string

const (
	// TypePointOfSale is a consumer sale invoice (flat line items, single
	// payment method, optionally anonymous consumer).
	TypePointOfSale Type = "pos_invoice"
	// TypeService is a municipal service invoice (single service line,
	// service classification code, mandatory payer identity).
	TypeService Type = "service_invoice"
)

// Valid reports whether t is a known document type.
func (t Type) Valid() bool {
	return t == TypePointOfSale || t == TypeService
}

// Environment selects the authority endpoint and credential set used for
// every operation on a document. Immutable after creation.
type Environment string

const (
	EnvProduction   Environment = "production"
	EnvHomologation Environment = "homologation"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	return e == EnvProduction || e == EnvHomologation
}

// Status is one of the five canonical lifecycle states.
//
// Transitions: draft → processing → {authorized | error}; authorized → cancelled.
// error leaves only via an explicit resubmission; authorized and cancelled are
// absorbing apart from the justified authorized → cancelled transition.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusProcessing Status = "processing"
	StatusAuthorized Status = "authorized"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether s admits no further automatic transition.
func (s Status) Terminal() bool {
	return s == StatusAuthorized || s == StatusCancelled
}

// FiscalDocument is one submission attempt for a commercial transaction.
// The row is mutated in place as the authority resolves it; a correction
// reuses the same ID for a fresh attempt.
//
// INVARIANTS (checked by store tests after every transition):
//   - AuthorityID set implies Status != draft. The converse does not hold: a
//     synchronous rejection yields the error state with no AuthorityID.
//   - ErrorMessage is present if and only if Status == error.
//   - authorized and cancelled accept no updates except authorized → cancelled.
type FiscalDocument struct {
	ID          string
	Type        Type
	Environment Environment
	Status      Status

	// AuthorityID is assigned by the authority on first successful submission.
	// A synchronous rejection never assigns one. Cleared on resubmission.
	AuthorityID string

	// Populated only on authorization.
	DocumentNumber   string
	Series           string
	AccessKey        string
	VerificationCode string

	// Payload is the exact JSON artifact sent to the authority, kept verbatim
	// for audit and resubmission diffing.
	Payload []byte

	// ErrorMessage holds the authority's rejection reason. Present only in
	// the error state; cleared before any new attempt.
	ErrorMessage string

	// Rendered-artifact references, populated in authorized/cancelled.
	PDFURL string
	XMLURL string

	// LinkedOrderID points back to the commercial transaction. A transaction
	// may accumulate attempts, but at most one non-error, non-cancelled
	// document is active for it at a time.
	LinkedOrderID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewID returns a time-sortable identifier for a new document.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
