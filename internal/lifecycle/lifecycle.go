package lifecycle

import (
	"fmt"

	"github.com/fiscalstream/emissor/internal/document"
)

// vocabulary maps every known authority status string to a canonical state.
// The table must stay exhaustive over the authority's documented vocabulary;
// validateVocabulary panics at init time if an entry maps outside the four
// reachable canonical states.
var vocabulary = map[string]document.Status{
	"processando":             document.StatusProcessing,
	"processando_autorizacao": document.StatusProcessing,
	"em_processamento":        document.StatusProcessing,
	"autorizado":              document.StatusAuthorized,
	"concluido":               document.StatusAuthorized,
	"erro":                    document.StatusError,
	"erro_autorizacao":        document.StatusError,
	"negado":                  document.StatusError,
	"denegado":                document.StatusError,
	"cancelado":               document.StatusCancelled,
	"cancelamento_homologado": document.StatusCancelled,
}

func init() {
	if err := validateVocabulary(); err != nil {
		panic(err)
	}
}

// validateVocabulary checks that every table entry maps to a state reachable
// from an authority report. draft is local-only and must never appear.
func validateVocabulary() error {
	for raw, st := range vocabulary {
		switch st {
		case document.StatusProcessing, document.StatusAuthorized,
			document.StatusError, document.StatusCancelled:
		default:
			return fmt.Errorf("vocabulary entry %q maps to unreachable state %q", raw, st)
		}
	}
	return nil
}

// Canonical resolves an authority status string to a canonical state.
// Returns ok=false for unknown vocabulary; the caller must treat that as a
// loggable no-op, never as success or failure.
func Canonical(raw string) (document.Status, bool) {
	st, ok := vocabulary[raw]
	return st, ok
}

// KnownStatuses returns the authority vocabulary covered by the table.
// Used by tests to assert exhaustiveness.
func KnownStatuses() []string {
	out := make([]string, 0, len(vocabulary))
	for raw := range vocabulary {
		out = append(out, raw)
	}
	return out
}

// Update is one status report from the authority, already normalized out of
// whichever wire shape (webhook body or status response) it arrived in.
type Update struct {
	// RawStatus is the authority's status string, untranslated.
	RawStatus string

	// Identifiers and artifact references, present only when the authority
	// has resolved the document.
	DocumentNumber   string
	Series           string
	AccessKey        string
	VerificationCode string
	PDFURL           string
	XMLURL           string

	// Reason carries the rejection detail for error statuses.
	Reason string
}

// Outcome classifies what Apply decided.
type Outcome int

const (
	// OutcomeTransition means the document moves to a new state.
	OutcomeTransition Outcome = iota + 1
	// OutcomeNoop means the update is valid but changes nothing (duplicate
	// delivery, or a report the current state already reflects).
	OutcomeNoop
	// OutcomeIgnored means the authority status string is not in the
	// vocabulary table. The record retains its state; log for operators.
	OutcomeIgnored
)

// FieldUpdates is the set of stored fields a transition writes alongside the
// new status. Empty strings mean "leave the column as is"; ClearError is
// explicit because the error message must be removed on recovery paths.
type FieldUpdates struct {
	DocumentNumber   string
	Series           string
	AccessKey        string
	VerificationCode string
	PDFURL           string
	XMLURL           string
	ErrorMessage     string
	ClearError       bool
}

// Result is the decision returned by Apply.
type Result struct {
	Outcome Outcome
	// Next is the state to persist. Meaningful only for OutcomeTransition.
	Next document.Status
	// Fields are the column updates to persist with the transition.
	Fields FieldUpdates
}

// Apply is the single transition function for both reconciliation channels.
//
// Pure: identical inputs produce identical results, so a webhook delivery
// and a poll response carrying the same report are interchangeable.
func Apply(current document.Status, upd Update) Result {
	incoming, ok := Canonical(upd.RawStatus)
	if !ok {
		return Result{Outcome: OutcomeIgnored}
	}

	// Duplicate report of the current state: idempotent no-op. This is what
	// makes racing channels order-independent for terminal statuses.
	if incoming == current {
		return Result{Outcome: OutcomeNoop}
	}

	switch current {
	case document.StatusDraft:
		// A draft has no authority-side record yet; the only report that can
		// exist for it is the initial processing acknowledgment.
		if incoming == document.StatusProcessing {
			return Result{Outcome: OutcomeTransition, Next: document.StatusProcessing}
		}
		return Result{Outcome: OutcomeNoop}

	case document.StatusProcessing:
		switch incoming {
		case document.StatusAuthorized:
			return Result{
				Outcome: OutcomeTransition,
				Next:    document.StatusAuthorized,
				Fields: FieldUpdates{
					DocumentNumber:   upd.DocumentNumber,
					Series:           upd.Series,
					AccessKey:        upd.AccessKey,
					VerificationCode: upd.VerificationCode,
					PDFURL:           upd.PDFURL,
					XMLURL:           upd.XMLURL,
					ClearError:       true,
				},
			}
		case document.StatusError:
			return Result{
				Outcome: OutcomeTransition,
				Next:    document.StatusError,
				Fields:  FieldUpdates{ErrorMessage: errorDetail(upd)},
			}
		case document.StatusCancelled:
			// The authority can report a cancellation we did not initiate
			// (e.g. issued through another channel). Honor it.
			return Result{
				Outcome: OutcomeTransition,
				Next:    document.StatusCancelled,
				Fields:  FieldUpdates{PDFURL: upd.PDFURL, XMLURL: upd.XMLURL, ClearError: true},
			}
		}
		return Result{Outcome: OutcomeNoop}

	case document.StatusAuthorized:
		// Absorbing except the justified cancellation.
		if incoming == document.StatusCancelled {
			return Result{
				Outcome: OutcomeTransition,
				Next:    document.StatusCancelled,
				Fields:  FieldUpdates{PDFURL: upd.PDFURL, XMLURL: upd.XMLURL},
			}
		}
		return Result{Outcome: OutcomeNoop}

	case document.StatusError:
		// error leaves only via explicit resubmission, never via a channel
		// report. A late "processando" for a rejected attempt is stale.
		return Result{Outcome: OutcomeNoop}

	case document.StatusCancelled:
		// Absorbing.
		return Result{Outcome: OutcomeNoop}
	}

	return Result{Outcome: OutcomeNoop}
}

// errorDetail picks the rejection text to persist for an error transition.
func errorDetail(upd Update) string {
	if upd.Reason != "" {
		return upd.Reason
	}
	return "authority reported rejection without detail"
}
