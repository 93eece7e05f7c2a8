package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fiscalstream/emissor/internal/authority"
	"github.com/fiscalstream/emissor/internal/document"
	"github.com/fiscalstream/emissor/internal/lifecycle"
	"github.com/fiscalstream/emissor/internal/store"
)

// Reconciler applies authority status reports to the store. It is the single
// write path for channel-driven status changes; neither the webhook receiver
// nor the poller ever writes status directly.
type Reconciler struct {
	store *store.Store
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(s *store.Store) *Reconciler {
	return &Reconciler{store: s}
}

// Apply runs one status report through the state machine and persists the
// decision. Returns the lifecycle outcome so callers can report
// processed/ignored to the delivering channel.
//
// The persistence step is a conditional update predicated on the status the
// report was evaluated against. If another channel transitioned the document
// in between, the write matches zero rows and the report is dropped: both
// channels evaluated the same pure function, so the stored outcome is the
// same either way.
func (r *Reconciler) Apply(ctx context.Context, doc document.FiscalDocument, upd lifecycle.Update) (lifecycle.Outcome, error) {
	res := lifecycle.Apply(doc.Status, upd)

	switch res.Outcome {
	case lifecycle.OutcomeIgnored:
		// Never coerced to success or failure - logged for operators.
		slog.Warn("unmapped authority status ignored",
			"document_id", doc.ID,
			"authority_id", doc.AuthorityID,
			"raw_status", upd.RawStatus,
		)
		return res.Outcome, nil

	case lifecycle.OutcomeNoop:
		slog.Debug("duplicate status report",
			"document_id", doc.ID,
			"status", doc.Status,
			"raw_status", upd.RawStatus,
		)
		return res.Outcome, nil

	case lifecycle.OutcomeTransition:
		ok, err := r.store.Transition(ctx, doc.ID, doc.Status, res.Next, res.Fields)
		if err != nil {
			return res.Outcome, fmt.Errorf("persist transition for %s: %w", doc.ID, err)
		}
		if !ok {
			slog.Debug("transition lost race, other channel converged first",
				"document_id", doc.ID,
				"from", doc.Status,
				"to", res.Next,
			)
			return lifecycle.OutcomeNoop, nil
		}
		slog.Info("document transitioned",
			"document_id", doc.ID,
			"authority_id", doc.AuthorityID,
			"from", doc.Status,
			"to", res.Next,
		)
		return res.Outcome, nil
	}

	return res.Outcome, fmt.Errorf("unknown lifecycle outcome %d", res.Outcome)
}

// UpdateFromStatus normalizes a status endpoint response into the state
// machine's input shape. Shared by the poller and the operator-initiated
// refresh so both produce identical updates for identical responses.
func UpdateFromStatus(st authority.StatusResponse) lifecycle.Update {
	return lifecycle.Update{
		RawStatus:        st.Status,
		DocumentNumber:   st.DocumentNumber,
		Series:           st.Series,
		AccessKey:        st.AccessKey,
		VerificationCode: st.VerificationCode,
		PDFURL:           st.PDFURL,
		XMLURL:           st.XMLURL,
		Reason:           st.Reason,
	}
}
