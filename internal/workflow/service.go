package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fiscalstream/emissor/internal/authority"
	"github.com/fiscalstream/emissor/internal/builder"
	"github.com/fiscalstream/emissor/internal/document"
	"github.com/fiscalstream/emissor/internal/lifecycle"
	"github.com/fiscalstream/emissor/internal/reconcile"
	"github.com/fiscalstream/emissor/internal/store"
)

// DefaultMinJustification is the local pre-check threshold for cancellation
// justifications. The authority enforces its own minimum server-side; the
// local check just saves the round trip.
const DefaultMinJustification = 15

// AuthorityClient is the slice of the authority adapter the workflows use.
// Satisfied by *authority.Client; tests substitute a scripted double.
type AuthorityClient interface {
	Submit(ctx context.Context, payload []byte, t document.Type) (authority.SubmitAck, error)
	QueryStatus(ctx context.Context, authorityID string, t document.Type) (authority.StatusResponse, error)
	Cancel(ctx context.Context, authorityID string, t document.Type, justification string) error
	FetchArtifact(ctx context.Context, authorityID string, t document.Type, kind authority.ArtifactKind) (io.ReadCloser, error)
}

// Waker wakes the poller after a submission. Satisfied by *reconcile.Poller.
type Waker interface {
	Kick()
}

// Service executes operator commands against the store and authority.
type Service struct {
	store  *store.Store
	client AuthorityClient
	rec    *reconcile.Reconciler
	waker  Waker
	env    document.Environment

	minJustification int
}

// Option configures a Service.
type Option func(*Service)

// WithMinJustification overrides the local cancellation pre-check length.
func WithMinJustification(n int) Option {
	return func(s *Service) {
		s.minJustification = n
	}
}

// New creates a workflow service. waker may be nil when no poller is
// running (one-shot CLI commands).
func New(st *store.Store, client AuthorityClient, rec *reconcile.Reconciler, waker Waker, env document.Environment, opts ...Option) *Service {
	s := &Service{
		store:            st,
		client:           client,
		rec:              rec,
		waker:            waker,
		env:              env,
		minJustification: DefaultMinJustification,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitInput carries the commercial transaction for a new filing. Exactly
// one of POS/Service must be set, matching Type.
type SubmitInput struct {
	Type    document.Type
	POS     *builder.Order
	Service *builder.ServiceOrder
}

func (in SubmitInput) orderID() string {
	switch {
	case in.POS != nil:
		return in.POS.OrderID
	case in.Service != nil:
		return in.Service.OrderID
	default:
		return ""
	}
}

// Submit builds the payload, creates the document, and files it with the
// authority. Validation failures abort before any record or network call.
// A synchronous rejection persists the error state and is also returned.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (document.FiscalDocument, error) {
	payload, err := builder.Build(in.Type, in.POS, in.Service)
	if err != nil {
		return document.FiscalDocument{}, err
	}

	orderID := in.orderID()
	if active, found, err := s.store.ActiveForOrder(ctx, orderID, in.Type); err != nil {
		return document.FiscalDocument{}, err
	} else if found {
		if active.Status == document.StatusDraft {
			// A prior attempt failed in transit before the authority saw
			// it. Reuse the row with the rebuilt payload instead of
			// wedging the order behind its own abandoned draft.
			return s.refileDraft(ctx, active.ID, payload, in.Type)
		}
		return document.FiscalDocument{}, &document.StateConflictError{
			DocumentID: active.ID,
			Got:        active.Status,
			Want:       document.StatusError,
		}
	}

	doc := document.FiscalDocument{
		ID:            document.NewID(),
		Type:          in.Type,
		Environment:   s.env,
		Payload:       payload,
		LinkedOrderID: orderID,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return document.FiscalDocument{}, err
	}

	return s.file(ctx, doc.ID, payload, in.Type)
}

// refileDraft retries a draft whose earlier filing never reached the
// authority. The conditional payload swap aborts if another actor filed the
// row in the meantime.
func (s *Service) refileDraft(ctx context.Context, id string, payload []byte, t document.Type) (document.FiscalDocument, error) {
	ok, err := s.store.ReplaceDraftPayload(ctx, id, payload)
	if err != nil {
		return document.FiscalDocument{}, err
	}
	if !ok {
		return document.FiscalDocument{}, &document.StateConflictError{
			DocumentID: id,
			Got:        document.StatusProcessing,
			Want:       document.StatusDraft,
		}
	}
	slog.Info("retrying stalled draft", "document_id", id)
	return s.file(ctx, id, payload, t)
}

// file performs one submission attempt for an existing draft row. Shared by
// Submit and Resubmit; it is the only place Submit is ever called.
func (s *Service) file(ctx context.Context, id string, payload []byte, t document.Type) (document.FiscalDocument, error) {
	ack, err := s.client.Submit(ctx, payload, t)
	if err != nil {
		if se, ok := document.IsSubmission(err); ok {
			// Synchronous rejection: error state, no authority id assigned.
			if _, markErr := s.store.MarkRejected(ctx, id, se.Detail()); markErr != nil {
				return document.FiscalDocument{}, markErr
			}
			doc, getErr := s.store.Get(ctx, id)
			if getErr != nil {
				return document.FiscalDocument{}, getErr
			}
			return doc, err
		}
		// Transient/auth failures leave the draft untouched and surface to
		// the operator with the original detail.
		return document.FiscalDocument{}, err
	}

	ok, err := s.store.MarkSubmitted(ctx, id, ack.AuthorityID)
	if err != nil {
		return document.FiscalDocument{}, err
	}
	if !ok {
		return document.FiscalDocument{}, &document.StateConflictError{
			DocumentID: id,
			Got:        document.StatusProcessing,
			Want:       document.StatusDraft,
		}
	}

	if s.waker != nil {
		s.waker.Kick()
	}

	slog.Info("document filed",
		"document_id", id,
		"authority_id", ack.AuthorityID,
		"ack_status", ack.Status,
	)
	return s.store.Get(ctx, id)
}

// Resubmit rebuilds the payload from the operator's edited fields and files
// a fresh attempt for the same record. Only error-state documents qualify;
// the precondition is re-checked by the conditional reset, so a racing
// channel or operator aborts the resubmission instead of double-filing.
func (s *Service) Resubmit(ctx context.Context, id string, in SubmitInput) (document.FiscalDocument, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return document.FiscalDocument{}, err
	}
	if doc.Status != document.StatusError {
		return document.FiscalDocument{}, &document.StateConflictError{
			DocumentID: id,
			Got:        doc.Status,
			Want:       document.StatusError,
		}
	}
	if in.Type != doc.Type {
		return document.FiscalDocument{}, &document.StateConflictError{
			DocumentID: id,
			Got:        doc.Status,
			Want:       document.StatusError,
		}
	}

	// Rebuild from the edited fields, never from the stale stored payload.
	payload, err := builder.Build(doc.Type, in.POS, in.Service)
	if err != nil {
		return document.FiscalDocument{}, err
	}

	ok, err := s.store.BeginResubmission(ctx, id, payload)
	if err != nil {
		return document.FiscalDocument{}, err
	}
	if !ok {
		return document.FiscalDocument{}, &document.StateConflictError{
			DocumentID: id,
			Got:        doc.Status,
			Want:       document.StatusError,
		}
	}

	return s.file(ctx, id, payload, doc.Type)
}

// Cancel irreversibly voids an authorized document. The justification is
// length-checked locally before any network call. An authority refusal
// leaves the document untouched; the failure reason goes to the caller, not
// into ErrorMessage, which is reserved for submission rejections.
func (s *Service) Cancel(ctx context.Context, id, justification string) (document.FiscalDocument, error) {
	if len([]rune(justification)) < s.minJustification {
		return document.FiscalDocument{}, &document.ValidationError{
			Fields: []string{fmt.Sprintf("justification must have at least %d characters", s.minJustification)},
		}
	}

	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return document.FiscalDocument{}, err
	}
	if doc.Status != document.StatusAuthorized {
		return document.FiscalDocument{}, &document.StateConflictError{
			DocumentID: id,
			Got:        doc.Status,
			Want:       document.StatusAuthorized,
		}
	}

	if err := s.client.Cancel(ctx, doc.AuthorityID, doc.Type, justification); err != nil {
		return document.FiscalDocument{}, err
	}

	ok, err := s.store.Transition(ctx, id,
		document.StatusAuthorized, document.StatusCancelled, lifecycle.FieldUpdates{})
	if err != nil {
		return document.FiscalDocument{}, err
	}
	if !ok {
		// A webhook already recorded the cancellation; converged either way.
		slog.Debug("cancellation already reconciled", "document_id", id)
	}

	slog.Info("document cancelled", "document_id", id, "authority_id", doc.AuthorityID)
	return s.store.Get(ctx, id)
}

// Refresh performs one operator-initiated status poll. Unlike the background
// poller it surfaces every failure. Non-processing documents are returned as
// stored; there is nothing to reconcile for them.
func (s *Service) Refresh(ctx context.Context, id string) (document.FiscalDocument, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return document.FiscalDocument{}, err
	}
	if doc.Status != document.StatusProcessing {
		return doc, nil
	}

	st, err := s.client.QueryStatus(ctx, doc.AuthorityID, doc.Type)
	if err != nil {
		return document.FiscalDocument{}, err
	}
	upd := reconcile.UpdateFromStatus(st)
	if _, err := s.rec.Apply(ctx, doc, upd); err != nil {
		return document.FiscalDocument{}, err
	}
	return s.store.Get(ctx, id)
}

// Artifact streams a rendered document from the authority, proxying rather
// than redirecting. When the live fetch fails, the stored link (if any) is
// returned as a fallback for the caller to hand out.
func (s *Service) Artifact(ctx context.Context, id string, kind authority.ArtifactKind) (io.ReadCloser, string, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !doc.Status.Terminal() {
		return nil, "", &document.StateConflictError{
			DocumentID: id,
			Got:        doc.Status,
			Want:       document.StatusAuthorized,
		}
	}

	rc, err := s.client.FetchArtifact(ctx, doc.AuthorityID, doc.Type, kind)
	if err == nil {
		return rc, "", nil
	}

	stored := doc.PDFURL
	if kind == authority.ArtifactMachine {
		stored = doc.XMLURL
	}
	if stored != "" {
		slog.Warn("live artifact fetch failed, falling back to stored link",
			"document_id", id, "error", err)
		return nil, stored, nil
	}
	return nil, "", err
}

// Get returns the stored document.
func (s *Service) Get(ctx context.Context, id string) (document.FiscalDocument, error) {
	return s.store.Get(ctx, id)
}

// IsNotFound reports whether err is the store's missing-document error.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
