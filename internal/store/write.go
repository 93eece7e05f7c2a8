package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fiscalstream/emissor/internal/document"
	"github.com/fiscalstream/emissor/internal/lifecycle"
)

// Create inserts a new draft document. The caller supplies ID, type,
// environment, payload, and linked order; status is forced to draft and
// authority-assigned columns start empty.
func (s *Store) Create(ctx context.Context, doc document.FiscalDocument) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fiscal_documents
		(id, doc_type, environment, status, authority_id, payload, linked_order_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?, ?, ?)
	`,
		doc.ID,
		string(doc.Type),
		string(doc.Environment),
		string(document.StatusDraft),
		doc.Payload,
		doc.LinkedOrderID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("create document %s: %w", doc.ID, err)
	}
	return nil
}

// MarkSubmitted records the authority's acknowledgment of a submission:
// draft → processing with the authority ID assigned, in one conditional
// statement so the invariant "non-nil authority id implies non-draft" holds
// at every observable point.
//
// Returns false if the document was not in draft (the precondition raced).
func (s *Store) MarkSubmitted(ctx context.Context, id, authorityID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fiscal_documents
		SET status = ?, authority_id = ?, error_message = '', updated_at = ?
		WHERE id = ? AND status = ?
	`,
		string(document.StatusProcessing),
		authorityID,
		time.Now().UTC(),
		id,
		string(document.StatusDraft),
	)
	if err != nil {
		return false, fmt.Errorf("mark submitted %s: %w", id, err)
	}
	return oneRow(res)
}

// MarkRejected records a synchronous rejection: draft → error with the
// authority's structured detail. The authority ID stays NULL - a synchronous
// rejection never assigns one.
func (s *Store) MarkRejected(ctx context.Context, id, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fiscal_documents
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		string(document.StatusError),
		message,
		time.Now().UTC(),
		id,
		string(document.StatusDraft),
	)
	if err != nil {
		return false, fmt.Errorf("mark rejected %s: %w", id, err)
	}
	return oneRow(res)
}

// BeginResubmission resets an error-state document for a fresh attempt:
// error → draft with the rebuilt payload, error message cleared, authority
// ID and authority-assigned identifiers cleared.
//
// Returns false if the document is no longer in error (the optimistic
// precondition of the correction workflow raced with another actor).
func (s *Store) BeginResubmission(ctx context.Context, id string, payload []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fiscal_documents
		SET status = ?, payload = ?, authority_id = NULL, error_message = '',
		    document_number = '', series = '', access_key = '', verification_code = '',
		    pdf_url = '', xml_url = '', updated_at = ?
		WHERE id = ? AND status = ?
	`,
		string(document.StatusDraft),
		payload,
		time.Now().UTC(),
		id,
		string(document.StatusError),
	)
	if err != nil {
		return false, fmt.Errorf("begin resubmission %s: %w", id, err)
	}
	return oneRow(res)
}

// ReplaceDraftPayload swaps the payload of a document still in draft. Used
// when a submission retry carries a rebuilt payload for a row whose earlier
// attempt failed in transit before reaching the authority.
//
// Returns false if the document is no longer in draft (a concurrent filing
// already reached the authority).
func (s *Store) ReplaceDraftPayload(ctx context.Context, id string, payload []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fiscal_documents
		SET payload = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		payload,
		time.Now().UTC(),
		id,
		string(document.StatusDraft),
	)
	if err != nil {
		return false, fmt.Errorf("replace draft payload %s: %w", id, err)
	}
	return oneRow(res)
}

// Transition applies a reconciliation decision: a single conditional UPDATE
// predicated on the current status. Field updates with empty values leave
// the column untouched; ClearError is explicit.
//
// Returns false when zero rows matched - the other channel already moved the
// document, which callers treat as convergence, not failure.
func (s *Store) Transition(ctx context.Context, id string, from, to document.Status, fields lifecycle.FieldUpdates) (bool, error) {
	set := []string{"status = ?", "updated_at = ?"}
	args := []any{string(to), time.Now().UTC()}

	appendField := func(column, value string) {
		if value != "" {
			set = append(set, column+" = ?")
			args = append(args, value)
		}
	}
	appendField("document_number", fields.DocumentNumber)
	appendField("series", fields.Series)
	appendField("access_key", fields.AccessKey)
	appendField("verification_code", fields.VerificationCode)
	appendField("pdf_url", fields.PDFURL)
	appendField("xml_url", fields.XMLURL)

	switch {
	case fields.ErrorMessage != "":
		set = append(set, "error_message = ?")
		args = append(args, fields.ErrorMessage)
	case fields.ClearError:
		set = append(set, "error_message = ''")
	}

	args = append(args, id, string(from))
	res, err := s.db.ExecContext(ctx,
		"UPDATE fiscal_documents SET "+strings.Join(set, ", ")+" WHERE id = ? AND status = ?",
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("transition %s %s -> %s: %w", id, from, to, err)
	}
	return oneRow(res)
}

// oneRow collapses an exec result into "did exactly the predicated row change".
func oneRow(res interface{ RowsAffected() (int64, error) }) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
