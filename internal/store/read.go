package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fiscalstream/emissor/internal/document"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("document not found")

const documentColumns = `
	id, doc_type, environment, status, authority_id,
	document_number, series, access_key, verification_code,
	payload, error_message, pdf_url, xml_url, linked_order_id,
	created_at, updated_at`

// Get returns the document with the given internal ID.
func (s *Store) Get(ctx context.Context, id string) (document.FiscalDocument, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+documentColumns+" FROM fiscal_documents WHERE id = ?", id)
	return scanDocument(row, id)
}

// GetByAuthorityID returns the document the authority knows by the given ID.
// This is the webhook path's lookup: deliveries identify documents only by
// the authority-assigned identifier.
func (s *Store) GetByAuthorityID(ctx context.Context, authorityID string) (document.FiscalDocument, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+documentColumns+" FROM fiscal_documents WHERE authority_id = ?", authorityID)
	return scanDocument(row, authorityID)
}

// ListProcessing returns every document awaiting authority resolution,
// oldest first. The poller's working set.
func (s *Store) ListProcessing(ctx context.Context) ([]document.FiscalDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT"+documentColumns+` FROM fiscal_documents
		WHERE status = ? ORDER BY created_at ASC, id ASC`,
		string(document.StatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("list processing: %w", err)
	}
	defer rows.Close()

	var docs []document.FiscalDocument
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processing documents: %w", err)
	}

	// Return empty slice instead of nil
	if docs == nil {
		docs = []document.FiscalDocument{}
	}
	return docs, nil
}

// ActiveForOrder returns the active (non-error, non-cancelled) document for a
// linked order and type, if any. The submit workflow uses this as its
// duplicate-filing precondition; the filter runs in SQL rather than fetching
// every attempt and sifting in memory.
func (s *Store) ActiveForOrder(ctx context.Context, orderID string, t document.Type) (document.FiscalDocument, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+documentColumns+` FROM fiscal_documents
		WHERE linked_order_id = ? AND doc_type = ? AND status NOT IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		orderID,
		string(t),
		string(document.StatusError),
		string(document.StatusCancelled),
	)
	doc, err := scanDocument(row, orderID)
	if errors.Is(err, ErrNotFound) {
		return document.FiscalDocument{}, false, nil
	}
	if err != nil {
		return document.FiscalDocument{}, false, err
	}
	return doc, true, nil
}

// scanner abstracts *sql.Row and *sql.Rows for the shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row *sql.Row, key string) (document.FiscalDocument, error) {
	doc, err := scanFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.FiscalDocument{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return doc, err
}

func scanDocumentRows(rows *sql.Rows) (document.FiscalDocument, error) {
	return scanFrom(rows)
}

func scanFrom(sc scanner) (document.FiscalDocument, error) {
	var (
		doc         document.FiscalDocument
		docType     string
		environment string
		status      string
		authorityID sql.NullString
		createdAt   time.Time
		updatedAt   time.Time
	)
	err := sc.Scan(
		&doc.ID, &docType, &environment, &status, &authorityID,
		&doc.DocumentNumber, &doc.Series, &doc.AccessKey, &doc.VerificationCode,
		&doc.Payload, &doc.ErrorMessage, &doc.PDFURL, &doc.XMLURL, &doc.LinkedOrderID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return document.FiscalDocument{}, err
		}
		return document.FiscalDocument{}, fmt.Errorf("scan document: %w", err)
	}

	doc.Type = document.Type(docType)
	doc.Environment = document.Environment(environment)
	doc.Status = document.Status(status)
	if authorityID.Valid {
		doc.AuthorityID = authorityID.String
	}
	doc.CreatedAt = createdAt
	doc.UpdatedAt = updatedAt
	return doc, nil
}
