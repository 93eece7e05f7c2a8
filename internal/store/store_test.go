package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalstream/emissor/internal/document"
	"github.com/fiscalstream/emissor/internal/lifecycle"
)

// createTestStore creates a temp-file store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestDocument inserts a draft document and returns it.
func createTestDocument(t *testing.T, s *Store, orderID string) document.FiscalDocument {
	t.Helper()
	doc := document.FiscalDocument{
		ID:            document.NewID(),
		Type:          document.TypePointOfSale,
		Environment:   document.EnvHomologation,
		Payload:       []byte(`{"referencia":"` + orderID + `"}`),
		LinkedOrderID: orderID,
	}
	if err := s.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return doc
}

// assertInvariants checks the record-level invariants that must hold after
// every persisted transition.
func assertInvariants(t *testing.T, doc document.FiscalDocument) {
	t.Helper()
	if doc.Status == document.StatusDraft {
		assert.Empty(t, doc.AuthorityID, "draft must have no authority id")
	}
	if doc.AuthorityID != "" {
		assert.NotEqual(t, document.StatusDraft, doc.Status,
			"authority id implies non-draft status")
	}
	if doc.Status == document.StatusError {
		assert.NotEmpty(t, doc.ErrorMessage, "error state must carry detail")
	} else {
		assert.Empty(t, doc.ErrorMessage, "error detail must not leak outside the error state")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestCreate_And_Get(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	doc := createTestDocument(t, s, "ord-1")

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusDraft, got.Status)
	assert.Empty(t, got.AuthorityID)
	assert.Equal(t, doc.Payload, got.Payload)
	assert.False(t, got.CreatedAt.IsZero())
	assertInvariants(t, got)
}

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkSubmitted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s, "ord-1")

	ok, err := s.MarkSubmitted(ctx, doc.ID, "auth-123")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusProcessing, got.Status)
	assert.Equal(t, "auth-123", got.AuthorityID)
	assertInvariants(t, got)

	// Second acknowledgment for the same draft matches zero rows.
	ok, err = s.MarkSubmitted(ctx, doc.ID, "auth-456")
	require.NoError(t, err)
	assert.False(t, ok, "non-draft document must not accept a submission ack")
}

func TestMarkRejected_KeepsAuthorityIDNil(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s, "ord-1")

	ok, err := s.MarkRejected(ctx, doc.ID, "[60] campo obrigatório")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusError, got.Status)
	assert.Equal(t, "[60] campo obrigatório", got.ErrorMessage)
	assert.Empty(t, got.AuthorityID, "synchronous rejection never assigns an authority id")
	assertInvariants(t, got)
}

func TestReplaceDraftPayload(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s, "ord-1")

	ok, err := s.ReplaceDraftPayload(ctx, doc.ID, []byte(`{"referencia":"ord-1","tentativa":2}`))
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusDraft, got.Status)
	assert.Equal(t, []byte(`{"referencia":"ord-1","tentativa":2}`), got.Payload)
	assertInvariants(t, got)

	// Once the document leaves draft the replacement matches zero rows.
	ok, err = s.MarkSubmitted(ctx, doc.ID, "auth-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ReplaceDraftPayload(ctx, doc.ID, []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, ok, "submitted document must keep the payload the authority saw")
}

func TestTransition_ProcessingToAuthorized(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s, "ord-1")

	_, err := s.MarkSubmitted(ctx, doc.ID, "auth-123")
	require.NoError(t, err)

	ok, err := s.Transition(ctx, doc.ID,
		document.StatusProcessing, document.StatusAuthorized,
		lifecycle.FieldUpdates{
			DocumentNumber: "42",
			Series:         "1",
			AccessKey:      "chave-42",
			PDFURL:         "https://authority.example/render/42.pdf",
			ClearError:     true,
		})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusAuthorized, got.Status)
	assert.Equal(t, "42", got.DocumentNumber)
	assert.Equal(t, "1", got.Series)
	assert.Equal(t, "chave-42", got.AccessKey)
	assertInvariants(t, got)
}

func TestTransition_LostRaceMatchesZeroRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s, "ord-1")

	_, err := s.MarkSubmitted(ctx, doc.ID, "auth-123")
	require.NoError(t, err)

	// First channel wins.
	ok, err := s.Transition(ctx, doc.ID,
		document.StatusProcessing, document.StatusAuthorized,
		lifecycle.FieldUpdates{DocumentNumber: "42", ClearError: true})
	require.NoError(t, err)
	require.True(t, ok)

	// Second channel predicated on processing loses quietly.
	ok, err = s.Transition(ctx, doc.ID,
		document.StatusProcessing, document.StatusAuthorized,
		lifecycle.FieldUpdates{DocumentNumber: "42", ClearError: true})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "42", got.DocumentNumber, "winning transition's fields survive the race")
}

func TestBeginResubmission(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s, "ord-1")

	_, err := s.MarkSubmitted(ctx, doc.ID, "auth-123")
	require.NoError(t, err)
	ok, err := s.Transition(ctx, doc.ID,
		document.StatusProcessing, document.StatusError,
		lifecycle.FieldUpdates{ErrorMessage: "rejeitado"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.BeginResubmission(ctx, doc.ID, []byte(`{"referencia":"ord-1","v":2}`))
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusDraft, got.Status)
	assert.Empty(t, got.AuthorityID, "resubmission clears the prior authority id")
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, []byte(`{"referencia":"ord-1","v":2}`), got.Payload)
	assertInvariants(t, got)

	// Only error-state documents can begin a resubmission.
	ok, err = s.BeginResubmission(ctx, doc.ID, []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetByAuthorityID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s, "ord-1")

	_, err := s.GetByAuthorityID(ctx, "auth-123")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.MarkSubmitted(ctx, doc.ID, "auth-123")
	require.NoError(t, err)

	got, err := s.GetByAuthorityID(ctx, "auth-123")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
}

func TestListProcessing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := createTestDocument(t, s, "ord-1")
	second := createTestDocument(t, s, "ord-2")
	createTestDocument(t, s, "ord-3") // stays draft

	_, err := s.MarkSubmitted(ctx, first.ID, "auth-1")
	require.NoError(t, err)
	_, err = s.MarkSubmitted(ctx, second.ID, "auth-2")
	require.NoError(t, err)

	docs, err := s.ListProcessing(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, document.StatusProcessing, d.Status)
	}
}

func TestListProcessing_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)
	docs, err := s.ListProcessing(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestActiveForOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := createTestDocument(t, s, "ord-1")

	// A draft attempt counts as active.
	_, found, err := s.ActiveForOrder(ctx, "ord-1", document.TypePointOfSale)
	require.NoError(t, err)
	assert.True(t, found)

	// Error-state attempts do not block a new filing.
	ok, err := s.MarkRejected(ctx, doc.ID, "rejeitado")
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err = s.ActiveForOrder(ctx, "ord-1", document.TypePointOfSale)
	require.NoError(t, err)
	assert.False(t, found)

	// A different document type is a separate filing.
	_, found, err = s.ActiveForOrder(ctx, "ord-1", document.TypeService)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAuthorityID_UniqueOnceAssigned(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := createTestDocument(t, s, "ord-1")
	second := createTestDocument(t, s, "ord-2")

	ok, err := s.MarkSubmitted(ctx, first.ID, "auth-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.MarkSubmitted(ctx, second.ID, "auth-1")
	assert.Error(t, err, "duplicate authority ids must be rejected by the store")
}
