package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalstream/emissor/internal/document"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "ok"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeRejected, "authority rejected the submission", nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRejected, resp.Error.Code)
	assert.Equal(t, "authority rejected the submission", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeNotFound, "document not found", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "E104")
	assert.Contains(t, buf.String(), "document not found")
}

func TestPrintDocument_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	doc := document.FiscalDocument{
		ID:             "doc-1",
		Type:           document.TypePointOfSale,
		Environment:    document.EnvHomologation,
		Status:         document.StatusAuthorized,
		AuthorityID:    "auth-1",
		DocumentNumber: "42",
		Series:         "1",
		PDFURL:         "https://authority.example/pdf/auth-1",
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, formatter.PrintDocument(doc))

	out := buf.String()
	assert.Contains(t, out, "doc-1")
	assert.Contains(t, out, "authorized")
	assert.Contains(t, out, "42/1")
	assert.Contains(t, out, "https://authority.example/pdf/auth-1")
	assert.NotContains(t, out, "error:")
}

func TestPrintDocument_JSONOmitsEmptyFields(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	doc := document.FiscalDocument{
		ID:          "doc-1",
		Type:        document.TypePointOfSale,
		Environment: document.EnvHomologation,
		Status:      document.StatusDraft,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, formatter.PrintDocument(doc))

	assert.NotContains(t, buf.String(), "authority_id")
	assert.NotContains(t, buf.String(), "error_message")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "boom")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitFailure, "context", errors.New("cause"))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
	assert.Contains(t, wrapped.Error(), "cause")
}
