package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fiscalstream/emissor/internal/document"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation refused (rejection, state conflict, validation)
	ExitCommandError = 2 // Command error (bad config, unreadable files, database errors)
)

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the standard JSON response envelope.
type CLIResponse struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled. When format
// is JSON, the message goes to ErrWriter to avoid corrupting the stream.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// documentView is the JSON projection of a stored document for CLI output.
// The raw payload is omitted; operators inspect it in the database when
// they need it.
type documentView struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Environment    string `json:"environment"`
	Status         string `json:"status"`
	AuthorityID    string `json:"authority_id,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	Series         string `json:"series,omitempty"`
	AccessKey      string `json:"access_key,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	PDFURL         string `json:"pdf_url,omitempty"`
	XMLURL         string `json:"xml_url,omitempty"`
	LinkedOrderID  string `json:"linked_order_id,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func viewOf(doc document.FiscalDocument) documentView {
	return documentView{
		ID:             doc.ID,
		Type:           string(doc.Type),
		Environment:    string(doc.Environment),
		Status:         string(doc.Status),
		AuthorityID:    doc.AuthorityID,
		DocumentNumber: doc.DocumentNumber,
		Series:         doc.Series,
		AccessKey:      doc.AccessKey,
		ErrorMessage:   doc.ErrorMessage,
		PDFURL:         doc.PDFURL,
		XMLURL:         doc.XMLURL,
		LinkedOrderID:  doc.LinkedOrderID,
		CreatedAt:      doc.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      doc.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// PrintDocument renders a document in the configured format.
func (f *OutputFormatter) PrintDocument(doc document.FiscalDocument) error {
	if f.Format == "json" {
		return f.Success(viewOf(doc))
	}

	fmt.Fprintf(f.Writer, "id:         %s\n", doc.ID)
	fmt.Fprintf(f.Writer, "type:       %s\n", doc.Type)
	fmt.Fprintf(f.Writer, "status:     %s\n", doc.Status)
	if doc.AuthorityID != "" {
		fmt.Fprintf(f.Writer, "authority:  %s\n", doc.AuthorityID)
	}
	if doc.DocumentNumber != "" {
		fmt.Fprintf(f.Writer, "number:     %s/%s\n", doc.DocumentNumber, doc.Series)
	}
	if doc.AccessKey != "" {
		fmt.Fprintf(f.Writer, "access key: %s\n", doc.AccessKey)
	}
	if doc.ErrorMessage != "" {
		fmt.Fprintf(f.Writer, "error:      %s\n", doc.ErrorMessage)
	}
	if doc.PDFURL != "" {
		fmt.Fprintf(f.Writer, "pdf:        %s\n", doc.PDFURL)
	}
	if doc.XMLURL != "" {
		fmt.Fprintf(f.Writer, "xml:        %s\n", doc.XMLURL)
	}
	return nil
}
