package document

import (
	"errors"
	"fmt"
	"strings"
)

// AuthorityMessage is one structured validation message from the authority,
// returned when a submission is rejected synchronously.
type AuthorityMessage struct {
	Code        string
	Description string
}

func (m AuthorityMessage) String() string {
	if m.Code == "" {
		return m.Description
	}
	return fmt.Sprintf("[%s] %s", m.Code, m.Description)
}

// ValidationError reports that a payload cannot be built from the given
// input. It is raised locally, before any network call, and collects every
// missing or invalid field rather than stopping at the first.
type ValidationError struct {
	DocumentType Type
	Fields       []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s input: %s", e.DocumentType, strings.Join(e.Fields, "; "))
}

// AuthError reports a failed credential exchange or webhook secret mismatch.
// Never retried automatically.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Message
}

// SubmissionError reports a synchronous rejection by the authority.
// It is persisted as the document's error state with the structured
// messages joined into ErrorMessage.
type SubmissionError struct {
	Messages []AuthorityMessage
}

func (e *SubmissionError) Error() string {
	if len(e.Messages) == 0 {
		return "authority rejected submission"
	}
	parts := make([]string, len(e.Messages))
	for i, m := range e.Messages {
		parts[i] = m.String()
	}
	return "authority rejected submission: " + strings.Join(parts, "; ")
}

// Detail joins the message descriptions for persistence in ErrorMessage.
func (e *SubmissionError) Detail() string {
	parts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, "; ")
}

// TransientNetworkError wraps timeouts and connectivity failures. Swallowed
// by the polling path, surfaced for user-initiated actions.
type TransientNetworkError struct {
	Op    string
	Cause error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network failure during %s: %v", e.Op, e.Cause)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Cause
}

// NotFoundError reports that the authority has no record for the given ID.
// Tolerated within the post-submission grace window, escalated afterwards.
type NotFoundError struct {
	AuthorityID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("authority has no record for %s", e.AuthorityID)
}

// StateConflictError reports an action that is invalid for the document's
// current status. Rejected locally before any network call.
type StateConflictError struct {
	DocumentID string
	Got        Status
	Want       Status
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("document %s is %s, action requires %s", e.DocumentID, e.Got, e.Want)
}

// IsValidation reports whether err is a ValidationError.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsSubmission reports whether err is a SubmissionError, extracting it when so.
func IsSubmission(err error) (*SubmissionError, bool) {
	var se *SubmissionError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsTransient reports whether err is a TransientNetworkError.
func IsTransient(err error) bool {
	var te *TransientNetworkError
	return errors.As(err, &te)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsStateConflict reports whether err is a StateConflictError.
func IsStateConflict(err error) bool {
	var sc *StateConflictError
	return errors.As(err, &sc)
}
