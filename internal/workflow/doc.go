// Package workflow implements the operator-facing commands: submit a new
// document, correct and resubmit a rejected one, cancel an authorized one,
// refresh status, and fetch rendered artifacts.
//
// Submission and cancellation are the only non-idempotent authority calls,
// so each workflow re-checks the document's current status immediately
// before acting and aborts with StateConflictError if it changed - an
// optimistic precondition, not a lock. Nothing here retries automatically:
// a rejected submission returns to the error state and waits for the next
// explicit operator action, which is what prevents duplicate authority-side
// filings.
package workflow
