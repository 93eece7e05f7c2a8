// Package authority is the transport adapter for the external certifying
// authority. It is stateless apart from a cached bearer token: every method
// takes a context, carries a bounded timeout through the shared http.Client,
// and maps wire-level failures onto the document error taxonomy
// (AuthError, SubmissionError, NotFoundError, TransientNetworkError).
//
// Submit is NOT idempotent at the authority: calling it twice files two
// attempts. The client therefore never retries it; retry decisions belong to
// the correction workflow, which requires an explicit operator action.
// Status queries and artifact fetches are idempotent and safe to repeat.
package authority
