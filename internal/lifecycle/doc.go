// Package lifecycle implements the canonical fiscal document state machine.
//
// The authority reports status through two channels (webhook push and status
// polling) using a loosely-typed Portuguese vocabulary. Both channels funnel
// into the single pure transition function Apply, which maps the incoming
// vocabulary onto the five canonical states and decides which stored fields
// change. Because Apply is pure and a terminal incoming status applied to an
// already-terminal record is a no-op, duplicate or out-of-order deliveries
// converge to the same persisted state regardless of arrival order.
//
// Unrecognized authority statuses are never coerced to success or failure:
// Apply reports them as ignored so callers can log them for operator review
// while the record retains its current state.
//
// The only transition Apply refuses by construction is error → processing.
// That edge exists solely as an explicit resubmission, which bypasses the
// state machine and goes through the store's conditional resubmit update.
package lifecycle
