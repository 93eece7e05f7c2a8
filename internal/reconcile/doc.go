// Package reconcile converges stored document state with authority truth.
//
// Two independent channels feed it: the authority pushes webhook deliveries
// (at-least-once, possibly duplicated or out of order), and a server-owned
// poller queries the status endpoint for every processing document. Both
// channels normalize their wire shape into a lifecycle.Update and hand it to
// the Reconciler, which runs the pure transition function and persists the
// decision as a single conditional store update. Losing that conditional
// write means the other channel already converged the record; it is logged
// and dropped, never treated as a failure.
//
// The poller's cadence is adaptive: the whole processing set is polled at a
// fast interval while any record is fresh, at a slow interval otherwise, and
// not at all when nothing is processing - no timer is armed until a new
// submission kicks the loop awake. Reconciliation therefore does not depend
// on any client staying connected.
package reconcile
