// Package engine orchestrates bounded collaboration exchanges between a
// local agent and a remote model: it validates the session, enforces the
// operator approval gate, dispatches the approved message, and records both
// turns of the conversation.
//
// Ordering rules:
// - Approval happens before any state mutation, so a denial is a true no-op.
// - The local turn is recorded before the network call, so a remote failure
//   leaves the attempt visible in the log instead of hiding it.
package engine
