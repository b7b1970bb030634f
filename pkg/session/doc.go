// Package session owns collaboration session state: the registry of live
// sessions, their limits and lifecycle, and the append-only conversation
// transcript per session.
//
// Invariants:
// - Session identifiers are unique for the registry's lifetime.
// - A session's active flag is terminal: once false it never flips back.
// - Messages are append-only and never exceed 2x the exchange budget.
// - All mutation goes through the Registry; reads return copies.
//
// Usage:
//
//	reg := session.NewRegistry(nil)
//	id, _ := reg.Create(session.DefaultLimits())
//	_ = reg.Append(id, session.Message{Role: session.RoleLocalAgent, Content: "hello"})
//	msgs := reg.Messages(id)
//	_ = msgs
package session
