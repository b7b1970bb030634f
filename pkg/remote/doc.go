// Package remote adapts external text-generation endpoints behind a single
// Client interface: one message plus optional context in, one text reply or
// a CallError out. Exactly one network round trip per Send, no retries.
package remote
