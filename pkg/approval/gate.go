// Package approval is the human-in-the-loop checkpoint in front of every
// outbound message. A Gate blocks the calling flow until the operator
// answers; it imposes no timeout of its own, cancellation is the caller's
// business via ctx.
package approval

import (
	"context"
	"time"
)

// Decision is the operator's verdict on a proposed outbound message.
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// Gate asks a human operator whether an outbound message may proceed.
type Gate interface {
	RequestApproval(ctx context.Context, sessionID, content string) (Decision, error)
}

// MockGate is a scripted gate for testing.
type MockGate struct {
	AutoApprove bool
	Decision    Decision
	Delay       time.Duration
	Err         error

	// Calls counts how many times the gate was consulted.
	Calls int
}

// RequestApproval implements Gate.
func (m *MockGate) RequestApproval(ctx context.Context, sessionID, content string) (Decision, error) {
	m.Calls++

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		}
	}

	if m.Err != nil {
		return Decision{}, m.Err
	}

	if m.AutoApprove {
		return Decision{Approved: true, Reason: "auto-approved"}, nil
	}

	return m.Decision, nil
}
