package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/parley/pkg/approval"
	"github.com/harun/parley/pkg/remote"
	"github.com/harun/parley/pkg/session"
)

// fakeRemote is a scripted remote.Client that counts calls.
type fakeRemote struct {
	reply string
	err   error
	calls atomic.Int64
}

func (f *fakeRemote) Send(ctx context.Context, content, contextText string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return "ack: " + content, nil
}

func (f *fakeRemote) Provider() string { return "fake" }

func newTestEngine(gate approval.Gate, client remote.Client) *Engine {
	return New(session.NewRegistry(nil), gate, client)
}

func TestEngine_ExchangeRoundTrip(t *testing.T) {
	client := &fakeRemote{reply: "hi"}
	eng := newTestEngine(&approval.MockGate{AutoApprove: true}, client)

	id, err := eng.CreateSession(context.Background(), session.Limits{MaxExchanges: 5, TimeoutMinutes: 60, RequireApproval: true})
	require.NoError(t, err)

	reply, err := eng.Exchange(context.Background(), id, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "hi", reply)

	messages := eng.ConversationLog(id)
	require.Len(t, messages, 2)
	assert.Equal(t, session.RoleLocalAgent, messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, session.RoleRemoteModel, messages[1].Role)
	assert.Equal(t, "hi", messages[1].Content)
	assert.Equal(t, int64(1), client.calls.Load())
}

func TestEngine_DenialIsNoOp(t *testing.T) {
	client := &fakeRemote{}
	gate := &approval.MockGate{Decision: approval.Decision{Approved: false, Reason: "not today"}}
	eng := newTestEngine(gate, client)

	id, err := eng.CreateSession(context.Background(), session.Limits{MaxExchanges: 3, TimeoutMinutes: 60, RequireApproval: true})
	require.NoError(t, err)

	_, err = eng.Exchange(context.Background(), id, "hello", "")
	require.ErrorIs(t, err, ErrApprovalDenied)

	// A denial leaves no trace and consumes no budget.
	assert.Empty(t, eng.ConversationLog(id))
	assert.Equal(t, int64(0), client.calls.Load())
	assert.Equal(t, 1, gate.Calls)

	snap, err := eng.Session(id)
	require.NoError(t, err)
	assert.True(t, snap.Active)

	// The slot is still available once the operator relents.
	gate.Decision = approval.Decision{Approved: true}
	_, err = eng.Exchange(context.Background(), id, "hello again", "")
	require.NoError(t, err)
	assert.Len(t, eng.ConversationLog(id), 2)
}

func TestEngine_ApprovalSkippedWhenNotRequired(t *testing.T) {
	gate := &approval.MockGate{Decision: approval.Decision{Approved: false}}
	eng := newTestEngine(gate, &fakeRemote{})

	id, err := eng.CreateSession(context.Background(), session.Limits{MaxExchanges: 3, TimeoutMinutes: 60, RequireApproval: false})
	require.NoError(t, err)

	_, err = eng.Exchange(context.Background(), id, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, 0, gate.Calls)
}

func TestEngine_ApprovalErrorPropagates(t *testing.T) {
	gateErr := errors.New("terminal gone")
	client := &fakeRemote{}
	eng := newTestEngine(&approval.MockGate{Err: gateErr}, client)

	id, err := eng.CreateSession(context.Background(), session.Limits{MaxExchanges: 3, TimeoutMinutes: 60, RequireApproval: true})
	require.NoError(t, err)

	_, err = eng.Exchange(context.Background(), id, "hello", "")
	require.ErrorIs(t, err, gateErr)
	assert.NotErrorIs(t, err, ErrApprovalDenied)
	assert.Empty(t, eng.ConversationLog(id))
	assert.Equal(t, int64(0), client.calls.Load())
}

func TestEngine_EndedSessionRejectsExchange(t *testing.T) {
	eng := newTestEngine(&approval.MockGate{AutoApprove: true}, &fakeRemote{})

	id, err := eng.CreateSession(context.Background(), session.DefaultLimits())
	require.NoError(t, err)

	_, err = eng.Exchange(context.Background(), id, "hello", "")
	require.NoError(t, err)

	eng.EndSession(context.Background(), id)

	before := eng.ConversationLog(id)
	_, err = eng.Exchange(context.Background(), id, "again", "")
	require.ErrorIs(t, err, session.ErrInactive)
	assert.Equal(t, before, eng.ConversationLog(id))
}

func TestEngine_UnknownSession(t *testing.T) {
	eng := newTestEngine(&approval.MockGate{AutoApprove: true}, &fakeRemote{})

	_, err := eng.Exchange(context.Background(), "no-such-session", "hello", "")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestEngine_ExchangeLimit(t *testing.T) {
	eng := newTestEngine(&approval.MockGate{AutoApprove: true}, &fakeRemote{})

	id, err := eng.CreateSession(context.Background(), session.Limits{MaxExchanges: 1, TimeoutMinutes: 60, RequireApproval: true})
	require.NoError(t, err)

	reply, err := eng.Exchange(context.Background(), id, "hello", "")
	require.NoError(t, err)
	assert.NotEmpty(t, reply)

	// The final slot deactivated the session with a limit end reason, so
	// every later attempt keeps failing the same way.
	for i := 0; i < 3; i++ {
		_, err = eng.Exchange(context.Background(), id, "more", "")
		assert.ErrorIs(t, err, session.ErrExchangeLimit)
	}

	messages := eng.ConversationLog(id)
	assert.Len(t, messages, 2)

	snap, err := eng.Session(id)
	require.NoError(t, err)
	assert.False(t, snap.Active)
}

func TestEngine_RemoteFailureKeepsLocalMessage(t *testing.T) {
	callErr := &remote.CallError{Provider: "fake", Err: errors.New("connection refused")}
	client := &fakeRemote{err: callErr}
	eng := newTestEngine(&approval.MockGate{AutoApprove: true}, client)

	id, err := eng.CreateSession(context.Background(), session.Limits{MaxExchanges: 5, TimeoutMinutes: 60, RequireApproval: true})
	require.NoError(t, err)

	_, err = eng.Exchange(context.Background(), id, "hello", "")
	require.Error(t, err)

	var got *remote.CallError
	require.ErrorAs(t, err, &got)

	// The attempt is visible: exactly one local turn, no remote turn.
	messages := eng.ConversationLog(id)
	require.Len(t, messages, 1)
	assert.Equal(t, session.RoleLocalAgent, messages[0].Role)

	// A failed exchange does not consume a slot.
	client.err = nil
	_, err = eng.Exchange(context.Background(), id, "retry", "")
	require.NoError(t, err)
	assert.Len(t, eng.ConversationLog(id), 3)
}

func TestEngine_EmptyReplyRecordedAsPlaceholder(t *testing.T) {
	eng := New(session.NewRegistry(nil), &approval.MockGate{AutoApprove: true}, clientFunc(func(ctx context.Context, content, contextText string) (string, error) {
		return "", nil
	}))

	id, err := eng.CreateSession(context.Background(), session.Limits{MaxExchanges: 5, TimeoutMinutes: 60, RequireApproval: true})
	require.NoError(t, err)

	reply, err := eng.Exchange(context.Background(), id, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, remote.NoResponsePlaceholder, reply)

	// The exchange completes with both turns recorded.
	messages := eng.ConversationLog(id)
	require.Len(t, messages, 2)
	assert.Equal(t, session.RoleRemoteModel, messages[1].Role)
	assert.Equal(t, remote.NoResponsePlaceholder, messages[1].Content)
}

func TestEngine_LogNeverExceedsTwicePerExchange(t *testing.T) {
	const maxExchanges = 4

	eng := newTestEngine(&approval.MockGate{AutoApprove: true}, &fakeRemote{})

	id, err := eng.CreateSession(context.Background(), session.Limits{MaxExchanges: maxExchanges, TimeoutMinutes: 60, RequireApproval: true})
	require.NoError(t, err)

	for i := 0; i < maxExchanges+3; i++ {
		_, _ = eng.Exchange(context.Background(), id, fmt.Sprintf("turn %d", i), "")
	}

	messages := eng.ConversationLog(id)
	assert.Len(t, messages, 2*maxExchanges)
	assert.Zero(t, len(messages)%2)
}

func TestEngine_ConcurrentExchangesHonorBudget(t *testing.T) {
	const (
		maxExchanges = 5
		callers      = 20
	)

	eng := newTestEngine(&approval.MockGate{AutoApprove: true}, &fakeRemote{})

	id, err := eng.CreateSession(context.Background(), session.Limits{MaxExchanges: maxExchanges, TimeoutMinutes: 60, RequireApproval: true})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var successes atomic.Int64

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := eng.Exchange(context.Background(), id, fmt.Sprintf("turn %d", n), ""); err == nil {
				successes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(maxExchanges), successes.Load())
	assert.Len(t, eng.ConversationLog(id), 2*maxExchanges)
}

func TestEngine_ContextThreadedToRemote(t *testing.T) {
	var gotContext string
	client := &fakeRemote{}
	eng := New(session.NewRegistry(nil), &approval.MockGate{AutoApprove: true}, clientFunc(func(ctx context.Context, content, contextText string) (string, error) {
		gotContext = contextText
		return client.Send(ctx, content, contextText)
	}))

	id, err := eng.CreateSession(context.Background(), session.DefaultLimits())
	require.NoError(t, err)

	_, err = eng.Exchange(context.Background(), id, "hello", "you are reviewing Go code")
	require.NoError(t, err)
	assert.Equal(t, "you are reviewing Go code", gotContext)
}

// clientFunc adapts a function to remote.Client.
type clientFunc func(ctx context.Context, content, contextText string) (string, error)

func (f clientFunc) Send(ctx context.Context, content, contextText string) (string, error) {
	return f(ctx, content, contextText)
}

func (f clientFunc) Provider() string { return "func" }

func TestEngine_TestConnection(t *testing.T) {
	eng := newTestEngine(&approval.MockGate{AutoApprove: true}, &fakeRemote{})
	assert.True(t, eng.TestConnection(context.Background()))

	failing := &fakeRemote{err: errors.New("unreachable")}
	eng = newTestEngine(&approval.MockGate{AutoApprove: true}, failing)
	assert.False(t, eng.TestConnection(context.Background()))
}

func TestExchangeStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", session.ErrNotFound, "not_found"},
		{"inactive", session.ErrInactive, "inactive"},
		{"limit", session.ErrExchangeLimit, "limit"},
		{"denied", ErrApprovalDenied, "denied"},
		{"remote", &remote.CallError{Provider: "x", Err: errors.New("boom")}, "remote_failed"},
		{"other", errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exchangeStatus(tt.err))
		})
	}
}
