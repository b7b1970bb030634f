package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/parley/internal/tracing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(nil)
}

func TestRegistry_Create(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(DefaultLimits())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.Equal(t, DefaultMaxExchanges, snap.Limits.MaxExchanges)
	assert.Equal(t, DefaultTimeoutMinutes, snap.Limits.TimeoutMinutes)
	assert.True(t, snap.Limits.RequireApproval)
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.StartTime.IsZero())
}

func TestRegistry_CreateAppliesDefaults(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(Limits{MaxExchanges: -1, TimeoutMinutes: 0, RequireApproval: false})
	require.NoError(t, err)

	snap, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxExchanges, snap.Limits.MaxExchanges)
	assert.Equal(t, DefaultTimeoutMinutes, snap.Limits.TimeoutMinutes)
	assert.False(t, snap.Limits.RequireApproval)
}

func TestRegistry_UniqueIdentifiers(t *testing.T) {
	r := newTestRegistry(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := r.Create(DefaultLimits())
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate session id %s", id)
		seen[id] = true
	}
}

func TestRegistry_SnapshotNotFound(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Snapshot("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_EndIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(DefaultLimits())
	require.NoError(t, err)

	r.End(id)
	snap, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.False(t, snap.Active)
	assert.Equal(t, EndReasonUser, snap.EndReason)

	// Ending again, or ending an unknown session, is a no-op.
	r.End(id)
	r.End("missing")

	snap, err = r.Snapshot(id)
	require.NoError(t, err)
	assert.False(t, snap.Active)
}

func TestRegistry_EndWithTracedContext(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(DefaultLimits())
	require.NoError(t, err)

	// Ending through a context carrying a trace ID exercises the traced
	// logging path of EndWithContext.
	ctx := tracing.WithTraceID(context.Background(), tracing.NewTraceID())
	r.EndWithContext(ctx, id)

	snap, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.False(t, snap.Active)
	assert.Equal(t, EndReasonUser, snap.EndReason)
}

func TestRegistry_Append(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(DefaultLimits())
	require.NoError(t, err)

	err = r.Append(id, Message{Role: RoleLocalAgent, Content: "hello"})
	require.NoError(t, err)

	msgs := r.Messages(id)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleLocalAgent, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.False(t, msgs[0].Timestamp.IsZero())
}

func TestRegistry_AppendValidation(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(DefaultLimits())
	require.NoError(t, err)

	assert.Error(t, r.Append(id, Message{Role: "", Content: "hello"}))
	assert.Error(t, r.Append(id, Message{Role: RoleLocalAgent, Content: ""}))
	assert.Empty(t, r.Messages(id))
}

func TestRegistry_AppendStrict(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Append("missing", Message{Role: RoleLocalAgent, Content: "hello"})
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := r.Create(DefaultLimits())
	require.NoError(t, err)
	r.End(id)

	err = r.Append(id, Message{Role: RoleLocalAgent, Content: "hello"})
	assert.ErrorIs(t, err, ErrInactive)
	assert.Empty(t, r.Messages(id))
}

func TestRegistry_MessagesForgiving(t *testing.T) {
	r := newTestRegistry(t)

	msgs := r.Messages("missing")
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestRegistry_MessagesReturnsCopy(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(DefaultLimits())
	require.NoError(t, err)
	require.NoError(t, r.Append(id, Message{Role: RoleLocalAgent, Content: "hello"}))

	msgs := r.Messages(id)
	msgs[0].Content = "mutated"

	assert.Equal(t, "hello", r.Messages(id)[0].Content)
}

func TestRegistry_CheckExchange(t *testing.T) {
	r := newTestRegistry(t)

	assert.ErrorIs(t, r.CheckExchange("missing"), ErrNotFound)

	id, err := r.Create(DefaultLimits())
	require.NoError(t, err)
	assert.NoError(t, r.CheckExchange(id))

	r.End(id)
	assert.ErrorIs(t, r.CheckExchange(id), ErrInactive)
}

func TestRegistry_CheckExchangeTimeout(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(Limits{MaxExchanges: 5, TimeoutMinutes: 1})
	require.NoError(t, err)

	// Advance the clock past the wall-clock budget.
	r.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	assert.ErrorIs(t, r.CheckExchange(id), ErrInactive)

	snap, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.False(t, snap.Active)
	assert.Equal(t, EndReasonTimeout, snap.EndReason)

	// Stays inactive on repeat checks.
	assert.ErrorIs(t, r.CheckExchange(id), ErrInactive)
}

func TestRegistry_CheckExchangeBudget(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(Limits{MaxExchanges: 1, TimeoutMinutes: 60})
	require.NoError(t, err)

	require.NoError(t, r.Append(id, Message{Role: RoleLocalAgent, Content: "hello"}))
	require.NoError(t, r.Append(id, Message{Role: RoleRemoteModel, Content: "hi"}))

	err = r.CheckExchange(id)
	assert.ErrorIs(t, err, ErrExchangeLimit)

	snap, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.False(t, snap.Active)
	assert.Equal(t, EndReasonLimit, snap.EndReason)

	// Every later attempt keeps reporting the limit, not plain inactivity.
	assert.ErrorIs(t, r.CheckExchange(id), ErrExchangeLimit)
	assert.ErrorIs(t, r.CheckExchange(id), ErrExchangeLimit)
}

func TestRegistry_FinishExchange(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(Limits{MaxExchanges: 2, TimeoutMinutes: 60})
	require.NoError(t, err)

	require.NoError(t, r.Append(id, Message{Role: RoleLocalAgent, Content: "one"}))
	require.NoError(t, r.Append(id, Message{Role: RoleRemoteModel, Content: "two"}))

	// Budget not yet exhausted: session stays active.
	r.FinishExchange(id)
	snap, err := r.Snapshot(id)
	require.NoError(t, err)
	assert.True(t, snap.Active)

	require.NoError(t, r.Append(id, Message{Role: RoleLocalAgent, Content: "three"}))
	require.NoError(t, r.Append(id, Message{Role: RoleRemoteModel, Content: "four"}))

	r.FinishExchange(id)
	snap, err = r.Snapshot(id)
	require.NoError(t, err)
	assert.False(t, snap.Active)
	assert.Equal(t, EndReasonLimit, snap.EndReason)
}

func TestRegistry_ActiveCount(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.Create(DefaultLimits())
	require.NoError(t, err)
	_, err = r.Create(DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, 2, r.ActiveCount())

	r.End(a)
	assert.Equal(t, 1, r.ActiveCount())
}

func TestRegistry_ExchangeLockIsStable(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(DefaultLimits())
	require.NoError(t, err)

	assert.Same(t, r.ExchangeLock(id), r.ExchangeLock(id))
	assert.NotSame(t, r.ExchangeLock(id), r.ExchangeLock("other"))
}

func TestRegistry_ConcurrentAppends(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(DefaultLimits())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Append(id, Message{Role: RoleLocalAgent, Content: "msg"})
		}()
	}
	wg.Wait()

	assert.Len(t, r.Messages(id), 20)
}
