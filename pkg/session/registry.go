package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/parley/internal/observability"
	"github.com/harun/parley/internal/tracing"
)

// Registry errors surfaced by session operations.
var (
	// ErrNotFound means no session exists for the identifier.
	ErrNotFound = errors.New("session not found")
	// ErrInactive means the session has ended (explicitly or by timeout).
	ErrInactive = errors.New("session inactive")
	// ErrExchangeLimit means the exchange budget is exhausted.
	ErrExchangeLimit = errors.New("exchange limit exceeded")
)

// Registry owns the set of live sessions. It is the only component allowed
// to flip a session's active flag, and every message append goes through it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	journal *Journal
	now     func() time.Time
}

// NewRegistry creates a session registry. The journal is optional; when
// non-nil every accepted append is mirrored to it as a durable transcript.
func NewRegistry(journal *Journal) *Registry {
	observability.EnsureRegistered()

	return &Registry{
		sessions: make(map[string]*session),
		locks:    make(map[string]*sync.Mutex),
		journal:  journal,
		now:      time.Now,
	}
}

// Create allocates a new session and returns its identifier. Non-positive
// numeric limits fall back to the defaults.
func (r *Registry) Create(limits Limits) (string, error) {
	return r.CreateWithContext(context.Background(), limits)
}

// CreateWithContext creates a session with tracing context.
func (r *Registry) CreateWithContext(ctx context.Context, limits Limits) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if limits.MaxExchanges <= 0 {
		limits.MaxExchanges = DefaultMaxExchanges
	}
	if limits.TimeoutMinutes <= 0 {
		limits.TimeoutMinutes = DefaultTimeoutMinutes
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}

	ctx = tracing.WithSessionID(ctx, id)
	ctx, span := tracing.StartSpan(
		ctx,
		"parley.session",
		"session.create",
		attribute.String("session_id", id),
		attribute.Int("max_exchanges", limits.MaxExchanges),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	r.mu.Lock()
	r.sessions[id] = &session{
		id:        id,
		startTime: r.now(),
		limits:    limits,
		active:    true,
	}
	count := r.activeCountLocked()
	r.mu.Unlock()

	observability.SetActiveSessions(count)
	logger.Info().
		Int("max_exchanges", limits.MaxExchanges).
		Int("timeout_minutes", limits.TimeoutMinutes).
		Bool("require_approval", limits.RequireApproval).
		Msg("Session created")

	return id, nil
}

// Snapshot returns a read-only copy of the session, or ErrNotFound.
func (r *Registry) Snapshot(id string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}

	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)

	return Snapshot{
		ID:        s.id,
		StartTime: s.startTime,
		Limits:    s.limits,
		Active:    s.active,
		EndReason: s.endReason,
		Messages:  msgs,
	}, nil
}

// End deactivates a session. Ending an already-ended or unknown session is
// a no-op.
func (r *Registry) End(id string) {
	r.EndWithContext(context.Background(), id)
}

// EndWithContext deactivates a session with tracing context.
func (r *Registry) EndWithContext(ctx context.Context, id string) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, id)
	ctx, span := tracing.StartSpan(
		ctx,
		"parley.session",
		"session.end",
		attribute.String("session_id", id),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	r.mu.Lock()
	ended := r.endLocked(id, EndReasonUser)
	count := r.activeCountLocked()
	r.mu.Unlock()

	if ended {
		observability.SetActiveSessions(count)
		logger.Info().Msg("Session ended")
	}
}

// endLocked flips a session to inactive. Caller holds r.mu. Returns true
// when the flag actually changed.
func (r *Registry) endLocked(id string, reason EndReason) bool {
	s, ok := r.sessions[id]
	if !ok || !s.active {
		return false
	}
	s.active = false
	s.endReason = reason
	return true
}

// Append records a message on an active session and mirrors it to the
// journal when one is configured. Fails with ErrNotFound or ErrInactive.
func (r *Registry) Append(id string, msg Message) error {
	return r.AppendWithContext(context.Background(), id, msg)
}

// AppendWithContext appends a message with tracing context.
func (r *Registry) AppendWithContext(ctx context.Context, id string, msg Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, id)
	ctx, span := tracing.StartSpan(
		ctx,
		"parley.session",
		"session.append",
		attribute.String("session_id", id),
		attribute.String("role", msg.Role),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if msg.Role == "" {
		return fmt.Errorf("message role cannot be empty")
	}
	if msg.Content == "" {
		return fmt.Errorf("message content cannot be empty")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now()
	}

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		span.SetStatus(codes.Error, ErrNotFound.Error())
		return ErrNotFound
	}
	if !s.active {
		r.mu.Unlock()
		span.SetStatus(codes.Error, ErrInactive.Error())
		return ErrInactive
	}
	s.messages = append(s.messages, msg)
	r.mu.Unlock()

	if r.journal != nil {
		if err := r.journal.Append(id, msg); err != nil {
			// The in-memory log is authoritative; a journal write failure
			// must not fail the exchange.
			logger.Warn().Err(err).Msg("Journal append failed")
		}
	}

	logger.Debug().
		Str("role", msg.Role).
		Msg("Message appended")

	return nil
}

// Messages returns a copy of the session's conversation log. Unknown
// sessions yield an empty slice; log reads are forgiving, only writes
// are strict.
func (r *Registry) Messages(id string) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return []Message{}
	}
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return msgs
}

// CheckExchange validates that a session can start a new exchange. It
// detects wall-clock timeout lazily, ending the session as a side effect,
// and reports budget exhaustion as ErrExchangeLimit both at the moment the
// budget runs out and on every later attempt.
func (r *Registry) CheckExchange(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}

	if !s.active {
		if s.endReason == EndReasonLimit {
			return ErrExchangeLimit
		}
		return ErrInactive
	}

	if r.now().Sub(s.startTime) > s.limits.Timeout() {
		r.endLocked(id, EndReasonTimeout)
		observability.SetActiveSessions(r.activeCountLocked())
		log.Info().Str("session_id", id).Msg("Session timed out")
		return ErrInactive
	}

	if s.exchangeCount() >= s.limits.MaxExchanges {
		r.endLocked(id, EndReasonLimit)
		observability.SetActiveSessions(r.activeCountLocked())
		log.Info().Str("session_id", id).Msg("Session exchange budget exhausted")
		return ErrExchangeLimit
	}

	return nil
}

// FinishExchange ends the session once a completed exchange consumed the
// final budget slot. No-op otherwise.
func (r *Registry) FinishExchange(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.active {
		return
	}
	if s.exchangeCount() >= s.limits.MaxExchanges {
		r.endLocked(id, EndReasonLimit)
		observability.SetActiveSessions(r.activeCountLocked())
		log.Info().Str("session_id", id).Msg("Session ended after final exchange")
	}
}

// ExchangeLock returns the mutex serializing exchanges against a session.
// The check-then-append sequence of an exchange must run under it so that
// concurrent callers cannot interleave and overrun the budget.
func (r *Registry) ExchangeLock(id string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	if lock, ok := r.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	r.locks[id] = lock
	return lock
}

// ActiveCount returns the number of sessions still accepting exchanges.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeCountLocked()
}

func (r *Registry) activeCountLocked() int {
	n := 0
	for _, s := range r.sessions {
		if s.active {
			n++
		}
	}
	return n
}
