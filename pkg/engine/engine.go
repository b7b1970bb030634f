package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/parley/internal/observability"
	"github.com/harun/parley/internal/tracing"
	"github.com/harun/parley/pkg/approval"
	"github.com/harun/parley/pkg/remote"
	"github.com/harun/parley/pkg/session"
)

// ErrApprovalDenied means the operator refused the outbound message. No
// message is recorded and the exchange slot is not consumed. Denials are
// final for that exchange; the engine never re-asks.
var ErrApprovalDenied = errors.New("approval denied")

// Engine drives collaboration sessions end to end.
type Engine struct {
	registry *session.Registry
	gate     approval.Gate
	client   remote.Client
}

// New creates an engine. The registry owns all session state; the gate and
// client are the only operations that may block on external parties.
func New(registry *session.Registry, gate approval.Gate, client remote.Client) *Engine {
	return &Engine{
		registry: registry,
		gate:     gate,
		client:   client,
	}
}

// CreateSession allocates a new bounded session and returns its identifier.
func (e *Engine) CreateSession(ctx context.Context, limits session.Limits) (string, error) {
	return e.registry.CreateWithContext(ctx, limits)
}

// EndSession deactivates a session. Idempotent.
func (e *Engine) EndSession(ctx context.Context, id string) {
	e.registry.EndWithContext(ctx, id)
}

// ConversationLog returns the ordered message record for a session. Unknown
// sessions yield an empty slice.
func (e *Engine) ConversationLog(id string) []session.Message {
	return e.registry.Messages(id)
}

// Session returns a read-only view of a session.
func (e *Engine) Session(id string) (session.Snapshot, error) {
	return e.registry.Snapshot(id)
}

// Exchange runs one local-message/remote-reply pair against a session and
// returns the remote text. The budget-check-then-append sequence runs under
// the session's exchange lock so concurrent callers cannot overrun the
// exchange budget.
func (e *Engine) Exchange(ctx context.Context, id, content, contextText string) (string, error) {
	ctx = tracing.NewExchangeContext(ctx, id)
	ctx, span := tracing.StartSpan(
		ctx,
		"parley.engine",
		"engine.exchange",
		attribute.String("session_id", id),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordExchange(status, time.Since(start))
		observability.RecordExchangeAudit(ctx, id, status, nil)
	}()

	lock := e.registry.ExchangeLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := e.registry.CheckExchange(id); err != nil {
		status = exchangeStatus(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	snap, err := e.registry.Snapshot(id)
	if err != nil {
		status = exchangeStatus(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if snap.Limits.RequireApproval {
		decision, err := e.gate.RequestApproval(ctx, id, content)
		if err != nil {
			status = "approval_error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("approval request failed: %w", err)
		}

		observability.RecordApprovalDecision(decision.Approved)
		observability.RecordApprovalAudit(ctx, id, decision.Approved, map[string]interface{}{
			"reason": decision.Reason,
		})

		if !decision.Approved {
			status = "denied"
			logger.Warn().
				Str("reason", decision.Reason).
				Msg("Exchange denied by operator")
			return "", ErrApprovalDenied
		}
	}

	localMsg := session.Message{Role: session.RoleLocalAgent, Content: content}
	if err := e.registry.AppendWithContext(ctx, id, localMsg); err != nil {
		status = exchangeStatus(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	reply, err := e.client.Send(ctx, content, contextText)
	if err != nil {
		// The local turn stays in the log: the attempt is recorded even
		// though the remote turn failed.
		status = "remote_failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("Remote call failed")
		return "", err
	}

	// A successful call with no text still completes the exchange; the
	// remote turn is recorded as the placeholder.
	if reply == "" {
		reply = remote.NoResponsePlaceholder
	}

	remoteMsg := session.Message{Role: session.RoleRemoteModel, Content: reply}
	if err := e.registry.AppendWithContext(ctx, id, remoteMsg); err != nil {
		status = exchangeStatus(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	e.registry.FinishExchange(id)

	logger.Info().
		Int("messages", len(snap.Messages)+2).
		Msg("Exchange completed")

	return reply, nil
}

// TestConnection reports whether the remote endpoint answers a probe.
func (e *Engine) TestConnection(ctx context.Context) bool {
	return remote.TestConnection(ctx, e.client)
}

// exchangeStatus maps an exchange error to its metric label.
func exchangeStatus(err error) string {
	var callErr *remote.CallError
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "not_found"
	case errors.Is(err, session.ErrInactive):
		return "inactive"
	case errors.Is(err, session.ErrExchangeLimit):
		return "limit"
	case errors.Is(err, ErrApprovalDenied):
		return "denied"
	case errors.As(err, &callErr):
		return "remote_failed"
	default:
		return "error"
	}
}
