package session

import "time"

// Message roles for conversation turns.
const (
	RoleLocalAgent    = "local-agent"
	RoleRemoteModel   = "remote-model"
	RoleSystemContext = "system-context"
)

// Message represents a single conversation turn. Immutable once appended.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Limits bound a collaboration session. Fixed at creation.
type Limits struct {
	MaxExchanges    int  `json:"max_exchanges" mapstructure:"max_exchanges"`
	TimeoutMinutes  int  `json:"timeout_minutes" mapstructure:"timeout_minutes"`
	RequireApproval bool `json:"require_approval" mapstructure:"require_approval"`
}

// Default session limits.
const (
	DefaultMaxExchanges   = 50
	DefaultTimeoutMinutes = 60
)

// DefaultLimits returns the limits applied when the caller supplies none.
func DefaultLimits() Limits {
	return Limits{
		MaxExchanges:    DefaultMaxExchanges,
		TimeoutMinutes:  DefaultTimeoutMinutes,
		RequireApproval: true,
	}
}

// Timeout returns the wall-clock budget as a duration.
func (l Limits) Timeout() time.Duration {
	return time.Duration(l.TimeoutMinutes) * time.Minute
}

// EndReason records why a session left the active state.
type EndReason string

const (
	// EndReasonUser means the session was ended by an explicit request.
	EndReasonUser EndReason = "user"
	// EndReasonTimeout means the wall-clock budget elapsed.
	EndReasonTimeout EndReason = "timeout"
	// EndReasonLimit means the exchange budget was exhausted.
	EndReasonLimit EndReason = "limit"
)

// session is the registry-internal mutable state. All access is guarded by
// the registry mutex; nothing outside this package sees it directly.
type session struct {
	id        string
	startTime time.Time
	limits    Limits

	active    bool
	endReason EndReason
	messages  []Message
}

// exchangeCount is the number of completed local+remote pairs.
func (s *session) exchangeCount() int {
	return len(s.messages) / 2
}

// Snapshot is a read-only copy of a session's state.
type Snapshot struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Limits    Limits    `json:"limits"`
	Active    bool      `json:"active"`
	EndReason EndReason `json:"end_reason,omitempty"`
	Messages  []Message `json:"messages"`
}
