// Package session implements the per-visitor session model and its pure
// view-model projection (spec.md §3, §4.6).
package session

import "sync"

// Status is the session's state machine position (spec.md §3).
type Status string

const (
	StatusNormal           Status = "NORMAL"
	StatusCreatingDatabase Status = "CREATING_DATABASE"
	StatusStartingLoadgen  Status = "STARTING_LOADGEN"
)

// UserMessage is a one-shot (text, severity) pair displayed once to the user.
type UserMessage struct {
	Text     string `json:"text"`
	Severity string `json:"severity"`
}

const (
	SeverityInfo  = "info"
	SeverityError = "error"
)

// Session is one visitor's durable state plus its in-memory mutual-exclusion
// primitive. The lock and the scoped Grafana key are unexported so they are
// never part of the persisted-document projection (spec.md §3).
type Session struct {
	Status            Status       `json:"status"`
	UserMessage       *UserMessage `json:"user_message"`
	LoadgenPortOffset *int         `json:"loadgen_port_offset"`
	LoadgenPids       []int        `json:"loadgen_pids"`
	DB                *string      `json:"db"`
	ExpiresAt         *float64     `json:"expires_at"`

	mu         sync.Mutex
	grafanaKey string
}

// New returns a freshly admitted session: NORMAL, every optional empty.
func New() *Session {
	return &Session{Status: StatusNormal}
}

// Lock acquires the session's mutual-exclusion primitive. Per spec.md §5 the
// global state lock must already be held (or explicitly released) before
// this is called; Lock itself does not enforce ordering, the coordinator
// does.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's mutual-exclusion primitive.
func (s *Session) Unlock() { s.mu.Unlock() }

// GrafanaKeyName returns the scoped Grafana API key name minted for this
// session, if any (SPEC_FULL.md §5.1). Empty when none was minted.
func (s *Session) GrafanaKeyName() string { return s.grafanaKey }

// SetGrafanaKeyName records the scoped Grafana API key name. Transient,
// never persisted.
func (s *Session) SetGrafanaKeyName(name string) { s.grafanaKey = name }

// Clone returns a shallow value copy suitable for persistence or rendering
// without racing a concurrent in-place mutation once the caller has released
// the session lock.
func (s *Session) Clone() *Session {
	c := &Session{
		Status:      s.Status,
		UserMessage: s.UserMessage,
		DB:          s.DB,
		ExpiresAt:   s.ExpiresAt,
	}
	if s.LoadgenPortOffset != nil {
		v := *s.LoadgenPortOffset
		c.LoadgenPortOffset = &v
	}
	if s.LoadgenPids != nil {
		c.LoadgenPids = append([]int(nil), s.LoadgenPids...)
	}
	return c
}
