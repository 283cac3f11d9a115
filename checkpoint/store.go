package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Common store errors
var (
	// ErrNotFound is returned when a session has no checkpoint
	ErrNotFound = errors.New("checkpoint: session not found")
	// ErrInvalidInput is returned for nil or empty input
	ErrInvalidInput = errors.New("checkpoint: invalid input")
)

// Turn records one completed question/answer exchange within a session.
type Turn struct {
	RequestID  string    `json:"request_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Category   string    `json:"category"`
	Mode       string    `json:"mode"`
	Confidence float64   `json:"confidence"`
	AskedAt    time.Time `json:"asked_at"`
}

// Session is the persisted conversation state for one session ID.
type Session struct {
	SessionID string    `json:"session_id"`
	Turns     []Turn    `json:"turns"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists per-session conversation checkpoints.
// Implementations: RedisStore for distributed deployments,
// MemoryStore for single-process and testing.
type Store interface {
	// SaveTurn appends a turn to the session, creating it if needed.
	// Oldest turns beyond the configured limit are discarded.
	SaveTurn(ctx context.Context, sessionID string, turn Turn) error

	// Load returns the session checkpoint, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes the session checkpoint. Deleting a missing
	// session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// Ping checks store health.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
