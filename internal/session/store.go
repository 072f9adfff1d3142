package session

import (
	"time"

	"github.com/google/uuid"
)

// Result is the most recent completed swap of a session.
type Result struct {
	PNG          []byte
	Width        int
	Height       int
	FacesSwapped int
	SourceFaces  int
	TargetFaces  int
	CreatedAt    time.Time
}

// Store keeps one Result per session. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the stored result, or nil without error when the session has none.
	Get(sessionID string) (*Result, error)
	// Put replaces the result of the session.
	Put(sessionID string, result *Result) error
	// Clear removes the result of the session. Clearing an empty session is not an error.
	Clear(sessionID string) error
	// Ping reports whether the backend is reachable.
	Ping() error
	Close() error
}

// NewID returns a fresh random session identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like an identifier created by NewID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

func expired(createdAt time.Time, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(createdAt) > ttl
}
