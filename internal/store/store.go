package store

import (
	"context"
	"errors"

	"github.com/remedyhq/remedy/internal/models"
)

// ErrNotFound is returned when a session id has no record. Callers test
// with errors.Is.
var ErrNotFound = errors.New("session not found")

// Store defines the session persistence interface for remedy.
//
// A session record has a single writer (its owning workflow goroutine)
// and many readers; implementations must support concurrent
// insert/lookup/update and must never hand out memory that the writer
// may still mutate.
type Store interface {
	CreateSession(ctx context.Context, sess *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, limit int) ([]*models.Session, error)
	UpdateSession(ctx context.Context, sess *models.Session) error
	DeleteSession(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
