// Package memory provides the append-only store for conversation turns,
// extracted insights, and versioned user context snapshots. Nothing in this
// package ever deletes or rewrites history; retention is an external
// data-lifecycle concern.
package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/plutus-ai/plutus/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// PersistenceError wraps a failed store operation. The orchestrator logs and
// retries these once; they never block reply delivery.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store is the append-only persistence boundary. All writes during a turn go
// through the orchestrator (single writer per turn).
type Store interface {
	// AppendMessage appends a message and returns its store sequence.
	AppendMessage(ctx context.Context, msg *model.Message) (uint64, error)

	// SessionMessages returns a session's messages in append order.
	SessionMessages(ctx context.Context, userID, sessionID string, limit int) ([]model.Message, error)

	// RecentMessages returns the user's most recent messages across sessions,
	// oldest first.
	RecentMessages(ctx context.Context, userID string, limit int) ([]model.Message, error)

	// AppendInsight appends an insight record.
	AppendInsight(ctx context.Context, ins *model.Insight) error

	// RecentInsights returns the user's most recent insights, oldest first.
	RecentInsights(ctx context.Context, userID string, limit int) ([]model.Insight, error)

	// AppendContext stores a new context snapshot, assigning the next
	// strictly-increasing version for the user, and returns that version.
	AppendContext(ctx context.Context, uc *model.UserContext) (uint64, error)

	// LatestContext returns the highest-version snapshot for the user, or
	// ErrNotFound when none has been built yet.
	LatestContext(ctx context.Context, userID string) (*model.UserContext, error)

	// ContextVersion returns one specific snapshot version.
	ContextVersion(ctx context.Context, userID string, version uint64) (*model.UserContext, error)
}
