// Package service provides the session and turn lifecycle over the
// orchestration engine.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plutus-ai/plutus/internal/model"
	"github.com/plutus-ai/plutus/pkg/logger"
	"github.com/plutus-ai/plutus/pkg/metrics"
)

var (
	// ErrSessionNotFound is returned for unknown or foreign session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned when a message targets a closed session.
	ErrSessionEnded = errors.New("session has ended")
)

// SessionRegistry tracks live sessions in memory. Sessions are ephemeral by
// design; the conversation history itself lives in the append-only store.
type SessionRegistry struct {
	log         *logger.Logger
	idleTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// NewSessionRegistry creates a registry. Sessions idle longer than
// idleTimeout are closed by the sweeper.
func NewSessionRegistry(idleTimeout time.Duration, log *logger.Logger) *SessionRegistry {
	return &SessionRegistry{
		log:         log,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*model.Session),
	}
}

// Start opens a new session for the user.
func (r *SessionRegistry) Start(userID string) *model.Session {
	now := time.Now().UTC()
	sess := &model.Session{
		ID:           uuid.Must(uuid.NewV7()).String(),
		UserID:       userID,
		StartedAt:    now,
		LastActivity: now,
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	metrics.SessionsActive.Inc()
	return sess
}

// Get returns the user's session, or ErrSessionNotFound. Sessions belonging
// to other users are indistinguishable from missing ones.
func (r *SessionRegistry) Get(userID, sessionID string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Touch records activity on a session and bumps its message count.
func (r *SessionRegistry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[sessionID]; ok {
		sess.LastActivity = time.Now().UTC()
		sess.MessageCount++
	}
}

// End closes a session. Ending twice is a no-op.
func (r *SessionRegistry) End(userID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return ErrSessionNotFound
	}
	if !sess.Ended() {
		now := time.Now().UTC()
		sess.EndedAt = &now
		metrics.SessionsActive.Dec()
	}
	return nil
}

// RunSweeper closes idle sessions until ctx is cancelled. Ended sessions are
// dropped from the registry on the following pass.
func (r *SessionRegistry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *SessionRegistry) sweep() {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sess := range r.sessions {
		if sess.Ended() {
			delete(r.sessions, id)
			continue
		}
		if now.Sub(sess.LastActivity) > r.idleTimeout {
			sess.EndedAt = &now
			metrics.SessionsActive.Dec()
			r.log.Info("session closed after inactivity",
				zap.String("session_id", id),
				zap.String("user_id", sess.UserID),
			)
		}
	}
}
