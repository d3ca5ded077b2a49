package memory

import (
	"context"
	"sync"

	"github.com/plutus-ai/plutus/internal/model"
)

// MemStore is an in-memory Store. It backs tests and local runs without a
// JetStream server; the service falls back to it when NATS is not configured.
type MemStore struct {
	mu   sync.Mutex
	seq  uint64
	data map[string]*userRecords
}

type userRecords struct {
	messages []model.Message
	insights []model.Insight
	contexts []model.UserContext
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]*userRecords)}
}

func (s *MemStore) user(userID string) *userRecords {
	rec, ok := s.data[userID]
	if !ok {
		rec = &userRecords{}
		s.data[userID] = rec
	}
	return rec
}

// AppendMessage appends a message and returns its store sequence.
func (s *MemStore) AppendMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	stored := *msg
	stored.Sequence = s.seq
	rec := s.user(msg.UserID)
	rec.messages = append(rec.messages, stored)
	return s.seq, nil
}

// SessionMessages returns a session's messages in append order.
func (s *MemStore) SessionMessages(ctx context.Context, userID, sessionID string, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Message
	for _, m := range s.user(userID).messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return tail(out, limit), nil
}

// RecentMessages returns the user's most recent messages, oldest first.
func (s *MemStore) RecentMessages(ctx context.Context, userID string, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.user(userID).messages
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return tail(out, limit), nil
}

// AppendInsight appends an insight record.
func (s *MemStore) AppendInsight(ctx context.Context, ins *model.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.user(ins.UserID)
	rec.insights = append(rec.insights, *ins)
	return nil
}

// RecentInsights returns the user's most recent insights, oldest first.
func (s *MemStore) RecentInsights(ctx context.Context, userID string, limit int) ([]model.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ins := s.user(userID).insights
	out := make([]model.Insight, len(ins))
	copy(out, ins)
	return tail(out, limit), nil
}

// AppendContext stores a snapshot under the next version for the user.
func (s *MemStore) AppendContext(ctx context.Context, uc *model.UserContext) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.user(uc.UserID)
	version := uint64(len(rec.contexts)) + 1
	stored := copyContext(uc)
	stored.Version = version
	rec.contexts = append(rec.contexts, *stored)
	uc.Version = version
	return version, nil
}

// LatestContext returns the highest-version snapshot for the user.
func (s *MemStore) LatestContext(ctx context.Context, userID string) (*model.UserContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.user(userID)
	if len(rec.contexts) == 0 {
		return nil, ErrNotFound
	}
	return copyContext(&rec.contexts[len(rec.contexts)-1]), nil
}

// ContextVersion returns one specific snapshot version.
func (s *MemStore) ContextVersion(ctx context.Context, userID string, version uint64) (*model.UserContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.user(userID)
	if version == 0 || version > uint64(len(rec.contexts)) {
		return nil, ErrNotFound
	}
	return copyContext(&rec.contexts[version-1]), nil
}

func tail[T any](items []T, limit int) []T {
	if limit <= 0 || limit >= len(items) {
		return items
	}
	return items[len(items)-limit:]
}

// copyContext deep-copies the slices so stored versions stay immutable even
// if a caller mutates its own value afterwards.
func copyContext(uc *model.UserContext) *model.UserContext {
	out := *uc
	out.Financial.Accounts = append([]model.Account(nil), uc.Financial.Accounts...)
	out.Goals = append([]model.Goal(nil), uc.Goals...)
	out.Insights = append([]model.Insight(nil), uc.Insights...)
	if uc.Preferences != nil {
		out.Preferences = make(map[string]string, len(uc.Preferences))
		for k, v := range uc.Preferences {
			out.Preferences[k] = v
		}
	}
	return &out
}
