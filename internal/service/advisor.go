package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/plutus-ai/plutus/internal/finance"
	"github.com/plutus-ai/plutus/internal/memory"
	"github.com/plutus-ai/plutus/internal/model"
	"github.com/plutus-ai/plutus/internal/orchestrator"
	"github.com/plutus-ai/plutus/internal/usercontext"
	"github.com/plutus-ai/plutus/pkg/logger"
)

// AdvisorService is the API-facing surface over the orchestration engine.
type AdvisorService struct {
	sessions *SessionRegistry
	orch     *orchestrator.Orchestrator
	builder  *usercontext.Builder
	store    memory.Store
	log      *logger.Logger

	// userMu serializes turns per user so persisted history reflects
	// arrival order even when a client fires messages back to back.
	userMu sync.Map
}

// NewAdvisorService wires the service.
func NewAdvisorService(sessions *SessionRegistry, orch *orchestrator.Orchestrator, builder *usercontext.Builder, store memory.Store, log *logger.Logger) *AdvisorService {
	return &AdvisorService{
		sessions: sessions,
		orch:     orch,
		builder:  builder,
		store:    store,
		log:      log,
	}
}

// StartSession opens a new advisory session for the user.
func (s *AdvisorService) StartSession(ctx context.Context, userID string) (*model.Session, error) {
	return s.sessions.Start(userID), nil
}

// EndSession closes a session.
func (s *AdvisorService) EndSession(ctx context.Context, userID, sessionID string) error {
	return s.sessions.End(userID, sessionID)
}

// SendMessage processes one turn. Turns for the same user run one at a time
// in arrival order; turns for different users run concurrently.
func (s *AdvisorService) SendMessage(ctx context.Context, userID, sessionID, content string) (*model.SendMessageResponse, error) {
	sess, err := s.sessions.Get(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Ended() {
		return nil, ErrSessionEnded
	}

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	result, err := s.orch.ProcessTurn(ctx, orchestrator.TurnInput{
		UserID:    userID,
		SessionID: sessionID,
		MessageID: uuid.Must(uuid.NewV7()).String(),
		Content:   content,
	})
	if err != nil {
		return nil, err
	}

	s.sessions.Touch(sessionID)

	return &model.SendMessageResponse{
		Reply:           result.Reply,
		AgentsInvoked:   result.Metadata.AgentsInvoked,
		InsightsEmitted: len(result.Insights),
		Metadata:        &result.Metadata,
	}, nil
}

// Messages lists a session's persisted history.
func (s *AdvisorService) Messages(ctx context.Context, userID, sessionID string, limit int) (*model.ListMessagesResponse, error) {
	if _, err := s.sessions.Get(userID, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	msgs, err := s.store.SessionMessages(ctx, userID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	resp := &model.ListMessagesResponse{Messages: msgs}
	if len(msgs) > 0 {
		resp.LastSequence = msgs[len(msgs)-1].Sequence
	}
	return resp, nil
}

// Insights lists the user's accumulated insights, oldest first.
func (s *AdvisorService) Insights(ctx context.Context, userID string, limit int) (*model.ListInsightsResponse, error) {
	ins, err := s.store.RecentInsights(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return &model.ListInsightsResponse{Insights: ins, Total: len(ins)}, nil
}

// GetContext returns the user's current context snapshot, building one if
// needed. When the upstream is down it serves the newest stored version.
func (s *AdvisorService) GetContext(ctx context.Context, userID string) (*model.UserContext, error) {
	uc, err := s.builder.Build(ctx, userID, false)
	if err == nil {
		return uc, nil
	}
	if errors.Is(err, finance.ErrUpstreamUnavailable) {
		if stale, staleErr := s.builder.Latest(ctx, userID); staleErr == nil {
			return stale, nil
		}
	}
	return nil, err
}

// ContextVersion returns one historical snapshot by version number.
func (s *AdvisorService) ContextVersion(ctx context.Context, userID string, version uint64) (*model.UserContext, error) {
	return s.store.ContextVersion(ctx, userID, version)
}

// RefreshContext forces a rebuild, producing a new version when the
// underlying data changed.
func (s *AdvisorService) RefreshContext(ctx context.Context, userID string) (*model.UserContext, error) {
	s.builder.Invalidate(userID)
	return s.builder.Build(ctx, userID, true)
}

func (s *AdvisorService) userLock(userID string) *sync.Mutex {
	mu, _ := s.userMu.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
