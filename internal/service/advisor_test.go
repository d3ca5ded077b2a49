package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plutus-ai/plutus/internal/agent"
	"github.com/plutus-ai/plutus/internal/finance"
	"github.com/plutus-ai/plutus/internal/memory"
	"github.com/plutus-ai/plutus/internal/model"
	"github.com/plutus-ai/plutus/internal/orchestrator"
	"github.com/plutus-ai/plutus/internal/usercontext"
	"github.com/plutus-ai/plutus/pkg/logger"
)

func newTestService(t *testing.T, store memory.Store) *AdvisorService {
	t.Helper()
	log := logger.NewNop()
	builder := usercontext.NewBuilder(finance.NewStaticProvider(), store, time.Minute, log)
	router, err := orchestrator.NewRouter(orchestrator.DefaultRoutingConfig(), []agent.Name{
		agent.FinancialAnalysis,
		agent.GoalExtraction,
		agent.RiskAssessment,
		agent.Recommendation,
	}, nil)
	require.NoError(t, err)

	orch := orchestrator.New(router, []agent.Agent{
		agent.NewFinancialAnalyzer(nil),
		agent.NewGoalExtractor(),
		agent.NewRiskAssessor(nil),
		agent.NewRecommender(nil),
	}, builder, store, 5*time.Second, log)

	sessions := NewSessionRegistry(30*time.Minute, log)
	return NewAdvisorService(sessions, orch, builder, store, log)
}

func TestSessionLifecycle(t *testing.T) {
	svc := newTestService(t, memory.NewMemStore())
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	resp, err := svc.SendMessage(ctx, "u1", sess.ID, "how is my budget?")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Reply)
	assert.NotEmpty(t, resp.AgentsInvoked)

	require.NoError(t, svc.EndSession(ctx, "u1", sess.ID))

	_, err = svc.SendMessage(ctx, "u1", sess.ID, "one more thing")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestSendMessageUnknownSession(t *testing.T) {
	svc := newTestService(t, memory.NewMemStore())

	_, err := svc.SendMessage(context.Background(), "u1", "nope", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendMessageForeignSessionHidden(t *testing.T) {
	svc := newTestService(t, memory.NewMemStore())
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "u2", sess.ID, "peek")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRapidMessagesPersistInArrivalOrder(t *testing.T) {
	store := memory.NewMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)

	// Serialize the sends themselves so arrival order is defined, but let
	// each call race into the service.
	contents := []string{"first message about my budget", "second message about my budget", "third message about my budget"}
	var wg sync.WaitGroup
	for _, c := range contents {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SendMessage(ctx, "u1", sess.ID, c)
			assert.NoError(t, err)
		}()
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	msgs, err := svc.Messages(ctx, "u1", sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs.Messages, 6)

	// Each user message is immediately followed by its reply, in send order.
	var userContents []string
	for i, m := range msgs.Messages {
		if i%2 == 0 {
			require.Equal(t, model.RoleUser, m.Role)
			userContents = append(userContents, m.Content)
		} else {
			require.Equal(t, model.RoleAssistant, m.Role)
		}
	}
	assert.Equal(t, contents, userContents)
}

func TestContextEndpoints(t *testing.T) {
	svc := newTestService(t, memory.NewMemStore())
	ctx := context.Background()

	uc, err := svc.GetContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), uc.Version)

	// Unchanged data: an explicit refresh still mints the next version.
	again, err := svc.RefreshContext(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, uc.Version+1, again.Version)

	// Both versions remain readable.
	old, err := svc.ContextVersion(ctx, "u1", uc.Version)
	require.NoError(t, err)
	assert.True(t, old.PayloadEqual(again))
}

func TestInsightsAccumulateAcrossTurns(t *testing.T) {
	store := memory.NewMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	sess, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)

	resp, err := svc.SendMessage(ctx, "u1", sess.ID, "I want to save $20k for a car in 2 years")
	require.NoError(t, err)
	assert.Greater(t, resp.InsightsEmitted, 0)

	list, err := svc.Insights(ctx, "u1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, list.Insights)
	assert.Equal(t, model.InsightGoal, list.Insights[0].Type)
}

func TestSweeperClosesIdleSessions(t *testing.T) {
	log := logger.NewNop()
	reg := NewSessionRegistry(10*time.Millisecond, log)
	sess := reg.Start("u1")

	time.Sleep(20 * time.Millisecond)
	reg.sweep()

	got, err := reg.Get("u1", sess.ID)
	require.NoError(t, err)
	assert.True(t, got.Ended())

	// The next pass drops it entirely.
	reg.sweep()
	_, err = reg.Get("u1", sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
