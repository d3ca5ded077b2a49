package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plutus-ai/plutus/internal/agent"
	"github.com/plutus-ai/plutus/internal/finance"
	"github.com/plutus-ai/plutus/internal/memory"
	"github.com/plutus-ai/plutus/internal/model"
	"github.com/plutus-ai/plutus/internal/usercontext"
	"github.com/plutus-ai/plutus/pkg/logger"
)

type stubProvider struct {
	fail atomic.Bool
}

func (p *stubProvider) check() error {
	if p.fail.Load() {
		return finance.ErrUpstreamUnavailable
	}
	return nil
}

func (p *stubProvider) Accounts(ctx context.Context, userID string) ([]model.Account, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return []model.Account{
		{ID: "a1", Name: "Checking", Type: "checking", Balance: 3000},
		{ID: "a2", Name: "Savings", Type: "savings", Balance: 18500},
		{ID: "a3", Name: "Brokerage", Type: "investment", Balance: 52000},
	}, nil
}

func (p *stubProvider) Balances(ctx context.Context, userID string) (*finance.Balances, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return &finance.Balances{MonthlyIncome: 6000, MonthlyExpenses: 4500}, nil
}

func (p *stubProvider) Goals(ctx context.Context, userID string) ([]model.Goal, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (p *stubProvider) Portfolio(ctx context.Context, userID string) (*finance.Portfolio, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return &finance.Portfolio{TotalValue: 52000, Allocations: map[string]float64{"equities": 0.8, "cash": 0.2}}, nil
}

// slowAgent delays a wrapped agent to control completion order in tests.
type slowAgent struct {
	agent.Agent
	delay time.Duration
}

func (s slowAgent) Run(ctx context.Context, message string, uc *model.UserContext, prior map[agent.Name]*agent.Result) *agent.Result {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return &agent.Result{Agent: s.Name(), Err: ctx.Err()}
	}
	return s.Agent.Run(ctx, message, uc, prior)
}

func defaultAgents() []agent.Agent {
	return []agent.Agent{
		agent.NewFinancialAnalyzer(nil),
		agent.NewGoalExtractor(),
		agent.NewRiskAssessor(nil),
		agent.NewRecommender(nil),
	}
}

func newTestOrchestrator(t *testing.T, provider finance.Provider, store memory.Store, agents []agent.Agent, timeout time.Duration) *Orchestrator {
	t.Helper()
	log := logger.NewNop()
	builder := usercontext.NewBuilder(provider, store, 0, log)
	router, err := NewRouter(DefaultRoutingConfig(), allAgentNames, nil)
	require.NoError(t, err)
	return New(router, agents, builder, store, timeout, log)
}

func turnInput(content string) TurnInput {
	return TurnInput{UserID: "u1", SessionID: "s1", MessageID: "m1", Content: content}
}

func TestProcessTurnGoalPlanning(t *testing.T) {
	store := memory.NewMemStore()
	o := newTestOrchestrator(t, &stubProvider{}, store, defaultAgents(), 5*time.Second)
	ctx := context.Background()

	res, err := o.ProcessTurn(ctx, turnInput("I want to save $60,000 for a house down payment in 4 years"))
	require.NoError(t, err)

	assert.Contains(t, res.Reply, "$1250 per month")
	assert.Equal(t, "goal_planning", res.Metadata.Category)
	assert.Contains(t, res.Metadata.AgentsInvoked, string(agent.Recommendation))
	assert.False(t, res.Metadata.Degraded)
	assert.False(t, res.Metadata.DegradedContext)
	assert.Equal(t, uint64(1), res.Metadata.ContextVersion)
	assert.Greater(t, res.Metadata.Confidence, 0.0)
	assert.LessOrEqual(t, res.Metadata.Confidence, 1.0)

	// The recommender saw all three dependency results.
	rec := res.Results[agent.Recommendation]
	require.True(t, rec.Success())
	assert.Equal(t, 3, rec.Findings["dependencies_used"])

	// Turn and insight were persisted before the call returned.
	msgs, err := store.SessionMessages(ctx, "u1", "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	require.NotNil(t, msgs[1].Metadata)
	assert.Equal(t, "goal_planning", msgs[1].Metadata.Category)

	insights, err := store.RecentInsights(ctx, "u1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, insights)
	assert.Equal(t, model.InsightGoal, insights[0].Type)
}

func TestProcessTurnNetWorthQuestion(t *testing.T) {
	store := memory.NewMemStore()
	o := newTestOrchestrator(t, &stubProvider{}, store, defaultAgents(), 5*time.Second)

	res, err := o.ProcessTurn(context.Background(), turnInput("What's my net worth?"))
	require.NoError(t, err)

	assert.Equal(t, DefaultCategory, res.Metadata.Category)
	assert.Equal(t, []string{string(agent.FinancialAnalysis)}, res.Metadata.AgentsInvoked)
	assert.Contains(t, res.Reply, "$73500")
}

// brokenAgent always fails, standing in for an unhealthy specialist.
type brokenAgent struct {
	agent.Agent
}

func (b brokenAgent) Run(ctx context.Context, message string, uc *model.UserContext, prior map[agent.Name]*agent.Result) *agent.Result {
	return &agent.Result{
		Agent: b.Name(),
		Err:   &agent.ExecutionError{Agent: b.Name(), Err: errors.New("model backend down")},
	}
}

func TestComprehensiveTurnSurvivesOneAgentFailure(t *testing.T) {
	agents := []agent.Agent{
		agent.NewFinancialAnalyzer(nil),
		agent.NewGoalExtractor(),
		brokenAgent{Agent: agent.NewRiskAssessor(nil)},
		agent.NewRecommender(nil),
	}
	store := memory.NewMemStore()
	o := newTestOrchestrator(t, &stubProvider{}, store, agents, 5*time.Second)

	res, err := o.ProcessTurn(context.Background(), turnInput("What should I do with my finances?"))
	require.NoError(t, err)

	assert.Equal(t, "comprehensive", res.Metadata.Category)
	assert.Len(t, res.Metadata.AgentsInvoked, 4)
	assert.Equal(t, []string{string(agent.RiskAssessment)}, res.Metadata.FailedAgents)
	assert.False(t, res.Metadata.Degraded)

	// The reply keeps the surviving agents' content and drops the risk part.
	assert.Contains(t, res.Reply, "net worth")
	assert.NotContains(t, res.Reply, "risk level")
	assert.True(t, res.Results[agent.GoalExtraction].Success())
	assert.True(t, res.Results[agent.Recommendation].Success())
}

func TestSynthesisOrderIgnoresCompletionOrder(t *testing.T) {
	// Financial analysis finishes last but must still lead the reply.
	agents := []agent.Agent{
		slowAgent{Agent: agent.NewFinancialAnalyzer(nil), delay: 80 * time.Millisecond},
		agent.NewGoalExtractor(),
		agent.NewRiskAssessor(nil),
		agent.NewRecommender(nil),
	}
	store := memory.NewMemStore()
	o := newTestOrchestrator(t, &stubProvider{}, store, agents, 5*time.Second)

	res, err := o.ProcessTurn(context.Background(), turnInput("is my portfolio allocation too risky?"))
	require.NoError(t, err)

	finPos := strings.Index(res.Reply, "net worth")
	riskPos := strings.Index(res.Reply, "risk level")
	require.GreaterOrEqual(t, finPos, 0)
	require.GreaterOrEqual(t, riskPos, 0)
	assert.Less(t, finPos, riskPos, "financial narrative must precede risk narrative")
}

func TestStaleContextFallback(t *testing.T) {
	provider := &stubProvider{}
	store := memory.NewMemStore()
	o := newTestOrchestrator(t, provider, store, defaultAgents(), 5*time.Second)
	ctx := context.Background()

	first, err := o.ProcessTurn(ctx, turnInput("how is my budget looking?"))
	require.NoError(t, err)
	require.False(t, first.Metadata.DegradedContext)

	provider.fail.Store(true)

	second, err := o.ProcessTurn(ctx, turnInput("and my expenses?"))
	require.NoError(t, err)
	assert.True(t, second.Metadata.DegradedContext)
	assert.False(t, second.Metadata.Degraded, "stale context still supports a real reply")
	assert.Equal(t, first.Metadata.ContextVersion, second.Metadata.ContextVersion)
	assert.NotEqual(t, degradedReply, second.Reply)
}

func TestAllAgentsFailedDegradesGracefully(t *testing.T) {
	agents := []agent.Agent{
		brokenAgent{Agent: agent.NewFinancialAnalyzer(nil)},
		brokenAgent{Agent: agent.NewGoalExtractor()},
		brokenAgent{Agent: agent.NewRiskAssessor(nil)},
		brokenAgent{Agent: agent.NewRecommender(nil)},
	}
	store := memory.NewMemStore()
	o := newTestOrchestrator(t, &stubProvider{}, store, agents, 5*time.Second)

	res, err := o.ProcessTurn(context.Background(), turnInput("What should I do with my finances?"))
	require.NoError(t, err)
	assert.True(t, res.Metadata.Degraded)
	assert.False(t, res.Metadata.DegradedContext)
	assert.Equal(t, degradedReply, res.Reply)
	assert.Len(t, res.Metadata.FailedAgents, 4)

	// The degraded turn is still recorded.
	msgs, err := store.SessionMessages(context.Background(), "u1", "s1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestNoStoredContextFailsTurn(t *testing.T) {
	provider := &stubProvider{}
	provider.fail.Store(true)
	store := memory.NewMemStore()
	o := newTestOrchestrator(t, provider, store, defaultAgents(), 5*time.Second)

	// The upstream is down and no version was ever persisted, so there is
	// nothing to answer from.
	_, err := o.ProcessTurn(context.Background(), turnInput("hello there"))
	require.Error(t, err)
	assert.ErrorIs(t, err, finance.ErrUpstreamUnavailable)

	msgs, err := store.SessionMessages(context.Background(), "u1", "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDeadlineProducesPartialResults(t *testing.T) {
	agents := []agent.Agent{
		slowAgent{Agent: agent.NewFinancialAnalyzer(nil), delay: 300 * time.Millisecond},
		agent.NewGoalExtractor(),
		agent.NewRiskAssessor(nil),
		agent.NewRecommender(nil),
	}
	store := memory.NewMemStore()
	o := newTestOrchestrator(t, &stubProvider{}, store, agents, 100*time.Millisecond)

	res, err := o.ProcessTurn(context.Background(), turnInput("I want to save $10k in 2 years"))
	require.NoError(t, err)

	assert.False(t, res.Metadata.Degraded, "fast agents still contribute")
	assert.Contains(t, res.Metadata.FailedAgents, string(agent.FinancialAnalysis))
	assert.True(t, res.Results[agent.GoalExtraction].Success())
}

func TestPlanRespectsDependencies(t *testing.T) {
	store := memory.NewMemStore()
	o := newTestOrchestrator(t, &stubProvider{}, store, defaultAgents(), time.Second)

	waves, err := o.plan([]string{string(agent.Recommendation)})
	require.NoError(t, err)
	require.Len(t, waves, 2)
	assert.ElementsMatch(t, []agent.Name{agent.FinancialAnalysis, agent.GoalExtraction, agent.RiskAssessment}, waves[0])
	assert.Equal(t, []agent.Name{agent.Recommendation}, waves[1])
}

type flakyStore struct {
	memory.Store
	tripped atomic.Bool
}

func (f *flakyStore) AppendMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	if f.tripped.CompareAndSwap(false, true) {
		return 0, &memory.PersistenceError{Op: "append message", Err: errors.New("transient outage")}
	}
	return f.Store.AppendMessage(ctx, msg)
}

// stuckStore hangs every message append until the caller's context expires.
type stuckStore struct {
	memory.Store
}

func (s *stuckStore) AppendMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	<-ctx.Done()
	return 0, &memory.PersistenceError{Op: "append message", Err: ctx.Err()}
}

func TestHungStoreDoesNotBlockReply(t *testing.T) {
	store := &stuckStore{Store: memory.NewMemStore()}
	o := newTestOrchestrator(t, &stubProvider{}, store, defaultAgents(), 5*time.Second)
	o.persistTimeout = 100 * time.Millisecond
	o.retryBackoff = 10 * time.Millisecond

	start := time.Now()
	res, err := o.ProcessTurn(context.Background(), turnInput("how is my budget?"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Reply)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPersistenceFailureNeverBlocksReply(t *testing.T) {
	inner := memory.NewMemStore()
	store := &flakyStore{Store: inner}
	o := newTestOrchestrator(t, &stubProvider{}, store, defaultAgents(), 5*time.Second)

	res, err := o.ProcessTurn(context.Background(), turnInput("how am I doing on spending?"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Reply)

	// The background retry lands shortly after the reply.
	assert.Eventually(t, func() bool {
		msgs, err := inner.SessionMessages(context.Background(), "u1", "s1", 0)
		return err == nil && len(msgs) == 2
	}, 2*time.Second, 20*time.Millisecond)
}
