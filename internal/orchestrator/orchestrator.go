package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plutus-ai/plutus/internal/agent"
	"github.com/plutus-ai/plutus/internal/finance"
	"github.com/plutus-ai/plutus/internal/memory"
	"github.com/plutus-ai/plutus/internal/model"
	"github.com/plutus-ai/plutus/internal/usercontext"
	"github.com/plutus-ai/plutus/pkg/logger"
	"github.com/plutus-ai/plutus/pkg/metrics"
)

// ErrAllAgentsFailed is wrapped into the degraded turn metadata when no
// routed agent produced a usable result.
var ErrAllAgentsFailed = errors.New("all agents failed")

// Orchestrator owns the turn lifecycle: route, build context, schedule
// agents, synthesize, persist. It is safe for concurrent use across users;
// ordering within a user is the caller's concern.
type Orchestrator struct {
	router  *Router
	agents  map[agent.Name]agent.Agent
	builder *usercontext.Builder
	store   memory.Store
	log     *logger.Logger

	turnTimeout    time.Duration
	retryBackoff   time.Duration
	persistTimeout time.Duration
}

// TurnInput is one user message to process.
type TurnInput struct {
	UserID    string
	SessionID string
	MessageID string
	Content   string
}

// TurnResult is the synthesized outcome of one turn.
type TurnResult struct {
	Reply    string
	Decision model.RoutingDecision
	Results  map[agent.Name]*agent.Result
	Metadata model.TurnMetadata
	Insights []model.Insight
}

// New creates an orchestrator over the given agents.
func New(router *Router, agents []agent.Agent, builder *usercontext.Builder, store memory.Store, turnTimeout time.Duration, log *logger.Logger) *Orchestrator {
	byName := make(map[agent.Name]agent.Agent, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}
	return &Orchestrator{
		router:         router,
		agents:         byName,
		builder:        builder,
		store:          store,
		log:            log,
		turnTimeout:    turnTimeout,
		retryBackoff:   250 * time.Millisecond,
		persistTimeout: 5 * time.Second,
	}
}

// ProcessTurn runs one conversational turn end to end. The reply is returned
// even when the context is stale, some agents failed, or persistence is still
// being retried. The turn errors when no context can be produced at all: an
// unavailable upstream with no stored version to fall back to.
func (o *Orchestrator) ProcessTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	start := time.Now()
	log := o.log.WithTurn(in.UserID, in.SessionID, in.MessageID)

	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	uc, degradedContext, err := o.buildContext(ctx, in.UserID, log)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	decision := o.router.Route(in.Content)
	log.Info("turn routed",
		zap.String("category", decision.Category),
		zap.Strings("agents", decision.Agents),
		zap.String("mode", string(decision.Mode)),
	)

	waves, err := o.plan(decision.Agents)
	if err != nil {
		return nil, err
	}

	results := o.runWaves(ctx, waves, in.Content, uc)

	reply, confidence, failedAgents, degraded := synthesize(decision, results)
	if degraded {
		log.Warn("turn degraded", zap.Error(ErrAllAgentsFailed), zap.Strings("failed", failedAgents))
	}

	var insights []model.Insight
	invoked := make([]string, 0, len(results))
	for _, wave := range waves {
		for _, name := range wave {
			invoked = append(invoked, string(name))
			if res := results[name]; res.Success() {
				insights = append(insights, res.Insights...)
			}
		}
	}

	meta := model.TurnMetadata{
		Category:        decision.Category,
		AgentsInvoked:   invoked,
		FailedAgents:    failedAgents,
		DegradedContext: degradedContext,
		Degraded:        degraded,
		Confidence:      confidence,
		LatencyMs:       time.Since(start).Milliseconds(),
	}
	if uc != nil {
		meta.ContextVersion = uc.Version
	}

	result := &TurnResult{
		Reply:    reply,
		Decision: decision,
		Results:  results,
		Metadata: meta,
		Insights: insights,
	}

	o.persistTurn(in, result, log)

	outcome := "success"
	if degraded {
		outcome = "degraded"
	}
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

// buildContext builds a fresh snapshot, falling back to the newest stored
// version when the financial upstream is unavailable. With no stored version
// to fall back to it errors and the turn fails.
func (o *Orchestrator) buildContext(ctx context.Context, userID string, log *logger.Logger) (*model.UserContext, bool, error) {
	uc, err := o.builder.Build(ctx, userID, false)
	if err == nil {
		return uc, false, nil
	}
	if !errors.Is(err, finance.ErrUpstreamUnavailable) {
		log.Error("context build failed", zap.Error(err))
		return nil, false, err
	}

	stale, staleErr := o.builder.Latest(ctx, userID)
	if staleErr != nil {
		log.Error("upstream unavailable and no stored context", zap.Error(err))
		return nil, false, fmt.Errorf("no context available for user: %w", err)
	}
	log.Warn("serving stale context",
		zap.Uint64("version", stale.Version),
		zap.Error(err),
	)
	return stale, true, nil
}

// plan expands the routed set with declared dependencies and orders it into
// waves: every agent in wave n depends only on agents in earlier waves.
func (o *Orchestrator) plan(routed []string) ([][]agent.Name, error) {
	selected := make(map[agent.Name]bool)
	var add func(n agent.Name) error
	add = func(n agent.Name) error {
		if selected[n] {
			return nil
		}
		a, ok := o.agents[n]
		if !ok {
			return fmt.Errorf("%w: agent %q not registered", ErrInvalidRoutingConfig, n)
		}
		selected[n] = true
		for _, dep := range a.Dependencies() {
			if err := add(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range routed {
		if err := add(agent.Name(name)); err != nil {
			return nil, err
		}
	}

	// Kahn's algorithm by levels.
	indegree := make(map[agent.Name]int, len(selected))
	for n := range selected {
		for _, dep := range o.agents[n].Dependencies() {
			if selected[dep] {
				indegree[n]++
			}
		}
	}

	var waves [][]agent.Name
	remaining := len(selected)
	for remaining > 0 {
		var wave []agent.Name
		for n := range selected {
			if indegree[n] == 0 {
				wave = append(wave, n)
			}
		}
		if len(wave) == 0 {
			return nil, fmt.Errorf("dependency cycle among agents")
		}
		sortNames(wave)
		for _, n := range wave {
			delete(selected, n)
			remaining--
			for m := range selected {
				for _, dep := range o.agents[m].Dependencies() {
					if dep == n {
						indegree[m]--
					}
				}
			}
		}
		waves = append(waves, wave)
	}
	return waves, nil
}

// runWaves executes each wave in parallel. A wave boundary is a join
// barrier: dependents see a stable prior-results map that includes every
// earlier agent, failed or not.
func (o *Orchestrator) runWaves(ctx context.Context, waves [][]agent.Name, message string, uc *model.UserContext) map[agent.Name]*agent.Result {
	results := make(map[agent.Name]*agent.Result)
	for _, wave := range waves {
		prior := make(map[agent.Name]*agent.Result, len(results))
		for k, v := range results {
			prior[k] = v
		}

		var mu sync.Mutex
		g := new(errgroup.Group)
		for _, name := range wave {
			a := o.agents[name]
			g.Go(func() error {
				res := agent.Execute(ctx, a, message, uc, prior)
				mu.Lock()
				results[a.Name()] = res
				mu.Unlock()
				return nil
			})
		}
		g.Wait()
	}
	return results
}

// persistTurn appends the user message, the assistant reply, and any emitted
// insights. The first attempt is synchronous but bounded, so reads after the
// reply usually see the turn while a hung store cannot hold the reply back;
// on failure one retry runs in the background after a backoff.
func (o *Orchestrator) persistTurn(in TurnInput, result *TurnResult, log *logger.Logger) {
	now := time.Now().UTC()
	records := []model.Message{
		{
			ID:        in.MessageID,
			SessionID: in.SessionID,
			UserID:    in.UserID,
			Role:      model.RoleUser,
			Content:   in.Content,
			CreatedAt: now,
		},
		{
			ID:        uuid.Must(uuid.NewV7()).String(),
			SessionID: in.SessionID,
			UserID:    in.UserID,
			Role:      model.RoleAssistant,
			Content:   result.Reply,
			Metadata:  &result.Metadata,
			CreatedAt: now,
		},
	}

	firstCtx, firstCancel := context.WithTimeout(context.Background(), o.persistTimeout)
	err := o.appendAll(firstCtx, records, result.Insights)
	firstCancel()
	if err == nil {
		metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()
		metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
		return
	}
	log.Warn("turn persistence failed, retrying once", zap.Error(err))

	go func() {
		time.Sleep(o.retryBackoff)
		ctx, cancel := context.WithTimeout(context.Background(), 2*o.persistTimeout)
		defer cancel()
		if err := o.appendAll(ctx, records, result.Insights); err != nil {
			log.Error("turn persistence failed permanently", zap.Error(err))
		}
	}()
}

func (o *Orchestrator) appendAll(ctx context.Context, records []model.Message, insights []model.Insight) error {
	for i := range records {
		if _, err := o.store.AppendMessage(ctx, &records[i]); err != nil {
			return err
		}
	}
	for i := range insights {
		if err := o.store.AppendInsight(ctx, &insights[i]); err != nil {
			return err
		}
		metrics.InsightsEmitted.WithLabelValues(string(insights[i].Type)).Inc()
	}
	return nil
}

func sortNames(names []agent.Name) {
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
}
