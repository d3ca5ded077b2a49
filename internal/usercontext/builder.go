// Package usercontext assembles immutable, versioned snapshots of a user's
// financial and conversational state for agent consumption.
package usercontext

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/plutus-ai/plutus/internal/finance"
	"github.com/plutus-ai/plutus/internal/memory"
	"github.com/plutus-ai/plutus/internal/model"
	"github.com/plutus-ai/plutus/pkg/logger"
	"github.com/plutus-ai/plutus/pkg/metrics"
)

const recentInsightLimit = 20

// Builder fetches upstream financial data, folds in stored insights, and
// persists the result as the next context version for the user. Concurrent
// builds for the same user are coalesced into one upstream round trip.
type Builder struct {
	provider finance.Provider
	store    memory.Store
	log      *logger.Logger
	ttl      time.Duration

	group singleflight.Group

	mu    sync.Mutex
	fresh map[string]freshEntry
}

type freshEntry struct {
	snapshot *model.UserContext
	builtAt  time.Time
}

// NewBuilder creates a context builder. ttl bounds how long a built snapshot
// is served without returning upstream.
func NewBuilder(provider finance.Provider, store memory.Store, ttl time.Duration, log *logger.Logger) *Builder {
	return &Builder{
		provider: provider,
		store:    store,
		log:      log,
		ttl:      ttl,
		fresh:    make(map[string]freshEntry),
	}
}

// Build returns a context snapshot for the user. A snapshot younger than the
// TTL is reused unless forceRefresh is set; a forced build always persists a
// new version, even when the payload is unchanged. On upstream failure the
// error wraps finance.ErrUpstreamUnavailable; callers decide whether to fall
// back to Latest.
func (b *Builder) Build(ctx context.Context, userID string, forceRefresh bool) (*model.UserContext, error) {
	if !forceRefresh {
		if uc := b.cached(userID); uc != nil {
			return uc, nil
		}
	}

	v, err, shared := b.group.Do(userID, func() (interface{}, error) {
		return b.build(ctx, userID, forceRefresh)
	})
	if err != nil {
		metrics.ContextBuildsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	if shared {
		b.log.Debug("context build coalesced", zap.String("user_id", userID))
	}
	metrics.ContextBuildsTotal.WithLabelValues("success").Inc()
	return v.(*model.UserContext), nil
}

// Latest returns the newest persisted snapshot without touching upstream.
// Used as the stale fallback when the financial collaborator is down.
func (b *Builder) Latest(ctx context.Context, userID string) (*model.UserContext, error) {
	return b.store.LatestContext(ctx, userID)
}

func (b *Builder) cached(userID string) *model.UserContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.fresh[userID]
	if !ok || time.Since(entry.builtAt) > b.ttl {
		return nil
	}
	return entry.snapshot
}

func (b *Builder) build(ctx context.Context, userID string, force bool) (*model.UserContext, error) {
	start := time.Now()

	var (
		accounts  []model.Account
		balances  *finance.Balances
		goals     []model.Goal
		portfolio *finance.Portfolio
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		accounts, err = b.provider.Accounts(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		balances, err = b.provider.Balances(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		goals, err = b.provider.Goals(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		portfolio, err = b.provider.Portfolio(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		b.log.Warn("context build failed upstream",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}

	insights, err := b.store.RecentInsights(ctx, userID, recentInsightLimit)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		// Insights enrich the snapshot but are not load bearing.
		b.log.Warn("insight lookup failed during context build",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		insights = nil
	}

	snapshot := assemble(userID, accounts, balances, goals, portfolio, insights)

	// Only implicit rebuilds dedup on unchanged payloads; an explicit
	// refresh always mints the next version.
	if !force {
		latest, err := b.store.LatestContext(ctx, userID)
		if err == nil && snapshot.PayloadEqual(latest) {
			b.remember(userID, latest)
			return latest, nil
		}
		if err != nil && !errors.Is(err, memory.ErrNotFound) {
			return nil, err
		}
	}

	version, err := b.store.AppendContext(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	b.log.Info("context version built",
		zap.String("user_id", userID),
		zap.Uint64("version", version),
		zap.Int("accounts", len(accounts)),
		zap.Int("goals", len(goals)),
		zap.Int("insights", len(insights)),
		zap.Duration("duration", time.Since(start)),
	)
	b.remember(userID, snapshot)
	return snapshot, nil
}

func (b *Builder) remember(userID string, uc *model.UserContext) {
	b.mu.Lock()
	b.fresh[userID] = freshEntry{snapshot: uc, builtAt: time.Now()}
	b.mu.Unlock()
}

// Invalidate drops the freshness entry so the next Build returns upstream.
func (b *Builder) Invalidate(userID string) {
	b.mu.Lock()
	delete(b.fresh, userID)
	b.mu.Unlock()
}

// assemble folds raw upstream data into a deterministic snapshot. Accounts
// are sorted by id so identical inputs always produce an identical payload.
func assemble(userID string, accounts []model.Account, balances *finance.Balances, goals []model.Goal, portfolio *finance.Portfolio, insights []model.Insight) *model.UserContext {
	sorted := append([]model.Account(nil), accounts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var netWorth, liquid, debt, invested float64
	for _, a := range sorted {
		netWorth += a.Balance
		switch a.Type {
		case "checking", "savings":
			liquid += a.Balance
		case "investment":
			invested += a.Balance
		case "credit", "loan":
			if a.Balance < 0 {
				debt += -a.Balance
			}
		}
	}
	if portfolio != nil && portfolio.TotalValue > invested {
		invested = portfolio.TotalValue
	}

	snap := model.FinancialSnapshot{
		NetWorth:        netWorth,
		LiquidAssets:    liquid,
		TotalDebt:       debt,
		InvestmentTotal: invested,
		Accounts:        sorted,
	}
	if balances != nil {
		snap.MonthlyIncome = balances.MonthlyIncome
		snap.MonthlyExpenses = balances.MonthlyExpenses
	}
	snap.WealthScore = WealthScore(snap)

	return &model.UserContext{
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Financial: snap,
		Goals:     append([]model.Goal(nil), goals...),
		Insights:  append([]model.Insight(nil), insights...),
	}
}
