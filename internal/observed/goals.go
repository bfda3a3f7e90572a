package observed

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/saadjs/kcal-core/internal/model"
)

type goalsState struct {
	flight *semaphore.Weighted

	mu      sync.RWMutex
	current *model.NutritionGoals
	last    Mutation
}

func (c *Coordinator) goalsFor(scope string) *goalsState {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.goals[scope]
	if !ok {
		g = &goalsState{flight: semaphore.NewWeighted(1), last: Mutation{State: StateIdle}}
		c.goals[scope] = g
	}
	return g
}

func cloneGoals(g *model.NutritionGoals) *model.NutritionGoals {
	if g == nil {
		return nil
	}
	cp := *g
	return &cp
}

// Goals returns the observed goals of scope, or nil when none are known.
func (c *Coordinator) Goals(scope string) *model.NutritionGoals {
	g := c.goalsFor(strings.TrimSpace(scope))
	g.mu.RLock()
	defer g.mu.RUnlock()
	return cloneGoals(g.current)
}

func (c *Coordinator) LastGoalsMutation(scope string) Mutation {
	g := c.goalsFor(strings.TrimSpace(scope))
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last
}

// LoadGoals refreshes the observed goals of scope from the store.
func (c *Coordinator) LoadGoals(ctx context.Context, scope string) (*model.NutritionGoals, error) {
	scope = strings.TrimSpace(scope)
	g := c.goalsFor(scope)
	if err := g.flight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.flight.Release(1)

	stored, err := c.gw.FetchGoals(ctx, scope)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.current = stored
	g.mu.Unlock()
	return cloneGoals(stored), nil
}

// UpdateGoals shows next immediately and persists it, restoring the
// previous goals if the write fails.
func (c *Coordinator) UpdateGoals(ctx context.Context, next model.NutritionGoals) (model.NutritionGoals, error) {
	next.Scope = strings.TrimSpace(next.Scope)
	g := c.goalsFor(next.Scope)
	if err := g.flight.Acquire(ctx, 1); err != nil {
		return model.NutritionGoals{}, err
	}
	defer g.flight.Release(1)
	if err := ctx.Err(); err != nil {
		return model.NutritionGoals{}, err
	}

	g.mu.Lock()
	prev := cloneGoals(g.current)
	g.last = Mutation{Kind: KindGoals, State: StateIdle, At: c.now()}
	g.last.advance(StateApplying)
	g.current = cloneGoals(&next)
	g.mu.Unlock()

	saved, err := c.gw.SaveGoals(context.WithoutCancel(ctx), next)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.current = prev
		g.last.Err = err
		g.last.advance(StateReverted)
		c.log.Warn("goals update reverted", zap.String("scope", next.Scope), zap.Error(err))
		return model.NutritionGoals{}, err
	}
	g.current = cloneGoals(&saved)
	g.last.advance(StateCommitted)
	return saved, nil
}
