package observed

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/saadjs/kcal-core/internal/model"
)

// State is the lifecycle of one optimistic mutation. Committed and Reverted
// are terminal.
type State string

const (
	StateIdle      State = "idle"
	StateApplying  State = "applying"
	StateCommitted State = "committed"
	StateReverted  State = "reverted"
)

type Kind string

const (
	KindLog    Kind = "log"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindGoals  Kind = "goals"
)

// Mutation records what happened to the last change of a collection.
type Mutation struct {
	Kind  Kind      `json:"kind"`
	ID    uuid.UUID `json:"id,omitempty"`
	State State     `json:"state"`
	Err   error     `json:"-"`
	At    time.Time `json:"at"`
}

var transitions = map[State][]State{
	StateIdle:     {StateApplying},
	StateApplying: {StateCommitted, StateReverted},
}

func (m *Mutation) advance(to State) {
	if !slices.Contains(transitions[m.State], to) {
		panic(fmt.Sprintf("observed: invalid mutation transition %s -> %s", m.State, to))
	}
	m.State = to
}

// snapshot is the exact pre-mutation view of a day.
type snapshot struct {
	logs   []model.FoodLog
	totals model.DailyNutritionTotals
}

func (d *Day) takeSnapshot() snapshot {
	return snapshot{logs: slices.Clone(d.logs), totals: d.totals}
}

func (d *Day) restore(s snapshot) {
	d.logs = s.logs
	d.totals = s.totals
}

func (d *Day) indexOf(id uuid.UUID) int {
	return slices.IndexFunc(d.logs, func(f model.FoodLog) bool { return f.ID == id })
}

func (d *Day) add(f model.FoodLog) {
	d.logs = append(d.logs, f)
	model.SortFoodLogs(d.logs)
	d.totals.Add(f)
}

func (d *Day) remove(id uuid.UUID) (model.FoodLog, bool) {
	i := d.indexOf(id)
	if i < 0 {
		return model.FoodLog{}, false
	}
	f := d.logs[i]
	d.logs = slices.Delete(d.logs, i, i+1)
	d.totals.Subtract(f)
	return f, true
}
