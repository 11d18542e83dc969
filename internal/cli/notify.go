package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/julianstephens/repcam/internal/models"
	"github.com/julianstephens/repcam/internal/notifier"
)

type NotifyTestCmd struct {
	GoalReached bool `help:"Send a goal-reached event instead of a single rep."`
}

// testEvent builds a synthetic event from the current habit so sinks see
// realistic values. Nothing is recorded.
func (c *NotifyTestCmd) testEvent(ctx *Context) models.CompletionEvent {
	ev := models.CompletionEvent{
		ID:        uuid.NewString(),
		HabitName: "Test habit",
		Count:     1,
		Goal:      3,
		Streak:    1,
		At:        ctx.now(),
		Manual:    true,
	}
	if st, err := ctx.HabitStore(); err == nil {
		state := st.Snapshot()
		ev.Date = st.Today()
		if state.Habit != nil {
			ev.HabitName = state.Habit.Name
			ev.Goal = state.Habit.DailyGoal
			ev.Count = min(state.TodayCompletedCount+1, ev.Goal)
			ev.Streak = state.Streak
		}
	}
	if c.GoalReached {
		ev.Count = ev.Goal
		ev.GoalReached = true
		ev.Streak = max(ev.Streak, 1)
	}
	return ev
}

func (c *NotifyTestCmd) Run(ctx *Context) error {
	settings, err := ctx.Settings()
	if err != nil {
		return err
	}
	disp := notifier.FromSettings(settings, ctx.Config)
	defer disp.Close()

	if len(disp.Sinks()) == 0 {
		fmt.Println("No notification sinks are enabled. See 'repcam settings --help'.")
		return nil
	}

	ev := c.testEvent(ctx)
	fmt.Printf("Sending: %s\n\n", notifier.Message(ev))

	results := disp.DeliverNow(ev)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := false
	for _, name := range names {
		if err := results[name]; err != nil {
			fmt.Printf("❌ %s: %v\n", name, err)
			failed = true
		} else {
			fmt.Printf("✓ %s: delivered\n", name)
		}
	}
	if failed {
		return errors.New("one or more sinks failed")
	}
	return nil
}
