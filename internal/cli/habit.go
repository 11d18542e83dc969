package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/logger"
	"github.com/julianstephens/repcam/internal/models"
	"github.com/julianstephens/repcam/internal/notifier"
	"github.com/julianstephens/repcam/internal/store"
	"github.com/julianstephens/repcam/internal/tui"
	"github.com/julianstephens/repcam/internal/utils"
)

type SetupCmd struct {
	Name        string `help:"Habit name. Omit to fill in an interactive form."`
	Description string `help:"What the movement looks like."`
	Goal        int    `help:"Reps required per day." default:"${default_goal}"`
	Duration    int    `help:"Seconds the movement must be held to count one rep." default:"${default_duration}"`
	Deadline    string `help:"Daily deadline (HH:MM)." default:"${default_deadline}"`
	Yes         bool   `short:"y" help:"Replace an existing habit without asking."`
}

func (c *SetupCmd) Run(ctx *Context) error {
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}
	current := st.Snapshot().Habit

	var habit models.Habit
	if c.Name == "" {
		fm := tui.NewHabitFormModel(current)
		if err := tui.NewHabitForm(fm).Run(); err != nil {
			return fmt.Errorf("setup cancelled: %w", err)
		}
		if habit, err = fm.Apply(models.Habit{}); err != nil {
			return err
		}
	} else {
		habit = models.Habit{
			Name:             c.Name,
			Description:      c.Description,
			DailyGoal:        c.Goal,
			MovementDuration: c.Duration,
			DeadlineTime:     c.Deadline,
		}
	}

	if current != nil && !c.Yes {
		ok, err := ctx.confirm(fmt.Sprintf("Replace %q? Its streak and history will be cleared.", current.Name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Setup cancelled.")
			return nil
		}
	}
	if current != nil {
		ctx.PerformAutomaticBackup()
	}

	if err := st.SetHabit(habit); err != nil {
		return fmt.Errorf("failed to save habit: %w", err)
	}
	fmt.Printf("✓ Habit saved: %s (%d per day, hold %ds, deadline %s)\n",
		habit.Name, habit.DailyGoal, habit.MovementDuration, habit.DeadlineTime)
	fmt.Println("Next: run 'repcam calibrate' and perform the movement once in front of the camera.")
	return nil
}

type habitStatus struct {
	Habit          string `json:"habit"`
	Description    string `json:"description,omitempty"`
	Day            string `json:"day"`
	DayOffset      int    `json:"day_offset"`
	Count          int    `json:"count"`
	Goal           int    `json:"goal"`
	Complete       bool   `json:"complete"`
	Streak         int    `json:"streak"`
	LongestStreak  int    `json:"longest_streak"`
	Deadline       string `json:"deadline"`
	DeadlinePassed bool   `json:"deadline_passed"`
	TimeLeft       string `json:"time_left,omitempty"`
	HoldSeconds    int    `json:"hold_seconds"`
	Calibrated     bool   `json:"calibrated"`
}

func buildStatus(ctx *Context, st *store.Store) (habitStatus, error) {
	state := st.Snapshot()
	if state.Habit == nil {
		return habitStatus{}, store.ErrNoHabit
	}
	h := state.Habit
	out := habitStatus{
		Habit:         h.Name,
		Description:   h.Description,
		Day:           st.Today(),
		DayOffset:     st.DayOffset(),
		Count:         state.TodayCompletedCount,
		Goal:          h.DailyGoal,
		Complete:      st.IsTodayComplete(),
		Streak:        state.Streak,
		LongestStreak: state.LongestStreak,
		Deadline:      h.DeadlineTime,
		HoldSeconds:   h.MovementDuration,
		Calibrated:    h.HasSignature(),
	}
	passed, err := st.DeadlinePassed()
	if err != nil {
		return habitStatus{}, err
	}
	out.DeadlinePassed = passed
	if !passed {
		left, err := utils.UntilDeadline(ctx.now(), h.DeadlineTime, st.Location())
		if err != nil {
			return habitStatus{}, err
		}
		out.TimeLeft = left.Truncate(time.Minute).String()
	}
	return out, nil
}

type StatusCmd struct {
	JSON bool `help:"Print machine-readable JSON."`
}

func (c *StatusCmd) Run(ctx *Context) error {
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}
	s, err := buildStatus(ctx, st)
	if errors.Is(err, store.ErrNoHabit) {
		fmt.Println("No habit configured. Run 'repcam setup' first.")
		return nil
	}
	if err != nil {
		return err
	}

	if c.JSON {
		jsonBytes, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Println(string(jsonBytes))
		return nil
	}

	fmt.Printf("%s (%s)\n", s.Habit, s.Day)
	if s.Description != "" {
		fmt.Printf("  %s\n", s.Description)
	}
	mark := " "
	if s.Complete {
		mark = "✓"
	}
	fmt.Printf("  [%s] Today:    %d / %d\n", mark, s.Count, s.Goal)
	fmt.Printf("      Streak:   %d (longest %d)\n", s.Streak, s.LongestStreak)
	switch {
	case s.Complete:
		fmt.Printf("      Deadline: %s\n", s.Deadline)
	case s.DeadlinePassed:
		fmt.Printf("      Deadline: %s (missed)\n", s.Deadline)
	default:
		fmt.Printf("      Deadline: %s (%s left)\n", s.Deadline, s.TimeLeft)
	}
	fmt.Printf("      Hold:     %ds\n", s.HoldSeconds)
	if !s.Calibrated {
		fmt.Println("      Not calibrated: any sustained motion counts. Run 'repcam calibrate'.")
	}
	if s.DayOffset != 0 {
		fmt.Printf("      Day offset: %+d\n", s.DayOffset)
	}
	return nil
}

type DoneCmd struct{}

func (c *DoneCmd) Run(ctx *Context) error {
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}
	ev, counted, err := st.RecordCompletion(true)
	if err != nil {
		return err
	}
	if !counted {
		fmt.Println("Daily goal already reached. Nothing recorded.")
		return nil
	}

	settings, err := ctx.Settings()
	if err != nil {
		return err
	}
	disp := notifier.FromSettings(settings, ctx.Config)
	disp.Dispatch(ev)
	if err := disp.Close(); err != nil {
		logger.Warn("Failed to close notification sinks", "error", err)
	}

	fmt.Printf("✓ %s\n", notifier.Message(ev))
	return nil
}

type DurationCmd struct {
	Seconds int `arg:"" help:"Seconds the movement must be held to count one rep."`
}

func (c *DurationCmd) Run(ctx *Context) error {
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}
	if err := st.SetMovementDuration(c.Seconds); err != nil {
		return err
	}
	fmt.Printf("✓ Hold duration set to %ds\n", c.Seconds)
	return nil
}

type ResetCmd struct {
	Yes bool `short:"y" help:"Skip the confirmation prompt."`
}

func (c *ResetCmd) Run(ctx *Context) error {
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}
	if st.Snapshot().Habit == nil {
		fmt.Println("No habit configured. Nothing to reset.")
		return nil
	}

	if !c.Yes {
		fmt.Println("⚠️  WARNING: This deletes the habit, its streak and every daily record.")
		ok, err := ctx.confirm("Continue?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	ctx.PerformAutomaticBackup()
	if err := st.ResetHabit(); err != nil {
		return err
	}
	fmt.Println("✓ Habit reset. Run 'repcam setup' to start again.")
	return nil
}

type ImportCmd struct {
	File string `arg:"" type:"existingfile" help:"Exported habit state (JSON)."`
	Yes  bool   `short:"y" help:"Replace an existing habit without asking."`
}

func (c *ImportCmd) Run(ctx *Context) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.File, err)
	}

	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}
	if current := st.Snapshot().Habit; current != nil && !c.Yes {
		ok, err := ctx.confirm(fmt.Sprintf("Replace %q with the imported habit?", current.Name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Import cancelled.")
			return nil
		}
	}

	ctx.PerformAutomaticBackup()
	if err := st.Import(data); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	state := st.Snapshot()
	fmt.Printf("✓ Imported %q with %d daily record(s), streak %d\n",
		state.Habit.Name, len(state.DailyRecords), state.Streak)
	return nil
}

type HistoryCmd struct {
	Days int    `help:"Number of days to show, ending today." default:"7"`
	From string `help:"First day (YYYY-MM-DD). Overrides --days."`
	To   string `help:"Last day (YYYY-MM-DD). Defaults to today."`
	JSON bool   `help:"Print machine-readable JSON."`
}

func (c *HistoryCmd) Run(ctx *Context) error {
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}

	to := c.To
	if to == "" {
		to = st.Today()
	}
	from := c.From
	if from == "" {
		if c.Days < 1 {
			return fmt.Errorf("--days must be at least 1")
		}
		if from, err = utils.ShiftDay(to, -(c.Days - 1)); err != nil {
			return err
		}
	}
	for _, d := range []string{from, to} {
		if _, err := utils.ShiftDay(d, 0); err != nil {
			return err
		}
	}

	events, err := ctx.Store.ListCompletions(from, to)
	if err != nil {
		return fmt.Errorf("failed to list completions: %w", err)
	}
	if events == nil {
		events = []models.CompletionEvent{}
	}

	if c.JSON {
		jsonBytes, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}
		fmt.Println(string(jsonBytes))
		return nil
	}

	if len(events) == 0 {
		fmt.Printf("No completions between %s and %s.\n", from, to)
		return nil
	}

	fmt.Printf("Completions %s to %s:\n\n", from, to)
	day := ""
	for _, ev := range events {
		if ev.Date != day {
			day = ev.Date
			fmt.Printf("%s\n", day)
		}
		source := "camera"
		if ev.Manual {
			source = "manual"
		}
		goal := ""
		if ev.GoalReached && ev.Count == ev.Goal {
			goal = "  ✓ goal"
		}
		fmt.Printf("  %s  %d/%d  %-6s%s\n",
			ev.At.In(st.Location()).Format(constants.TimeFormat),
			ev.Count, ev.Goal, source, goal)
	}
	return nil
}
