package cli

import (
	"encoding/json"
	"fmt"
)

type DebugCmd struct {
	DBPath    *DebugDBPathCmd    `cmd:"" help:"Show database path."`
	DayOffset *DebugDayOffsetCmd `cmd:"" help:"Shift 'today' by a number of days for testing rollover and streaks."`
	DumpState *DebugDumpStateCmd `cmd:"" help:"Dump the habit state as JSON."`
}

type DebugDBPathCmd struct{}

func (cmd *DebugDBPathCmd) Run(ctx *Context) error {
	return printJSON(map[string]string{
		"path": ctx.Store.GetConfigPath(),
	})
}

type DebugDayOffsetCmd struct {
	Days *int `arg:"" optional:"" help:"Days to add to the real date. 0 clears the offset. Omit to show it."`
}

func (cmd *DebugDayOffsetCmd) Run(ctx *Context) error {
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}
	if cmd.Days != nil {
		if err := st.SetDayOffset(*cmd.Days); err != nil {
			return err
		}
	}
	return printJSON(map[string]any{
		"day_offset": st.DayOffset(),
		"today":      st.Today(),
	})
}

type DebugDumpStateCmd struct {
	Frames bool `help:"Include the base64 reference frames."`
}

func (cmd *DebugDumpStateCmd) Run(ctx *Context) error {
	st, err := ctx.HabitStore()
	if err != nil {
		return err
	}
	state := st.Snapshot()
	if state.Habit != nil && !cmd.Frames {
		n := len(state.Habit.ReferenceFrames)
		state.Habit.ReferenceFrames = nil
		if n > 0 {
			fmt.Printf("// %d reference frame(s) omitted, use --frames to include them\n", n)
		}
	}
	return printJSON(map[string]any{
		"day_offset": st.DayOffset(),
		"today":      st.Today(),
		"state":      state,
	})
}

func printJSON(v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(jsonBytes))
	return nil
}
