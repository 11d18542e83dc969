package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/repcam/internal/camera"
	"github.com/julianstephens/repcam/internal/notifier"
	"github.com/julianstephens/repcam/internal/reps"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.viewHeader(),
		m.viewCamera(),
		m.viewReps(),
		m.viewDay(),
	}
	if ev := m.viewEvent(); ev != "" {
		sections = append(sections, ev)
	}
	if m.status != "" {
		style := okStyle
		if m.failed {
			style = dangerStyle
		}
		sections = append(sections, style.Render(m.status))
	}
	sections = append(sections, m.help.View(m.keys))

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) viewHeader() string {
	name := m.snap.HabitName
	if name == "" {
		name = "Habit"
	}
	return titleStyle.Render(fmt.Sprintf("%s  %s", name, m.snap.Day)) + "\n"
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func (m Model) viewCamera() string {
	var lines []string
	state := m.snap.Camera.String()
	if m.snap.Camera == camera.StateActive {
		lines = append(lines, row("Camera", okStyle.Render(state)))
	} else {
		lines = append(lines, row("Camera", dangerStyle.Render(state)))
		lines = append(lines, row("", warningStyle.Render(cameraHint(m.snap.Camera))))
	}

	mode := "learned signature"
	if !m.snap.HasSignature {
		mode = "any sustained motion"
	}
	lines = append(lines,
		row("Matching", valueStyle.Render(mode)),
		row("Motion", valueStyle.Render(fmt.Sprintf("%5.1f", m.snap.Match.MotionLevel))),
		row("Score", valueStyle.Render(fmt.Sprintf("%5.1f", m.snap.Match.MatchScore))),
	)
	return strings.Join(lines, "\n") + "\n"
}

// cameraHint tells the user what to do when the camera is not streaming.
// Manual completion stays available in every state.
func cameraHint(s camera.State) string {
	switch s {
	case camera.StatePending:
		return "Allow camera access when prompted, or press d to log reps by hand."
	case camera.StateDenied:
		return "Camera access was refused. Grant it and press r to retry, or press d to log reps by hand."
	case camera.StateUnavailable:
		return "No camera at the configured URL. Check it and press r to retry, or press d to log reps by hand."
	case camera.StateDisconnected:
		return "The camera stopped sending frames. Press r to retry or d to log reps by hand."
	case camera.StateTimedOut:
		return "The camera did not answer in time. Press r to retry or d to log reps by hand."
	default:
		return "Press d to log reps by hand."
	}
}

func holdPercent(st reps.Status) float64 {
	switch st.Phase {
	case reps.Completed:
		return 1
	case reps.HoldTimerRunning:
		if st.Duration <= 0 {
			return 0
		}
		return float64(st.Duration-st.Remaining) / float64(st.Duration)
	default:
		return 0
	}
}

func (m Model) viewReps() string {
	st := m.snap.Reps
	var phase string
	switch st.Phase {
	case reps.HoldTimerRunning:
		phase = fmt.Sprintf("hold %ds", st.Remaining)
	case reps.Completed:
		phase = okStyle.Render("rep counted")
	default:
		phase = st.Phase.String()
	}
	if st.GoalReached {
		phase = okStyle.Render("goal reached")
	}
	return strings.Join([]string{
		row("Rep", phase),
		row("", m.hold.ViewAs(holdPercent(st))),
	}, "\n") + "\n"
}

func dailyPercent(count, goal int) float64 {
	if goal <= 0 {
		return 0
	}
	if count >= goal {
		return 1
	}
	return float64(count) / float64(goal)
}

func (m Model) viewDay() string {
	s := m.snap
	lines := []string{
		row("Today", valueStyle.Render(fmt.Sprintf("%d / %d", s.Count, s.Goal))),
		row("", m.daily.ViewAs(dailyPercent(s.Count, s.Goal))),
		row("Streak", valueStyle.Render(fmt.Sprintf("%d (best %d)", s.Streak, s.LongestStreak))),
	}
	deadline := valueStyle.Render(s.DeadlineTime)
	if s.DeadlineMissed {
		deadline = dangerStyle.Render(s.DeadlineTime + " missed")
	}
	lines = append(lines, row("Deadline", deadline))
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) viewEvent() string {
	if m.snap.LastEvent == nil {
		return ""
	}
	ev := *m.snap.LastEvent
	text := notifier.Message(ev)
	if ev.Manual {
		text += " (manual)"
	}
	return eventStyle.Render(text)
}
