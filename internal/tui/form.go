package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/models"
	"github.com/julianstephens/repcam/internal/utils"
)

// HabitFormModel holds the raw form input for the habit setup form.
type HabitFormModel struct {
	Name        string
	Description string
	Goal        string
	Duration    string
	Deadline    string
}

// NewHabitFormModel pre-fills the form from an existing habit, or from the
// defaults when h is nil.
func NewHabitFormModel(h *models.Habit) *HabitFormModel {
	if h == nil {
		return &HabitFormModel{
			Goal:     strconv.Itoa(constants.DefaultDailyGoal),
			Duration: strconv.Itoa(constants.DefaultMovementDuration),
			Deadline: constants.DefaultDeadline,
		}
	}
	return &HabitFormModel{
		Name:        h.Name,
		Description: h.Description,
		Goal:        strconv.Itoa(h.DailyGoal),
		Duration:    strconv.Itoa(h.MovementDuration),
		Deadline:    h.DeadlineTime,
	}
}

func validateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("habit name cannot be empty")
	}
	return nil
}

func positiveInt(what string) func(string) error {
	return func(s string) error {
		i, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%s must be a whole number", what)
		}
		if i < 1 {
			return fmt.Errorf("%s must be at least 1", what)
		}
		return nil
	}
}

func validateDeadline(s string) error {
	if !utils.ValidateTimeFormat(strings.TrimSpace(s)) {
		return fmt.Errorf("invalid time format, use HH:MM")
	}
	return nil
}

// NewHabitForm creates the form used to set up or edit the habit
func NewHabitForm(fm *HabitFormModel) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Habit Name").
				Value(&fm.Name).
				Validate(validateName),
			huh.NewText().
				Title("Description").
				Description("What the movement looks like").
				Value(&fm.Description),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Daily Goal").
				Description("Reps per day").
				Value(&fm.Goal).
				Validate(positiveInt("daily goal")),
			huh.NewInput().
				Title("Hold (seconds)").
				Description("How long the movement must be held to count one rep").
				Value(&fm.Duration).
				Validate(positiveInt("hold duration")),
			huh.NewInput().
				Title("Deadline (HH:MM)").
				Description("The streak breaks if the goal is not met by this time").
				Value(&fm.Deadline).
				Validate(validateDeadline),
		),
	).WithTheme(huh.ThemeDracula())
}

// Apply copies the form input onto base. Calibration data on base is kept.
func (fm *HabitFormModel) Apply(base models.Habit) (models.Habit, error) {
	if err := validateName(fm.Name); err != nil {
		return base, err
	}
	goal, err := strconv.Atoi(strings.TrimSpace(fm.Goal))
	if err != nil {
		return base, fmt.Errorf("daily goal: %w", err)
	}
	duration, err := strconv.Atoi(strings.TrimSpace(fm.Duration))
	if err != nil {
		return base, fmt.Errorf("hold duration: %w", err)
	}
	if err := validateDeadline(fm.Deadline); err != nil {
		return base, err
	}

	base.Name = strings.TrimSpace(fm.Name)
	base.Description = strings.TrimSpace(fm.Description)
	base.DailyGoal = goal
	base.MovementDuration = duration
	base.DeadlineTime = strings.TrimSpace(fm.Deadline)
	return base, nil
}
