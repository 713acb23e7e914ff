package habits

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/horizon/internal/models"
	"github.com/julianstephens/horizon/internal/validation"
)

// habitFormModel holds the raw text of the interactive habit form.
type habitFormModel struct {
	Name        string
	Description string
	Target      string
	Days        string
	Color       string
}

func newHabitFormModel(in models.HabitInput) *habitFormModel {
	return &habitFormModel{
		Name:        in.Name,
		Description: in.Description,
		Target:      strconv.Itoa(in.TargetPerWeek),
		Days:        in.ActiveDays.String(),
		Color:       in.Color,
	}
}

// Input converts the form into a habit input.
func (fm *habitFormModel) Input() (models.HabitInput, error) {
	target, err := strconv.Atoi(strings.TrimSpace(fm.Target))
	if err != nil {
		return models.HabitInput{}, fmt.Errorf("target must be a number: %w", err)
	}
	days, err := models.ParseWeekdays(fm.Days)
	if err != nil {
		return models.HabitInput{}, err
	}
	return models.HabitInput{
		Name:          strings.TrimSpace(fm.Name),
		Description:   strings.TrimSpace(fm.Description),
		TargetPerWeek: target,
		ActiveDays:    days,
		Color:         strings.TrimSpace(fm.Color),
	}, nil
}

// newHabitForm creates a form for adding or editing a habit
func newHabitForm(fm *habitFormModel) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Habit Name").
				Value(&fm.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("habit name cannot be empty")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Value(&fm.Description),
			huh.NewInput().
				Title("Target per week (1-7)").
				Value(&fm.Target).
				Validate(func(s string) error {
					i, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil {
						return err
					}
					if i < 1 || i > 7 {
						return fmt.Errorf("target must be 1-7")
					}
					return nil
				}),
			huh.NewInput().
				Title("Active days").
				Description("daily, weekdays, weekends or a list like mon,wed,fri").
				Value(&fm.Days).
				Validate(func(s string) error {
					_, err := models.ParseWeekdays(s)
					return err
				}),
			huh.NewInput().
				Title("Color").
				Description("Hex color, e.g. #6366F1").
				Value(&fm.Color).
				Validate(validation.ValidateColor),
		),
	).WithTheme(huh.ThemeDracula())
}
