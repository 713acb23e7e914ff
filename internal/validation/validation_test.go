package validation

import (
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/models"
)

func validInput() models.HabitInput {
	return models.HabitInput{
		Name:          "Read",
		Description:   "Twenty pages",
		TargetPerWeek: 5,
		ActiveDays:    models.WorkingDays,
		Color:         "#6366F1",
	}
}

func TestValidateHabitInput(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		mutate  func(*models.HabitInput)
		wantErr string
	}{
		{"valid", func(*models.HabitInput) {}, ""},
		{"short color", func(in *models.HabitInput) { in.Color = "#fff" }, ""},
		{"missing name", func(in *models.HabitInput) { in.Name = "" }, "name is required"},
		{"long name", func(in *models.HabitInput) { in.Name = strings.Repeat("x", 81) }, "name must be at most 80"},
		{"zero target", func(in *models.HabitInput) { in.TargetPerWeek = 0 }, "target_per_week must be at least 1"},
		{"target above seven", func(in *models.HabitInput) { in.TargetPerWeek = 8 }, "target_per_week must be at most 7"},
		{"no active days", func(in *models.HabitInput) { in.ActiveDays = models.NoDays }, "active_days must contain at least one weekday"},
		{"bad color", func(in *models.HabitInput) { in.Color = "blue" }, "color must be a hex color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			err := v.ValidateHabitInput(in)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !stderrors.Is(err, errors.ErrInvalidArgument) {
				t.Errorf("error %v should be an invalid argument", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateHabitInputReportsAllFields(t *testing.T) {
	err := New().ValidateHabitInput(models.HabitInput{})
	if err == nil {
		t.Fatal("expected error for empty input")
	}
	for _, field := range []string{"name", "target_per_week", "active_days", "color"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q should mention %s", err.Error(), field)
		}
	}
}

func TestValidateHabits_DuplicateNames(t *testing.T) {
	now := time.Now()
	habits := []models.Habit{
		{ID: "1", Name: "Read", TargetPerWeek: 7, ActiveDays: models.AllDays, Color: "#000000", CreatedAt: now},
		{ID: "2", Name: "Stretch", TargetPerWeek: 7, ActiveDays: models.AllDays, Color: "#000000", CreatedAt: now},
		{ID: "3", Name: "read", TargetPerWeek: 7, ActiveDays: models.AllDays, Color: "#000000", CreatedAt: now},
		{ID: "4", Name: "Read", TargetPerWeek: 7, ActiveDays: models.AllDays, Color: "#000000", Archived: true},
	}

	result := New().ValidateHabits(habits)
	if len(result.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d: %s", len(result.Conflicts), result.FormatReport())
	}
	c := result.Conflicts[0]
	if c.Type != ConflictDuplicateHabitName {
		t.Errorf("conflict type = %s, want %s", c.Type, ConflictDuplicateHabitName)
	}
	if len(c.HabitIDs) != 2 {
		t.Errorf("expected archived habit to be ignored, got IDs %v", c.HabitIDs)
	}
}

func TestValidateHabits_InvalidFields(t *testing.T) {
	habits := []models.Habit{
		{ID: "1", Name: "Run", TargetPerWeek: 3, ActiveDays: models.NoDays, Color: "#ff0000"},
	}

	result := New().ValidateHabits(habits)
	if !result.HasConflicts() {
		t.Fatal("expected a conflict for a habit without active days")
	}
	if result.Conflicts[0].Type != ConflictInvalidHabit {
		t.Errorf("conflict type = %s, want %s", result.Conflicts[0].Type, ConflictInvalidHabit)
	}
	if !strings.Contains(result.FormatReport(), "Run") {
		t.Errorf("report should name the habit: %s", result.FormatReport())
	}
}

func TestFormatReportEmpty(t *testing.T) {
	result := New().ValidateHabits(nil)
	if result.FormatReport() != "No conflicts detected." {
		t.Errorf("unexpected report: %q", result.FormatReport())
	}
}

func TestValidateColor(t *testing.T) {
	for _, c := range []string{"#6366F1", "#fff", " #10b981 "} {
		if err := ValidateColor(c); err != nil {
			t.Errorf("ValidateColor(%q) = %v", c, err)
		}
	}
	for _, c := range []string{"", "red", "6366F1", "#12345"} {
		err := ValidateColor(c)
		if !stderrors.Is(err, errors.ErrInvalidArgument) {
			t.Errorf("ValidateColor(%q) = %v, want invalid argument", c, err)
		}
	}
}
