package validation

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/models"
)

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictDuplicateHabitName ConflictType = "duplicate_habit_name"
	ConflictInvalidHabit       ConflictType = "invalid_habit"
)

// Conflict represents a detected problem in stored habits
type Conflict struct {
	Type        ConflictType
	Description string
	Items       []string // Habit names involved
	HabitIDs    []string
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

// HasConflicts returns true if there are any conflicts
func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}

	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, conflict := range vr.Conflicts {
		fmt.Fprintf(&b, "- %s\n", conflict.Description)
	}
	return b.String()
}

// Validator validates habit input and stored habits
type Validator struct {
	v *validator.Validate
}

// New creates a new Validator
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	// registration only fails for an empty tag or nil func
	_ = v.RegisterValidation("weekdays", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		switch f.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
			return models.Weekdays(f.Uint()).Valid()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n := f.Int()
			return n >= 0 && n <= int64(models.AllDays) && models.Weekdays(n).Valid()
		}
		return false
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// ValidateHabitInput checks user-provided habit fields. The returned error is
// an invalid argument error naming every offending field.
func (v *Validator) ValidateHabitInput(in models.HabitInput) error {
	err := v.v.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.InvalidArgument("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.InvalidArgument("%s", strings.Join(msgs, "; "))
}

var colorValidator = validator.New()

// ValidateColor checks a single hex color such as #6366F1.
func ValidateColor(color string) error {
	if err := colorValidator.Var(strings.TrimSpace(color), "required,hexcolor"); err != nil {
		return errors.InvalidArgument("color must be a hex color like #6366F1, got %q", color)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "hexcolor":
		return fmt.Sprintf("%s must be a hex color like #6366F1, got %v", fe.Field(), fe.Value())
	case "weekdays":
		return fmt.Sprintf("%s must contain at least one weekday", fe.Field())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}

// ValidateHabits checks stored habits for duplicate active names and
// invalid field values.
func (v *Validator) ValidateHabits(habits []models.Habit) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}

	nameIDs := make(map[string][]string)
	names := make(map[string]string)
	for _, h := range habits {
		if h.Archived || h.Name == "" {
			continue
		}
		key := strings.ToLower(h.Name)
		nameIDs[key] = append(nameIDs[key], h.ID)
		names[key] = h.Name
	}

	keys := make([]string, 0, len(nameIDs))
	for k := range nameIDs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ids := nameIDs[k]
		if len(ids) > 1 {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictDuplicateHabitName,
				Description: fmt.Sprintf("Duplicate habit name: \"%s\" (IDs: %v)", names[k], ids),
				Items:       []string{names[k]},
				HabitIDs:    ids,
			})
		}
	}

	for _, h := range habits {
		if err := v.ValidateHabitInput(h.Input()); err != nil {
			result.Conflicts = append(result.Conflicts, Conflict{
				Type:        ConflictInvalidHabit,
				Description: fmt.Sprintf("Habit \"%s\" is invalid: %v", h.Name, err),
				Items:       []string{h.Name},
				HabitIDs:    []string{h.ID},
			})
		}
	}

	return result
}
