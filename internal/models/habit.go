package models

import "time"

// Habit represents a recurring practice to track
type Habit struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Description   string    `json:"description" db:"description"`
	TargetPerWeek int       `json:"target_per_week" db:"target_per_week"`
	ActiveDays    Weekdays  `json:"active_days" db:"active_days"`
	Color         string    `json:"color" db:"color"`
	Archived      bool      `json:"archived" db:"archived"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// IsActiveOn reports whether the habit is scheduled on the given day.
func (h Habit) IsActiveOn(d Day) bool {
	return h.ActiveDays.Has(d.Weekday())
}

// HabitInput carries the user-editable fields of a habit.
type HabitInput struct {
	Name          string   `json:"name" validate:"required,max=80"`
	Description   string   `json:"description" validate:"max=500"`
	TargetPerWeek int      `json:"target_per_week" validate:"min=1,max=7"`
	ActiveDays    Weekdays `json:"active_days" validate:"weekdays"`
	Color         string   `json:"color" validate:"required,hexcolor"`
}

// Input returns the editable fields of h.
func (h Habit) Input() HabitInput {
	return HabitInput{
		Name:          h.Name,
		Description:   h.Description,
		TargetPerWeek: h.TargetPerWeek,
		ActiveDays:    h.ActiveDays,
		Color:         h.Color,
	}
}

// Apply copies the editable fields of in onto h.
func (h *Habit) Apply(in HabitInput) {
	h.Name = in.Name
	h.Description = in.Description
	h.TargetPerWeek = in.TargetPerWeek
	h.ActiveDays = in.ActiveDays
	h.Color = in.Color
}

// Completion records that a habit was performed on a day. There is at most
// one completion per (habit, day).
type Completion struct {
	ID        string    `json:"id" db:"id"`
	HabitID   string    `json:"habit_id" db:"habit_id"`
	Day       Day       `json:"day" db:"day"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// HabitProgress is a habit together with its completion history and the
// streaks derived from it. It is never stored.
type HabitProgress struct {
	Habit             Habit `json:"habit"`
	Days              []Day `json:"days"`
	CurrentStreak     int   `json:"current_streak"`
	LongestStreak     int   `json:"longest_streak"`
	CompletedToday    bool  `json:"completed_today"`
	CompletedThisWeek int   `json:"completed_this_week"`
}
