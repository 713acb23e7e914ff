package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/horizon/internal/errors"
)

// Weekdays is a set of weekdays stored as a 7-bit mask with Monday at bit 0
// and Sunday at bit 6.
type Weekdays uint8

const (
	NoDays      Weekdays = 0
	AllDays     Weekdays = 0x7F
	WorkingDays Weekdays = 0x1F
	WeekendDays Weekdays = 0x60
)

// bit returns the mask bit for d.
func bit(d time.Weekday) Weekdays {
	return 1 << ((int(d) + 6) % 7)
}

var weekdayNames = map[string]time.Weekday{
	"sun":       time.Sunday,
	"sunday":    time.Sunday,
	"mon":       time.Monday,
	"monday":    time.Monday,
	"tue":       time.Tuesday,
	"tuesday":   time.Tuesday,
	"wed":       time.Wednesday,
	"wednesday": time.Wednesday,
	"thu":       time.Thursday,
	"thursday":  time.Thursday,
	"fri":       time.Friday,
	"friday":    time.Friday,
	"sat":       time.Saturday,
	"saturday":  time.Saturday,
}

// WeekdaysOf builds a set from individual weekdays.
func WeekdaysOf(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= bit(d)
	}
	return w
}

// ParseWeekdays parses a comma-separated list of weekday names or numbers
// (0=Sunday, 6=Saturday). The words all, daily, weekdays and weekends are
// also accepted.
func ParseWeekdays(s string) (Weekdays, error) {
	var w Weekdays
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		switch part {
		case "":
			continue
		case "all", "daily", "everyday":
			w |= AllDays
			continue
		case "weekdays":
			w |= WorkingDays
			continue
		case "weekends":
			w |= WeekendDays
			continue
		}
		if wd, ok := weekdayNames[part]; ok {
			w |= bit(wd)
			continue
		}
		num, err := strconv.Atoi(part)
		if err != nil || num < 0 || num > 6 {
			return NoDays, errors.InvalidArgument("invalid weekday: %s", part)
		}
		w |= bit(time.Weekday(num))
	}
	if w == NoDays {
		return NoDays, errors.InvalidArgument("at least one active weekday is required")
	}
	return w, nil
}

func (w Weekdays) Has(d time.Weekday) bool {
	return w&bit(d) != 0
}

// Valid reports whether the set is non-empty and uses only the seven weekday bits.
func (w Weekdays) Valid() bool {
	return w != NoDays && w&^AllDays == 0
}

// Days lists the weekdays in the set, Monday first.
func (w Weekdays) Days() []time.Weekday {
	var days []time.Weekday
	for i := 1; i <= 7; i++ {
		if d := time.Weekday(i % 7); w.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

func (w Weekdays) String() string {
	switch w {
	case AllDays:
		return "daily"
	case WorkingDays:
		return "weekdays"
	case WeekendDays:
		return "weekends"
	}
	days := w.Days()
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, strings.ToLower(d.String()[:3]))
	}
	return strings.Join(names, ",")
}
