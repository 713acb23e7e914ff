package models

import (
	"strings"
	"time"

	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
)

// Day is a calendar date stored as the number of days since 1970-01-01.
type Day int64

const secondsPerDay = 24 * 60 * 60

// DayOf returns the calendar day of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	utc := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Day(utc.Unix() / secondsPerDay)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(constants.DateFormat, strings.TrimSpace(s))
	if err != nil {
		return 0, errors.InvalidArgument("malformed date %q, expected YYYY-MM-DD", s)
	}
	return DayOf(t), nil
}

// Time returns midnight of the day in loc.
func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, dd := time.Unix(int64(d)*secondsPerDay, 0).UTC().Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, loc)
}

func (d Day) String() string {
	return d.Time(time.UTC).Format(constants.DateFormat)
}

func (d Day) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

// WeekStart returns the Monday on or before d.
func (d Day) WeekStart() Day {
	offset := (int(d.Weekday()) + 6) % 7
	return d - Day(offset)
}
