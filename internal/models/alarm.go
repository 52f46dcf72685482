package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type RepeatMode int

const (
	RepeatOnce RepeatMode = iota
	RepeatDaily
	RepeatWeekdays
	RepeatWeekends
	RepeatWeekly
	RepeatCustom
)

// AllDays is the custom-days mask with every weekday set.
const AllDays uint8 = 0x7f

var repeatModeNames = map[RepeatMode]string{
	RepeatOnce:     "once",
	RepeatDaily:    "daily",
	RepeatWeekdays: "weekdays",
	RepeatWeekends: "weekends",
	RepeatWeekly:   "weekly",
	RepeatCustom:   "custom",
}

func (m RepeatMode) String() string {
	if name, ok := repeatModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(m))
}

// Valid reports whether m is one of the six known repeat modes.
func (m RepeatMode) Valid() bool {
	return m >= RepeatOnce && m <= RepeatCustom
}

// ParseRepeatMode accepts a mode name ("daily") or its numeric value ("1").
func ParseRepeatMode(s string) (RepeatMode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for mode, name := range repeatModeNames {
		if s == name {
			return mode, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && RepeatMode(n).Valid() {
		return RepeatMode(n), nil
	}
	return RepeatOnce, fmt.Errorf("invalid repeat mode: %q (must be once, daily, weekdays, weekends, weekly, or custom)", s)
}

// Alarm is a recurring local wall-clock alarm.
//
// NextTriggerTime is epoch seconds of the next scheduled fire, or 0 when the
// alarm is not scheduled. CustomDays is only meaningful for RepeatCustom:
// bit 0 is Sunday through bit 6 Saturday.
type Alarm struct {
	ID              uint32     `json:"id" yaml:"id"`
	Label           string     `json:"label" yaml:"label"`
	Hour            int        `json:"hour" yaml:"hour"`
	Minute          int        `json:"minute" yaml:"minute"`
	RepeatMode      RepeatMode `json:"repeat_mode" yaml:"repeat_mode"`
	CustomDays      uint8      `json:"custom_days" yaml:"custom_days"`
	Enabled         bool       `json:"enabled" yaml:"enabled"`
	NextTriggerTime int64      `json:"next_trigger_time" yaml:"next_trigger_time"`
}

func (a *Alarm) Validate() error {
	if a.Hour < 0 || a.Hour > 23 {
		return fmt.Errorf("hour must be between 0 and 23, got %d", a.Hour)
	}
	if a.Minute < 0 || a.Minute > 59 {
		return fmt.Errorf("minute must be between 0 and 59, got %d", a.Minute)
	}
	if !a.RepeatMode.Valid() {
		return fmt.Errorf("invalid repeat mode %d", int(a.RepeatMode))
	}
	if a.CustomDays > AllDays {
		return fmt.Errorf("custom days mask must be between 0 and %d, got %d", AllDays, a.CustomDays)
	}
	return nil
}

// HasDay reports whether wd is set in the custom-days mask.
func (a *Alarm) HasDay(wd time.Weekday) bool {
	return a.CustomDays&(1<<uint(wd)) != 0
}

// TimeOfDay returns the alarm time in HH:MM format.
func (a *Alarm) TimeOfDay() string {
	return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute)
}

// SetTimeOfDay parses an HH:MM string into Hour and Minute.
func (a *Alarm) SetTimeOfDay(s string) error {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}
	a.Hour = t.Hour()
	a.Minute = t.Minute()
	return nil
}

// NextTrigger returns NextTriggerTime as a time in loc, or the zero time when
// the alarm is not scheduled.
func (a *Alarm) NextTrigger(loc *time.Location) time.Time {
	if a.NextTriggerTime == 0 {
		return time.Time{}
	}
	return time.Unix(a.NextTriggerTime, 0).In(loc)
}

// FormatRepeat returns a human-readable string describing the repeat policy
func (a *Alarm) FormatRepeat() string {
	switch a.RepeatMode {
	case RepeatOnce:
		return "Once"
	case RepeatDaily:
		return "Daily"
	case RepeatWeekdays:
		return "Weekdays"
	case RepeatWeekends:
		return "Weekends"
	case RepeatWeekly:
		return "Weekly"
	case RepeatCustom:
		days := MaskWeekdays(a.CustomDays)
		if len(days) == 0 {
			return "Custom: none"
		}
		names := make([]string, len(days))
		for i, wd := range days {
			names[i] = wd.String()[:3]
		}
		return fmt.Sprintf("Custom: %s", strings.Join(names, ", "))
	default:
		return "Unknown"
	}
}

// DaysMask builds a custom-days mask from weekdays.
func DaysMask(days ...time.Weekday) uint8 {
	var mask uint8
	for _, wd := range days {
		mask |= 1 << uint(wd)
	}
	return mask & AllDays
}

// MaskWeekdays expands a custom-days mask into weekdays, Sunday first.
func MaskWeekdays(mask uint8) []time.Weekday {
	var days []time.Weekday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if mask&(1<<uint(wd)) != 0 {
			days = append(days, wd)
		}
	}
	return days
}

// ParseWeekdays parses a comma-separated list of weekdays into a custom-days mask
func ParseWeekdays(s string) (uint8, error) {
	dayMap := map[string]time.Weekday{
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

	var mask uint8
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		if wd, ok := dayMap[part]; ok {
			mask |= DaysMask(wd)
			continue
		}
		// Try parsing as number (0=Sunday, 6=Saturday)
		num, err := strconv.Atoi(part)
		if err != nil || num < 0 || num > 6 {
			return 0, fmt.Errorf("invalid weekday: %s", part)
		}
		mask |= DaysMask(time.Weekday(num))
	}
	return mask, nil
}
