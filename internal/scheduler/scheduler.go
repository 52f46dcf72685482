package scheduler

import (
	"time"

	"github.com/julianstephens/chime/internal/models"
)

// NextTrigger returns the epoch seconds at which the alarm should next fire
// after now, or 0 when it will not fire again.
//
// The candidate is today's date in now's location at the alarm's hour and
// minute. A candidate still ahead of now is returned for every repeat mode
// except Custom with no days set;
// otherwise the repeat mode decides how many days to move forward. Day
// offsets go through time.AddDate, so DST transitions follow whatever the Go
// calendar conversion yields for that wall-clock time.
func NextTrigger(alarm models.Alarm, now time.Time) int64 {
	if !alarm.Enabled {
		return 0
	}
	// Out-of-range times only reach here through tolerant decoding
	if alarm.Hour < 0 || alarm.Hour > 23 || alarm.Minute < 0 || alarm.Minute > 59 {
		return 0
	}
	// An empty custom mask has no day to fire on, later today included
	if alarm.RepeatMode == models.RepeatCustom && alarm.CustomDays&models.AllDays == 0 {
		return 0
	}

	candidate := time.Date(now.Year(), now.Month(), now.Day(), alarm.Hour, alarm.Minute, 0, 0, now.Location())
	if candidate.After(now) {
		return candidate.Unix()
	}

	days := daysUntilNext(alarm, now.Weekday())
	if days == 0 {
		return 0
	}
	return candidate.AddDate(0, 0, days).Unix()
}

var weekdaysMask = models.DaysMask(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)

// daysUntilNext returns the day offset from today for an alarm whose time has
// already passed today, or 0 when there is no next occurrence.
func daysUntilNext(alarm models.Alarm, today time.Weekday) int {
	switch alarm.RepeatMode {
	case models.RepeatDaily:
		return 1
	case models.RepeatWeekdays:
		// Friday rolls over the weekend to Monday, Saturday and Sunday land on Monday
		return firstDayInMask(weekdaysMask, today)
	case models.RepeatWeekends:
		// Monday through Friday wait for Saturday, the weekend itself steps one day
		if today == time.Saturday || today == time.Sunday {
			return 1
		}
		return int(time.Saturday - today)
	case models.RepeatWeekly:
		return 7
	case models.RepeatCustom:
		return firstDayInMask(alarm.CustomDays, today)
	default:
		// RepeatOnce and unknown modes never reschedule
		return 0
	}
}

// firstDayInMask scans offsets 1..7 from today and returns the first one whose
// weekday bit is set in mask, or 0 for an empty mask.
func firstDayInMask(mask uint8, today time.Weekday) int {
	for i := 1; i <= 7; i++ {
		wd := time.Weekday((int(today) + i) % 7)
		if mask&(1<<uint(wd)) != 0 {
			return i
		}
	}
	return 0
}

// NextTriggerTime is NextTrigger expressed as a time in now's location. The
// zero time means the alarm is not scheduled.
func NextTriggerTime(alarm models.Alarm, now time.Time) time.Time {
	next := NextTrigger(alarm, now)
	if next == 0 {
		return time.Time{}
	}
	return time.Unix(next, 0).In(now.Location())
}
