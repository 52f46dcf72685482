// Package ics renders alarms as iCalendar events with recurrence rules.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/models"
)

const eventDuration = time.Minute

var weekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

func byDay(mask uint8) []rrule.Weekday {
	days := models.MaskWeekdays(mask)
	out := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, weekdays[d])
	}
	return out
}

// Rule builds the recurrence of a starting at start. It returns nil for a
// one-time alarm.
func Rule(a models.Alarm, start time.Time) (*rrule.RRule, error) {
	opt := rrule.ROption{Dtstart: start}
	switch a.RepeatMode {
	case models.RepeatOnce:
		return nil, nil
	case models.RepeatDaily:
		opt.Freq = rrule.DAILY
	case models.RepeatWeekdays:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = byDay(models.DaysMask(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday))
	case models.RepeatWeekends:
		// The scheduler steps one day from Sunday, so Monday follows each weekend
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = byDay(models.DaysMask(time.Saturday, time.Sunday, time.Monday))
	case models.RepeatWeekly:
		opt.Freq = rrule.WEEKLY
	case models.RepeatCustom:
		if a.CustomDays&models.AllDays == 0 {
			return nil, fmt.Errorf("alarm %d has no custom days set", a.ID)
		}
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = byDay(a.CustomDays)
	default:
		return nil, fmt.Errorf("alarm %d has unknown repeat mode %d", a.ID, int(a.RepeatMode))
	}
	return rrule.NewRRule(opt)
}

// Upcoming returns up to n fire times of a beginning with its scheduled
// next trigger, in loc. Unscheduled alarms have none.
func Upcoming(a models.Alarm, loc *time.Location, n int) ([]time.Time, error) {
	start := a.NextTrigger(loc)
	if start.IsZero() || n <= 0 {
		return nil, nil
	}
	r, err := Rule(a, start)
	if err != nil {
		return nil, err
	}
	out := []time.Time{start}
	if r == nil {
		return out, nil
	}
	for t := start; len(out) < n; {
		t = r.After(t, false)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

// Export renders every scheduled alarm as a VEVENT with a display VALARM.
// Alarms that are disabled or have no next trigger are left out.
func Export(alarms []models.Alarm, loc *time.Location, now time.Time) (string, error) {
	cal := ical.NewCalendarFor(constants.AppName)
	cal.SetMethod(ical.MethodPublish)
	cal.SetName("chime alarms")
	cal.SetXWRTimezone(loc.String())

	for _, a := range alarms {
		if !a.Enabled || a.NextTriggerTime == 0 {
			continue
		}
		start := a.NextTrigger(loc)
		r, err := Rule(a, start)
		if err != nil {
			logger.Warn("Skipping alarm in calendar export", "id", a.ID, "error", err)
			continue
		}

		ev := cal.AddEvent(fmt.Sprintf("alarm-%d@%s", a.ID, constants.AppName))
		ev.SetDtStampTime(now)
		setTime(ev, ical.ComponentPropertyDtStart, start)
		setTime(ev, ical.ComponentPropertyDtEnd, start.Add(eventDuration))
		ev.SetSummary(summary(a))
		ev.SetDescription(fmt.Sprintf("%s %s", a.TimeOfDay(), a.FormatRepeat()))
		if r != nil {
			ev.AddRrule(r.OrigOptions.RRuleString())
		}

		alarm := ev.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger("PT0S")
		alarm.SetProperty(ical.ComponentPropertyDescription, summary(a))
	}
	return cal.Serialize(), nil
}

func summary(a models.Alarm) string {
	if a.Label != "" {
		return a.Label
	}
	return fmt.Sprintf("Alarm %d", a.ID)
}

// setTime writes a local time with its TZID so recurrences keep their wall
// clock time across DST changes. UTC is written in the Z form.
func setTime(ev *ical.VEvent, prop ical.ComponentProperty, t time.Time) {
	if t.Location() == time.UTC {
		ev.SetProperty(prop, t.Format("20060102T150405Z"))
		return
	}
	ev.SetProperty(prop, t.Format("20060102T150405"), ical.WithTZID(t.Location().String()))
}
