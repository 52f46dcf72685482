package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/models"
)

// NewAlarmForm builds the add-alarm form bound to fm.
func NewAlarmForm(fm *AlarmFormModel) *huh.Form {
	dayOptions := make([]huh.Option[time.Weekday], 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		dayOptions = append(dayOptions, huh.NewOption(wd.String(), wd))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Label").
				Description("Optional").
				Value(&fm.Label),
			huh.NewInput().
				Title("Time (HH:MM)").
				Value(&fm.Time).
				Validate(func(s string) error {
					_, err := time.Parse(constants.TimeFormat, strings.TrimSpace(s))
					if err != nil {
						return fmt.Errorf("invalid time format, use HH:MM")
					}
					return nil
				}),
			huh.NewSelect[models.RepeatMode]().
				Title("Repeat").
				Options(
					huh.NewOption("Once", models.RepeatOnce),
					huh.NewOption("Daily", models.RepeatDaily),
					huh.NewOption("Weekdays", models.RepeatWeekdays),
					huh.NewOption("Weekends", models.RepeatWeekends),
					huh.NewOption("Weekly", models.RepeatWeekly),
					huh.NewOption("Custom days", models.RepeatCustom),
				).
				Value(&fm.Repeat),
			huh.NewMultiSelect[time.Weekday]().
				Title("Days").
				Description("Only for custom days").
				Options(dayOptions...).
				Value(&fm.Days).
				Validate(func(days []time.Weekday) error {
					if fm.Repeat == models.RepeatCustom && len(days) == 0 {
						return fmt.Errorf("pick at least one day")
					}
					return nil
				}),
		),
	)
}

// Alarm converts the submitted form into an alarm ready to add.
func (fm *AlarmFormModel) Alarm() (models.Alarm, error) {
	a := models.Alarm{
		Label:      strings.TrimSpace(fm.Label),
		RepeatMode: fm.Repeat,
		Enabled:    true,
	}
	if err := a.SetTimeOfDay(fm.Time); err != nil {
		return models.Alarm{}, err
	}
	if fm.Repeat == models.RepeatCustom {
		a.CustomDays = models.DaysMask(fm.Days...)
	}
	return a, nil
}
