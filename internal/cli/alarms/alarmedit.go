package alarms

import (
	"fmt"
	"strings"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/models"
)

type AlarmEditCmd struct {
	ID         uint32 `arg:"" help:"Alarm ID to edit."`
	Time       string `help:"New alarm time (HH:MM)."`
	Label      string `help:"New label."`
	ClearLabel bool   `help:"Remove the label."`
	Repeat     string `help:"New repeat mode (once|daily|weekdays|weekends|weekly|custom)."`
	Days       string `help:"New comma-separated weekdays for custom repeat."`
}

func (c *AlarmEditCmd) Validate() error {
	if c.Label != "" && c.ClearLabel {
		return fmt.Errorf("cannot specify both --label and --clear-label")
	}
	return nil
}

// apply merges the set flags into a.
func (c *AlarmEditCmd) apply(a *models.Alarm) error {
	if c.Time != "" {
		if err := a.SetTimeOfDay(c.Time); err != nil {
			return err
		}
	}
	if c.Label != "" {
		a.Label = strings.TrimSpace(c.Label)
	}
	if c.ClearLabel {
		a.Label = ""
	}
	if c.Repeat != "" {
		mode, err := models.ParseRepeatMode(c.Repeat)
		if err != nil {
			return err
		}
		a.RepeatMode = mode
		if mode != models.RepeatCustom {
			a.CustomDays = 0
		}
	}
	if c.Days != "" {
		if a.RepeatMode != models.RepeatCustom {
			return fmt.Errorf("--days is only valid for custom repeat (current repeat is %s)", a.RepeatMode)
		}
		mask, err := models.ParseWeekdays(c.Days)
		if err != nil {
			return fmt.Errorf("failed to parse days: %w", err)
		}
		a.CustomDays = mask
	}
	if a.RepeatMode == models.RepeatCustom && a.CustomDays == 0 {
		return fmt.Errorf("custom repeat needs at least one day (use --days)")
	}
	return nil
}

func (c *AlarmEditCmd) Run(ctx *cli.Context) error {
	if err := ctx.EnsureNoDaemon(); err != nil {
		return err
	}
	m, err := ctx.Manager()
	if err != nil {
		return err
	}

	a, ok := m.GetAlarmByID(c.ID)
	if !ok {
		return fmt.Errorf("alarm %d not found", c.ID)
	}
	if err := c.apply(&a); err != nil {
		return err
	}
	if err := m.UpdateAlarm(a); err != nil {
		return fmt.Errorf("failed to update alarm: %w", err)
	}

	updated, _ := m.GetAlarmByID(c.ID)
	loc, err := ctx.Location()
	if err != nil {
		return err
	}
	fmt.Printf("✓ Alarm updated: #%d %s at %s (%s)\n", updated.ID, cli.AlarmName(updated), updated.TimeOfDay(), updated.FormatRepeat())
	fmt.Printf("  Next: %s\n", cli.FormatNext(updated, loc))
	return nil
}
