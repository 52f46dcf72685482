package alarms

import (
	"fmt"
	"strings"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/models"
)

type AlarmAddCmd struct {
	Time     string `help:"Alarm time (HH:MM)." required:""`
	Label    string `help:"Optional label."`
	Repeat   string `help:"Repeat mode (once|daily|weekdays|weekends|weekly|custom)." default:"once"`
	Days     string `help:"Comma-separated weekdays for custom repeat (e.g., mon,wed,fri)."`
	Disabled bool   `help:"Add the alarm switched off."`
}

func (c *AlarmAddCmd) Validate() error {
	_, err := c.alarm()
	return err
}

func (c *AlarmAddCmd) alarm() (models.Alarm, error) {
	a := models.Alarm{
		Label:   strings.TrimSpace(c.Label),
		Enabled: !c.Disabled,
	}
	if err := a.SetTimeOfDay(c.Time); err != nil {
		return models.Alarm{}, err
	}
	mode, err := models.ParseRepeatMode(c.Repeat)
	if err != nil {
		return models.Alarm{}, err
	}
	a.RepeatMode = mode

	if mode == models.RepeatCustom {
		if c.Days == "" {
			return models.Alarm{}, fmt.Errorf("--days must be specified for custom repeat")
		}
		mask, err := models.ParseWeekdays(c.Days)
		if err != nil {
			return models.Alarm{}, fmt.Errorf("failed to parse days: %w", err)
		}
		a.CustomDays = mask
	} else if c.Days != "" {
		return models.Alarm{}, fmt.Errorf("--days is only valid with --repeat custom")
	}
	return a, nil
}

func (c *AlarmAddCmd) Run(ctx *cli.Context) error {
	a, err := c.alarm()
	if err != nil {
		return err
	}
	if err := ctx.EnsureNoDaemon(); err != nil {
		return err
	}
	m, err := ctx.Manager()
	if err != nil {
		return err
	}

	added, err := m.AddAlarm(a)
	if err != nil {
		if added.ID == 0 {
			return fmt.Errorf("failed to add alarm: %w", err)
		}
		return fmt.Errorf("alarm %d added but could not be saved: %w", added.ID, err)
	}

	loc, err := ctx.Location()
	if err != nil {
		return err
	}
	fmt.Printf("✓ Alarm added: #%d %s at %s (%s)\n", added.ID, cli.AlarmName(added), added.TimeOfDay(), added.FormatRepeat())
	if added.Enabled {
		fmt.Printf("  Next: %s\n", cli.FormatNext(added, loc))
	}
	return nil
}
