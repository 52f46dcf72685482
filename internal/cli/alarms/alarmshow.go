package alarms

import (
	"fmt"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/ics"
)

type AlarmShowCmd struct {
	ID    uint32 `arg:"" help:"Alarm ID to show."`
	Count int    `help:"Number of upcoming fire times to list." default:"5"`
}

func (c *AlarmShowCmd) Run(ctx *cli.Context) error {
	m, err := ctx.Manager()
	if err != nil {
		return err
	}
	a, ok := m.GetAlarmByID(c.ID)
	if !ok {
		return fmt.Errorf("alarm %d not found", c.ID)
	}
	loc, err := ctx.Location()
	if err != nil {
		return err
	}

	fmt.Printf("Alarm #%d\n", a.ID)
	fmt.Printf("  Label:   %s\n", cli.AlarmName(a))
	fmt.Printf("  Time:    %s\n", a.TimeOfDay())
	fmt.Printf("  Repeat:  %s\n", a.FormatRepeat())
	fmt.Printf("  Enabled: %t\n", a.Enabled)
	fmt.Printf("  Next:    %s\n", cli.FormatNext(a, loc))

	upcoming, err := ics.Upcoming(a, loc, c.Count)
	if err != nil {
		return fmt.Errorf("failed to expand schedule: %w", err)
	}
	if len(upcoming) > 1 {
		fmt.Println("  Upcoming:")
		for _, t := range upcoming {
			fmt.Printf("    %s\n", t.Format("Mon "+constants.DateFormat+" "+constants.TimeFormat))
		}
	}
	return nil
}
