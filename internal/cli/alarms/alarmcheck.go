package alarms

import (
	"fmt"
	"time"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/constants"
)

type AlarmCheckCmd struct {
	At string `help:"Check as of this RFC3339 time instead of now."`
}

func (c *AlarmCheckCmd) Validate() error {
	_, err := c.at()
	return err
}

// at parses --at. The zero time means check as of now.
func (c *AlarmCheckCmd) at() (time.Time, error) {
	if c.At == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339, c.At)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at (expected RFC3339, e.g. 2026-01-05T07:00:00Z): %w", err)
	}
	return at, nil
}

func (c *AlarmCheckCmd) Run(ctx *cli.Context) error {
	at, err := c.at()
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
	loc, err := ctx.Location()
	if err != nil {
		return err
	}

	now := ctx.Clock()
	if !at.IsZero() {
		now = at.In(loc)
	}

	fired, err := m.Check(now)
	for _, a := range fired {
		fmt.Printf("🔔 #%d %s at %s\n", a.ID, cli.AlarmName(a), a.TimeOfDay())
	}
	if err != nil {
		return fmt.Errorf("alarms fired but could not be saved: %w", err)
	}
	if len(fired) == 0 {
		fmt.Printf("No alarms due at %s.\n", now.Format(constants.DateFormat+" "+constants.TimeFormat))
	}
	return nil
}
