package alarms

import (
	"fmt"

	"github.com/julianstephens/chime/internal/cli"
)

type AlarmDeleteCmd struct {
	ID uint32 `arg:"" help:"Alarm ID to delete."`
}

func (c *AlarmDeleteCmd) Run(ctx *cli.Context) error {
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
	if err := m.DeleteAlarm(c.ID); err != nil {
		return fmt.Errorf("failed to delete alarm: %w", err)
	}

	fmt.Printf("✓ Alarm deleted: #%d %s at %s\n", a.ID, cli.AlarmName(a), a.TimeOfDay())
	return nil
}
