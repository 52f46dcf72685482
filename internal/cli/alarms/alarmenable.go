package alarms

import (
	"fmt"

	"github.com/julianstephens/chime/internal/cli"
)

type AlarmEnableCmd struct {
	ID uint32 `arg:"" help:"Alarm ID to switch on."`
}

func (c *AlarmEnableCmd) Run(ctx *cli.Context) error {
	return setEnabled(ctx, c.ID, true)
}

type AlarmDisableCmd struct {
	ID uint32 `arg:"" help:"Alarm ID to switch off."`
}

func (c *AlarmDisableCmd) Run(ctx *cli.Context) error {
	return setEnabled(ctx, c.ID, false)
}

func setEnabled(ctx *cli.Context, id uint32, enable bool) error {
	if err := ctx.EnsureNoDaemon(); err != nil {
		return err
	}
	m, err := ctx.Manager()
	if err != nil {
		return err
	}
	if err := m.EnableAlarm(id, enable); err != nil {
		return fmt.Errorf("failed to update alarm: %w", err)
	}

	a, _ := m.GetAlarmByID(id)
	if !enable {
		fmt.Printf("✓ Alarm disabled: #%d %s\n", a.ID, cli.AlarmName(a))
		return nil
	}
	loc, err := ctx.Location()
	if err != nil {
		return err
	}
	fmt.Printf("✓ Alarm enabled: #%d %s (next: %s)\n", a.ID, cli.AlarmName(a), cli.FormatNext(a, loc))
	return nil
}
