package alarms

import (
	"fmt"
	"strings"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/codec"
)

type AlarmListCmd struct {
	JSON bool `help:"Print the alarms as JSON instead of a table."`
}

func (c *AlarmListCmd) Run(ctx *cli.Context) error {
	m, err := ctx.Manager()
	if err != nil {
		return err
	}

	if c.JSON {
		data, err := codec.JSON{}.Encode(m.GetAlarms())
		if err != nil {
			return fmt.Errorf("failed to encode alarms: %w", err)
		}
		fmt.Println(data)
		return nil
	}

	alarms := m.GetAlarms()
	if len(alarms) == 0 {
		fmt.Println("No alarms configured.")
		return nil
	}
	loc, err := ctx.Location()
	if err != nil {
		return err
	}

	fmt.Printf("%-6s %-24s %-6s %-22s %-8s %-20s\n", "ID", "Label", "Time", "Repeat", "Enabled", "Next")
	fmt.Println(strings.Repeat("-", 90))

	for _, a := range alarms {
		label := a.Label
		if len(label) > 22 {
			label = label[:19] + "..."
		}

		repeat := a.FormatRepeat()
		if len(repeat) > 20 {
			repeat = repeat[:17] + "..."
		}

		enabledStr := "Yes"
		if !a.Enabled {
			enabledStr = "No"
		}

		fmt.Printf("%-6d %-24s %-6s %-22s %-8s %-20s\n",
			a.ID, label, a.TimeOfDay(), repeat, enabledStr, cli.FormatNext(a, loc))
	}

	return nil
}
