package alarms

import (
	"fmt"
	"os"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/codec"
	"github.com/julianstephens/chime/internal/ics"
)

type AlarmExportCmd struct {
	Format string `help:"Output format (json|yaml|ics)." enum:"json,yaml,ics" default:"json"`
	Output string `help:"Write to this file instead of stdout." short:"o" type:"path"`
}

func (c *AlarmExportCmd) Run(ctx *cli.Context) error {
	m, err := ctx.Manager()
	if err != nil {
		return err
	}

	var data string
	switch c.Format {
	case "yaml":
		data, err = codec.YAML{}.Encode(m.GetAlarms())
	case "ics":
		loc, lerr := ctx.Location()
		if lerr != nil {
			return lerr
		}
		data, err = ics.Export(m.GetAlarms(), loc, ctx.Clock())
	default:
		data, err = codec.JSON{}.Encode(m.GetAlarms())
	}
	if err != nil {
		return fmt.Errorf("failed to export alarms: %w", err)
	}

	if c.Output == "" {
		fmt.Println(data)
		return nil
	}
	if err := os.WriteFile(c.Output, []byte(data), 0o600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Printf("✓ Exported %d alarms to %s\n", len(m.GetAlarms()), c.Output)
	return nil
}
