package system

import (
	"context"
	"errors"
	"fmt"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/netreset"
)

type NetResetCmd struct {
	Yes bool `help:"Confirm erasing the stored network configuration."`
}

func (c *NetResetCmd) Run(ctx *cli.Context) error {
	if !c.Yes {
		return errors.New("refusing to reset network configuration without --yes")
	}
	if err := ctx.EnsureNoDaemon(); err != nil {
		return err
	}
	store, err := ctx.Store()
	if err != nil {
		return err
	}

	restart := netreset.RebootFunc(func(context.Context) error {
		fmt.Println("✓ Network configuration cleared; restart chime to start in access-point mode")
		return nil
	})
	r := netreset.New(store, restart, netreset.WithTiming(netreset.DefaultPollInterval, 0, 0))
	if err := r.Reset(context.Background()); err != nil {
		return fmt.Errorf("network reset failed: %w", err)
	}
	return nil
}
