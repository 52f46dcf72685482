package system

import (
	"errors"
	"fmt"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/daemon"
	"github.com/julianstephens/chime/internal/logger"
)

type ServeCmd struct {
	Listen string `help:"Override rpc.listen (host:port)."`
}

func (c *ServeCmd) Run(ctx *cli.Context) error {
	if c.Listen != "" {
		ctx.Config.RPC.Listen = c.Listen
	}
	store, err := ctx.Store()
	if err != nil {
		return err
	}

	d := daemon.New(ctx.Config, store, cli.ResolveRPCSecret(ctx.Config))

	runCtx, cancel := daemon.SetupShutdownHandler()
	defer cancel()

	go func() {
		select {
		case <-d.Ready():
			fmt.Printf("✓ chime serving on %s\n", d.Addr())
		case <-runCtx.Done():
		}
	}()

	err = d.Run(runCtx)
	if errors.Is(err, daemon.ErrRestartRequested) {
		logger.Info("Exiting for restart after network reset")
		return err
	}
	if err != nil {
		return err
	}
	logger.Info("chime stopped")
	return nil
}
