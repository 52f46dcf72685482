package system

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/config"
	"github.com/julianstephens/chime/internal/keyring"
	"github.com/julianstephens/chime/internal/logger"
)

type InitCmd struct {
	RotateSecret bool `help:"Generate a new RPC secret even if one exists."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	store, err := ctx.Store()
	if err != nil {
		return err
	}
	if err := store.Provider().Init(); err != nil {
		return err
	}
	fmt.Printf("Initialized chime storage at: %s\n", store.Provider().GetConfigPath())

	if err := config.Save(ctx.ConfigPath, ctx.Config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Config written to: %s\n", ctx.ConfigPath)

	return c.ensureSecret(ctx)
}

// ensureSecret provisions the RPC bearer token, preferring the OS keyring
// and falling back to the config file.
func (c *InitCmd) ensureSecret(ctx *cli.Context) error {
	if !c.RotateSecret && cli.ResolveRPCSecret(ctx.Config) != "" {
		fmt.Println("✓ RPC secret already configured")
		return nil
	}

	secret := uuid.NewString()
	if keyring.IsAvailable() {
		err := keyring.SetRPCSecret(secret)
		if err == nil {
			if ctx.Config.RPC.Secret != "" {
				// The keyring copy is only used when the config has none
				ctx.Config.RPC.Secret = ""
				if err := config.Save(ctx.ConfigPath, ctx.Config); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
			}
			fmt.Println("✓ RPC secret generated and stored in OS keyring")
			return nil
		}
		logger.Warn("Failed to store RPC secret in keyring, using config file", "error", err)
	}

	ctx.Config.RPC.Secret = secret
	if err := config.Save(ctx.ConfigPath, ctx.Config); err != nil {
		return fmt.Errorf("failed to store RPC secret: %w", err)
	}
	fmt.Printf("✓ RPC secret generated and stored in %s\n", ctx.ConfigPath)
	return nil
}
