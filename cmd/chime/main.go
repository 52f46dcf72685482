package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/cli/alarms"
	"github.com/julianstephens/chime/internal/cli/system"
	"github.com/julianstephens/chime/internal/config"
	"github.com/julianstephens/chime/internal/constants"
	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/logger"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path." type:"string" default:"~/.config/chime/config.yaml"`
	Debug   bool   `help:"Enable debug logging."`

	Init    system.InitCmd         `cmd:"" help:"Initialize chime storage and the RPC secret."`
	Add     alarms.AlarmAddCmd     `cmd:"" help:"Add an alarm."`
	Edit    alarms.AlarmEditCmd    `cmd:"" help:"Edit an alarm."`
	Delete  alarms.AlarmDeleteCmd  `cmd:"" help:"Delete an alarm."`
	Enable  alarms.AlarmEnableCmd  `cmd:"" help:"Switch an alarm on."`
	Disable alarms.AlarmDisableCmd `cmd:"" help:"Switch an alarm off."`
	List    alarms.AlarmListCmd    `cmd:"" help:"List alarms." default:"1"`
	Show    alarms.AlarmShowCmd    `cmd:"" help:"Show an alarm and its upcoming fire times."`
	Check   alarms.AlarmCheckCmd   `cmd:"" help:"Fire due alarms and reschedule them."`
	Export  alarms.AlarmExportCmd  `cmd:"" help:"Export alarms as JSON, YAML or iCalendar."`
	Serve   system.ServeCmd        `cmd:"" help:"Run the alarm daemon and JSON-RPC server."`
	Tui     system.TuiCmd          `cmd:"" help:"Launch the interactive TUI."`
	Doctor  system.DoctorCmd       `cmd:"" help:"Run health checks and diagnostics."`
	Keyring struct {
		Set    system.KeyringSetCmd    `cmd:"" help:"Store a connection string or RPC secret in the OS keyring."`
		Get    system.KeyringGetCmd    `cmd:"" help:"Show the stored connection string or RPC secret."`
		Delete system.KeyringDeleteCmd `cmd:"" help:"Remove a stored connection string or RPC secret."`
		Status system.KeyringStatusCmd `cmd:"" help:"Check OS keyring availability." default:"1"`
	} `cmd:"" help:"Manage credentials in the OS keyring."`
	NetReset system.NetResetCmd `cmd:"" name:"net-reset" help:"Erase the stored network configuration and force access-point mode."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Alarm scheduler with durable storage and a JSON-RPC daemon"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		if cfg == nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Warning: could not write default config: %v\n", err)
	}
	if CLI.Debug {
		cfg.Log.Debug = true
	}

	// serve logs to the console as well as the log file
	serving := ctx.Selected() != nil && ctx.Selected().Name == "serve"
	logDir, err := config.ExpandPath(cfg.Log.Dir)
	if err == nil {
		err = logger.Init(logger.Config{Debug: cfg.Log.Debug, Dir: logDir, Console: serving})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	// doctor reports an invalid config itself
	if ctx.Selected() == nil || ctx.Selected().Name != "doctor" {
		if err := cfg.Validate(); err != nil {
			apperrors.Fatal(err)
		}
	}

	configPath, err := config.ExpandPath(CLI.Config)
	if err != nil {
		apperrors.Fatal(err)
	}
	appCtx := &cli.Context{
		Config:     cfg,
		ConfigPath: configPath,
	}

	err = ctx.Run(appCtx)
	if closeErr := appCtx.Close(); closeErr != nil {
		logger.Warn("Failed to close storage", "error", closeErr)
	}
	apperrors.Fatal(err)
}
