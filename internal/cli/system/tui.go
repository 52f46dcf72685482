package system

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/lockfile"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/tui"
)

type TuiCmd struct{}

func (c *TuiCmd) Run(ctx *cli.Context) error {
	dir, err := ctx.LockDir()
	if err != nil {
		return err
	}
	lock, err := lockfile.Acquire(dir, "")
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("Failed to release lockfile", "error", err)
		}
	}()

	m, err := ctx.Manager()
	if err != nil {
		return err
	}
	loc, err := ctx.Location()
	if err != nil {
		return err
	}

	p := tea.NewProgram(tui.NewModel(m, loc), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
