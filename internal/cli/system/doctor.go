package system

import (
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/keyring"
	"github.com/julianstephens/chime/internal/lockfile"
	"github.com/julianstephens/chime/internal/models"
)

// schemaReporter is implemented by the SQL backends.
type schemaReporter interface {
	SchemaStatus() (current, latest int, err error)
}

type DoctorCmd struct{}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	fmt.Println("Running diagnostics...")
	fmt.Println()

	hasError := false
	storeReachable := false

	// Check 1: Config valid
	if err := ctx.Config.Validate(); err != nil {
		fmt.Printf("❌ Config: FAIL\n")
		fmt.Printf("   Error: %v\n", err)
		hasError = true
	} else {
		fmt.Printf("✓ Config: OK\n")
	}

	// Check 2: Store reachable
	if err := checkStoreReachable(ctx); err != nil {
		fmt.Printf("❌ Storage reachable: FAIL\n")
		fmt.Printf("   Error: %v\n", err)
		hasError = true
	} else {
		fmt.Printf("✓ Storage reachable: OK\n")
		storeReachable = true
	}

	// Check 3: Schema version (SQL backends only)
	if storeReachable {
		switch err := checkSchemaVersion(ctx); {
		case errors.Is(err, errNotApplicable):
			fmt.Printf("⊘ Schema version: SKIPPED (%s backend has no schema)\n", ctx.Config.Store.Backend)
		case err != nil:
			fmt.Printf("❌ Schema version: FAIL\n")
			fmt.Printf("   Error: %v\n", err)
			hasError = true
		default:
			fmt.Printf("✓ Schema version: OK\n")
		}
	} else {
		fmt.Printf("⊘ Schema version: SKIPPED (storage not reachable)\n")
	}

	// Check 4: Stored alarms decode
	var alarms []models.Alarm
	if storeReachable {
		m, err := ctx.Manager()
		if err == nil {
			err = m.LoadError()
			alarms = m.GetAlarms()
		}
		if err != nil {
			fmt.Printf("❌ Alarm data: FAIL\n")
			fmt.Printf("   Error: %v\n", err)
			hasError = true
		} else {
			fmt.Printf("✓ Alarm data: OK (%d alarms)\n", len(alarms))
		}
	} else {
		fmt.Printf("⊘ Alarm data: SKIPPED (storage not reachable)\n")
	}

	// Check 5: Alarm integrity
	if storeReachable {
		if err := checkAlarmIntegrity(alarms); err != nil {
			fmt.Printf("❌ Alarm integrity: FAIL\n")
			fmt.Printf("   Error: %v\n", err)
			hasError = true
		} else {
			fmt.Printf("✓ Alarm integrity: OK\n")
		}

		if n := countStalled(alarms); n > 0 {
			fmt.Printf("⚠ Scheduling: WARNING\n")
			fmt.Printf("   %d enabled alarm(s) have no next trigger; edit or re-enable them\n", n)
		}
	} else {
		fmt.Printf("⊘ Alarm integrity: SKIPPED (storage not reachable)\n")
	}

	// Check 6: Clock/timezone sanity
	if err := checkClockTimezone(ctx); err != nil {
		fmt.Printf("❌ Clock/timezone: FAIL\n")
		fmt.Printf("   Error: %v\n", err)
		hasError = true
	} else {
		fmt.Printf("✓ Clock/timezone: OK\n")
	}

	// Check 7: Daemon (informational)
	if dir, err := ctx.LockDir(); err == nil {
		if owner, err := lockfile.Check(dir); err == nil {
			if owner.Addr != "" {
				fmt.Printf("✓ Daemon: running (pid %d, rpc %s)\n", owner.PID, owner.Addr)
			} else {
				fmt.Printf("✓ Daemon: store held by pid %d\n", owner.PID)
			}
		} else {
			fmt.Printf("⊘ Daemon: not running\n")
		}
	}

	// Check 8: RPC secret (warning only)
	if cli.ResolveRPCSecret(ctx.Config) == "" {
		fmt.Printf("⚠ RPC secret: WARNING\n")
		fmt.Printf("   No secret configured; /jsonrpc is disabled. Run 'chime init' to generate one\n")
	} else {
		fmt.Printf("✓ RPC secret: OK\n")
	}

	// Check 9: Keyring (warning only)
	if !keyring.IsAvailable() {
		fmt.Printf("⚠ OS keyring: WARNING\n")
		fmt.Printf("   %v\n", keyring.ErrKeyringUnavailable)
	} else {
		fmt.Printf("✓ OS keyring: OK\n")
	}

	fmt.Println()
	if hasError {
		fmt.Println("Diagnostics completed with errors.")
		return errors.New("diagnostics failed")
	}

	fmt.Println("All diagnostics passed!")
	return nil
}

var errNotApplicable = errors.New("not applicable")

func checkStoreReachable(ctx *cli.Context) error {
	store, err := ctx.Store()
	if err != nil {
		return err
	}
	return store.Provider().Load()
}

func checkSchemaVersion(ctx *cli.Context) error {
	store, err := ctx.Store()
	if err != nil {
		return err
	}
	sr, ok := store.Provider().(schemaReporter)
	if !ok {
		return errNotApplicable
	}
	current, latest, err := sr.SchemaStatus()
	if err != nil {
		return err
	}
	if current != latest {
		return fmt.Errorf("schema version %d does not match expected %d, run 'chime init'", current, latest)
	}
	return nil
}

func checkAlarmIntegrity(alarms []models.Alarm) error {
	seen := make(map[uint32]bool, len(alarms))
	for _, a := range alarms {
		if a.ID == 0 {
			return fmt.Errorf("alarm %q has the reserved id 0", a.Label)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate alarm id %d", a.ID)
		}
		seen[a.ID] = true
		if err := a.Validate(); err != nil {
			return fmt.Errorf("alarm %d: %w", a.ID, err)
		}
		if !a.Enabled && a.NextTriggerTime != 0 {
			return fmt.Errorf("alarm %d is disabled but still scheduled", a.ID)
		}
	}
	return nil
}

// countStalled counts enabled repeating alarms with nothing scheduled.
func countStalled(alarms []models.Alarm) int {
	n := 0
	for _, a := range alarms {
		if a.Enabled && a.NextTriggerTime == 0 && a.RepeatMode != models.RepeatOnce {
			n++
		}
	}
	return n
}

func checkClockTimezone(ctx *cli.Context) error {
	loc, err := ctx.Location()
	if err != nil {
		return err
	}

	now := ctx.Clock()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system clock appears incorrect: %s", now.Format(time.RFC3339))
	}

	zone, _ := now.In(loc).Zone()
	if zone == "" {
		return fmt.Errorf("timezone %s has no zone name", loc)
	}
	return nil
}
