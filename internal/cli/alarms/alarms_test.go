package alarms

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/codec"
	"github.com/julianstephens/chime/internal/config"
	"github.com/julianstephens/chime/internal/lockfile"
	"github.com/julianstephens/chime/internal/models"
	"github.com/julianstephens/chime/internal/storage/memory"
)

// 2026-01-05 06:00 UTC, a Monday.
var testNow = time.Date(2026, time.January, 5, 6, 0, 0, 0, time.UTC)

func setupTestContext(t *testing.T) (*cli.Context, *memory.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.Backend = config.BackendMemory
	cfg.Timezone = "UTC"
	cfg.LockDir = t.TempDir()

	p := memory.New()
	ctx := &cli.Context{
		Config:     cfg,
		ConfigPath: filepath.Join(t.TempDir(), "config.yaml"),
		Provider:   p,
		Now:        func() time.Time { return testNow },
	}
	t.Cleanup(func() {
		if err := ctx.Close(); err != nil {
			t.Errorf("failed to close context: %v", err)
		}
	})
	return ctx, p
}

func addAlarm(t *testing.T, ctx *cli.Context, cmd AlarmAddCmd) models.Alarm {
	t.Helper()
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	m, err := ctx.Manager()
	if err != nil {
		t.Fatalf("Manager() failed: %v", err)
	}
	all := m.GetAlarms()
	return all[len(all)-1]
}

func persisted(t *testing.T, p *memory.Store) []models.Alarm {
	t.Helper()
	blob, ok := p.Value("alarms", "alarms_data")
	if !ok {
		t.Fatal("no alarms_data committed")
	}
	alarms, err := codec.JSON{}.Decode(blob)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	return alarms
}

func TestAlarmAddCmd(t *testing.T) {
	tests := []struct {
		name      string
		cmd       AlarmAddCmd
		want      models.Alarm
		wantError bool
	}{
		{
			name: "daily",
			cmd:  AlarmAddCmd{Time: "07:00", Label: "wake", Repeat: "daily"},
			want: models.Alarm{Label: "wake", Hour: 7, RepeatMode: models.RepeatDaily, Enabled: true},
		},
		{
			name: "custom days",
			cmd:  AlarmAddCmd{Time: "18:15", Repeat: "custom", Days: "mon,wed,fri"},
			want: models.Alarm{Hour: 18, Minute: 15, RepeatMode: models.RepeatCustom, CustomDays: 0b0101010, Enabled: true},
		},
		{
			name: "numeric repeat, disabled",
			cmd:  AlarmAddCmd{Time: "09:30", Repeat: "3", Disabled: true},
			want: models.Alarm{Hour: 9, Minute: 30, RepeatMode: models.RepeatWeekends},
		},
		{name: "custom without days", cmd: AlarmAddCmd{Time: "07:00", Repeat: "custom"}, wantError: true},
		{name: "days without custom", cmd: AlarmAddCmd{Time: "07:00", Repeat: "daily", Days: "mon"}, wantError: true},
		{name: "bad day", cmd: AlarmAddCmd{Time: "07:00", Repeat: "custom", Days: "funday"}, wantError: true},
		{name: "bad time", cmd: AlarmAddCmd{Time: "7pm", Repeat: "once"}, wantError: true},
		{name: "bad repeat", cmd: AlarmAddCmd{Time: "07:00", Repeat: "hourly"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, p := setupTestContext(t)

			err := tt.cmd.Run(ctx)
			if (err != nil) != tt.wantError {
				t.Fatalf("Run() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				if _, ok := p.Value("alarms", "alarms_data"); ok {
					t.Error("rejected add was persisted")
				}
				return
			}

			saved := persisted(t, p)
			if len(saved) != 1 {
				t.Fatalf("persisted %d alarms, want 1", len(saved))
			}
			got := saved[0]
			if got.ID == 0 {
				t.Error("alarm was stored without an id")
			}
			if tt.want.Enabled && got.NextTriggerTime == 0 {
				t.Error("enabled alarm was not scheduled")
			}
			got.ID, got.NextTriggerTime = 0, 0
			if got != tt.want {
				t.Errorf("persisted %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAlarmEditCmd(t *testing.T) {
	ctx, p := setupTestContext(t)
	a := addAlarm(t, ctx, AlarmAddCmd{Time: "07:00", Label: "wake", Repeat: "daily"})

	t.Run("switch to custom", func(t *testing.T) {
		cmd := &AlarmEditCmd{ID: a.ID, Repeat: "custom", Days: "sat"}
		if err := cmd.Run(ctx); err != nil {
			t.Fatalf("edit failed: %v", err)
		}
		got := persisted(t, p)[0]
		if got.RepeatMode != models.RepeatCustom || got.CustomDays != models.DaysMask(time.Saturday) {
			t.Errorf("got repeat %v days %07b", got.RepeatMode, got.CustomDays)
		}
		if want := time.Date(2026, time.January, 10, 7, 0, 0, 0, time.UTC).Unix(); got.NextTriggerTime != want {
			t.Errorf("next trigger = %d, want %d", got.NextTriggerTime, want)
		}
	})

	t.Run("leaving custom clears days", func(t *testing.T) {
		cmd := &AlarmEditCmd{ID: a.ID, Repeat: "weekdays", Time: "06:45"}
		if err := cmd.Run(ctx); err != nil {
			t.Fatalf("edit failed: %v", err)
		}
		got := persisted(t, p)[0]
		if got.CustomDays != 0 || got.Hour != 6 || got.Minute != 45 {
			t.Errorf("got %+v", got)
		}
		if got.Label != "wake" {
			t.Errorf("label changed to %q", got.Label)
		}
	})

	t.Run("clear label", func(t *testing.T) {
		if err := (&AlarmEditCmd{ID: a.ID, ClearLabel: true}).Run(ctx); err != nil {
			t.Fatalf("edit failed: %v", err)
		}
		if got := persisted(t, p)[0]; got.Label != "" {
			t.Errorf("label = %q, want empty", got.Label)
		}
	})

	errorCases := []struct {
		name string
		cmd  AlarmEditCmd
	}{
		{"not found", AlarmEditCmd{ID: a.ID + 1, Time: "08:00"}},
		{"days on non-custom", AlarmEditCmd{ID: a.ID, Days: "mon"}},
		{"bad time", AlarmEditCmd{ID: a.ID, Time: "25:00"}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cmd.Run(ctx); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if err := (&AlarmEditCmd{Label: "x", ClearLabel: true}).Validate(); err == nil {
		t.Error("Validate() accepted --label with --clear-label")
	}
}

func TestAlarmEnableDisableDelete(t *testing.T) {
	ctx, p := setupTestContext(t)
	a := addAlarm(t, ctx, AlarmAddCmd{Time: "07:00", Repeat: "daily"})

	if err := (&AlarmDisableCmd{ID: a.ID}).Run(ctx); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	if got := persisted(t, p)[0]; got.Enabled || got.NextTriggerTime != 0 {
		t.Errorf("disabled alarm = %+v, want off and unscheduled", got)
	}

	if err := (&AlarmEnableCmd{ID: a.ID}).Run(ctx); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if got := persisted(t, p)[0]; !got.Enabled || got.NextTriggerTime != a.NextTriggerTime {
		t.Errorf("enabled alarm = %+v, want next %d", got, a.NextTriggerTime)
	}

	if err := (&AlarmDeleteCmd{ID: a.ID}).Run(ctx); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got := persisted(t, p); len(got) != 0 {
		t.Errorf("persisted %d alarms after delete", len(got))
	}
	if err := (&AlarmDeleteCmd{ID: a.ID}).Run(ctx); err == nil {
		t.Error("deleting a missing alarm succeeded")
	}
	if err := (&AlarmEnableCmd{ID: a.ID}).Run(ctx); err == nil {
		t.Error("enabling a missing alarm succeeded")
	}
}

func TestAlarmCheckCmd(t *testing.T) {
	ctx, p := setupTestContext(t)
	a := addAlarm(t, ctx, AlarmAddCmd{Time: "07:00", Repeat: "daily"})

	if err := (&AlarmCheckCmd{}).Run(ctx); err != nil {
		t.Fatalf("check at 06:00 failed: %v", err)
	}
	if got := persisted(t, p)[0]; got.NextTriggerTime != a.NextTriggerTime {
		t.Errorf("alarm rescheduled before it was due")
	}

	if err := (&AlarmCheckCmd{At: "2026-01-05T07:00:30Z"}).Run(ctx); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if want := time.Date(2026, time.January, 6, 7, 0, 0, 0, time.UTC).Unix(); persisted(t, p)[0].NextTriggerTime != want {
		t.Errorf("next trigger after firing = %d, want %d", persisted(t, p)[0].NextTriggerTime, want)
	}

	if err := (&AlarmCheckCmd{At: "tomorrow"}).Validate(); err == nil {
		t.Error("Validate() accepted a non-RFC3339 time")
	}
	before := p.Commits("alarms")
	if err := (&AlarmCheckCmd{At: "tomorrow"}).Run(ctx); err == nil || !strings.Contains(err.Error(), "invalid --at") {
		t.Errorf("Run() error = %v, want invalid --at", err)
	}
	if p.Commits("alarms") != before {
		t.Error("check with a bad --at touched the store")
	}
}

func TestAlarmCheckCmdStorageFailure(t *testing.T) {
	ctx, p := setupTestContext(t)
	addAlarm(t, ctx, AlarmAddCmd{Time: "07:00", Repeat: "daily"})

	p.FailPut(errors.New("disk full"))
	err := (&AlarmCheckCmd{At: "2026-01-05T07:00:30Z"}).Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "could not be saved") {
		t.Errorf("Run() error = %v, want a save failure", err)
	}
}

func TestAlarmExportCmd(t *testing.T) {
	ctx, _ := setupTestContext(t)
	addAlarm(t, ctx, AlarmAddCmd{Time: "07:00", Label: "wake", Repeat: "weekdays"})

	tests := []struct {
		format string
		want   []string
	}{
		{"json", []string{`"label":"wake"`, `"repeat_mode":2`}},
		{"yaml", []string{"label: wake", "repeat_mode: 2"}},
		{"ics", []string{"BEGIN:VCALENDAR", "SUMMARY:wake", "RRULE:FREQ=WEEKLY", "BEGIN:VALARM"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "alarms."+tt.format)
			if err := (&AlarmExportCmd{Format: tt.format, Output: out}).Run(ctx); err != nil {
				t.Fatalf("export failed: %v", err)
			}
			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("failed to read export: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(string(data), want) {
					t.Errorf("export missing %q:\n%s", want, data)
				}
			}
		})
	}
}

func TestListAndShow(t *testing.T) {
	ctx, _ := setupTestContext(t)

	if err := (&AlarmListCmd{}).Run(ctx); err != nil {
		t.Errorf("list of empty collection failed: %v", err)
	}
	a := addAlarm(t, ctx, AlarmAddCmd{Time: "07:00", Label: "a label long enough to be truncated", Repeat: "custom", Days: "mon,tue,wed,thu,fri"})

	if err := (&AlarmListCmd{}).Run(ctx); err != nil {
		t.Errorf("list failed: %v", err)
	}
	if err := (&AlarmListCmd{JSON: true}).Run(ctx); err != nil {
		t.Errorf("list --json failed: %v", err)
	}
	if err := (&AlarmShowCmd{ID: a.ID, Count: 3}).Run(ctx); err != nil {
		t.Errorf("show failed: %v", err)
	}
	if err := (&AlarmShowCmd{ID: a.ID + 1, Count: 3}).Run(ctx); err == nil {
		t.Error("show of a missing alarm succeeded")
	}
}

func TestMutationsRefusedWhileOwned(t *testing.T) {
	ctx, p := setupTestContext(t)
	a := addAlarm(t, ctx, AlarmAddCmd{Time: "07:00", Repeat: "daily"})
	commits := p.Commits("alarms")

	lock, err := lockfile.Acquire(ctx.Config.LockDir, "127.0.0.1:8645")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer lock.Release()

	commands := map[string]interface{ Run(*cli.Context) error }{
		"add":     &AlarmAddCmd{Time: "08:00", Repeat: "once"},
		"edit":    &AlarmEditCmd{ID: a.ID, Time: "08:00"},
		"delete":  &AlarmDeleteCmd{ID: a.ID},
		"enable":  &AlarmEnableCmd{ID: a.ID},
		"disable": &AlarmDisableCmd{ID: a.ID},
		"check":   &AlarmCheckCmd{At: "2026-01-05T07:00:30Z"},
	}
	for name, cmd := range commands {
		t.Run(name, func(t *testing.T) {
			if err := cmd.Run(ctx); !errors.Is(err, lockfile.ErrLocked) {
				t.Errorf("Run() error = %v, want ErrLocked", err)
			}
		})
	}

	if got := p.Commits("alarms"); got != commits {
		t.Errorf("commits = %d, want %d (no writes while owned)", got, commits)
	}
	if err := (&AlarmListCmd{}).Run(ctx); err != nil {
		t.Errorf("list while owned failed: %v", err)
	}
}
