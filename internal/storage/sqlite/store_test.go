package sqlite

import (
	"errors"
	"path/filepath"
	"testing"

	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "nested", "chime.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInitAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chime.db")

	store := NewStore(path)
	if err := store.Load(); err == nil {
		t.Fatal("Load() before Init() should fail")
	}
	if err := store.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	// Init is idempotent
	if err := store.Init(); err != nil {
		t.Fatalf("second Init() failed: %v", err)
	}
	store.Close()

	reopened := NewStore(path)
	if err := reopened.Load(); err != nil {
		t.Fatalf("Load() after Init() failed: %v", err)
	}
	defer reopened.Close()

	current, latest, err := reopened.SchemaStatus()
	if err != nil {
		t.Fatalf("SchemaStatus() failed: %v", err)
	}
	if current != latest || latest < 1 {
		t.Errorf("SchemaStatus() = %d, %d; want equal and >= 1", current, latest)
	}
}

func TestPutAndGet(t *testing.T) {
	store := setupTestStore(t)

	if _, found, err := store.Get("alarms", "alarms_data"); err != nil || found {
		t.Fatalf("Get() on empty db = found %v, err %v", found, err)
	}

	if err := store.Put("alarms", map[string]string{"alarms_data": `{"alarms":[]}`}, false); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := store.Put("alarms", map[string]string{"alarms_data": `{"alarms":[{"id":1}]}`}, false); err != nil {
		t.Fatalf("overwrite Put() failed: %v", err)
	}

	v, found, err := store.Get("alarms", "alarms_data")
	if err != nil || !found {
		t.Fatalf("Get() = found %v, err %v", found, err)
	}
	if v != `{"alarms":[{"id":1}]}` {
		t.Errorf("Get() = %q", v)
	}
}

func TestPutErase(t *testing.T) {
	store := setupTestStore(t)

	_ = store.Put("nvs.net80211", map[string]string{"ssid": "home", "pass": "x"}, false)
	_ = store.Put("wifi", map[string]string{"force_ap": "0"}, false)

	if err := store.Put("nvs.net80211", nil, true); err != nil {
		t.Fatalf("erase Put() failed: %v", err)
	}
	if _, found, _ := store.Get("nvs.net80211", "ssid"); found {
		t.Error("ssid survived erase")
	}
	if _, found, _ := store.Get("wifi", "force_ap"); !found {
		t.Error("erase removed keys from another namespace")
	}
}

func TestThroughStagedHandle(t *testing.T) {
	store := setupTestStore(t)
	kv := storage.NewStore(store)

	h, err := kv.Open("alarms")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer h.Close()

	if err := h.SetString("alarms_data", "payload"); err != nil {
		t.Fatal(err)
	}
	if err := h.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if v, _, _ := store.Get("alarms", "alarms_data"); v != "payload" {
		t.Errorf("committed value = %q, want payload", v)
	}
}

func TestOpenUninitializedIsIOError(t *testing.T) {
	kv := storage.NewStore(NewStore(filepath.Join(t.TempDir(), "missing.db")))
	_, err := kv.Open("alarms")
	if !errors.Is(err, apperrors.ErrIO) {
		t.Errorf("Open() error = %v, want io kind", err)
	}
}

func TestClosedStoreFails(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "chime.db"))
	if _, _, err := store.Get("alarms", "k"); err == nil {
		t.Error("Get() on unopened store should fail")
	}
	if err := store.Put("alarms", map[string]string{"k": "v"}, false); err == nil {
		t.Error("Put() on unopened store should fail")
	}
}
