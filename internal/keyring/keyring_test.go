package keyring

import (
	"errors"
	"testing"

	gokeyring "github.com/zalando/go-keyring"
)

func TestSetAndGetConnectionString(t *testing.T) {
	gokeyring.MockInit()

	testConnStr := "postgres://testuser@localhost:5432/testdb?sslmode=disable"

	if err := SetConnectionString(testConnStr); err != nil {
		t.Fatalf("SetConnectionString() failed: %v", err)
	}

	retrieved, err := GetConnectionString()
	if err != nil {
		t.Fatalf("GetConnectionString() failed: %v", err)
	}
	if retrieved != testConnStr {
		t.Errorf("GetConnectionString() = %q, want %q", retrieved, testConnStr)
	}
}

func TestSetConnectionStringEmpty(t *testing.T) {
	gokeyring.MockInit()

	if err := SetConnectionString(""); err == nil {
		t.Error("SetConnectionString(\"\") should return an error")
	}
}

func TestGetConnectionStringNotFound(t *testing.T) {
	gokeyring.MockInit()

	_, err := GetConnectionString()
	if err != ErrNotFound {
		t.Errorf("GetConnectionString() error = %v, want %v", err, ErrNotFound)
	}
}

func TestDeleteConnectionString(t *testing.T) {
	gokeyring.MockInit()

	if err := SetConnectionString("postgres://testuser@localhost:5432/testdb"); err != nil {
		t.Fatalf("SetConnectionString() failed: %v", err)
	}
	if err := DeleteConnectionString(); err != nil {
		t.Fatalf("DeleteConnectionString() failed: %v", err)
	}
	if _, err := GetConnectionString(); err != ErrNotFound {
		t.Errorf("After DeleteConnectionString(), GetConnectionString() error = %v, want %v", err, ErrNotFound)
	}
	if err := DeleteConnectionString(); err != ErrNotFound {
		t.Errorf("second DeleteConnectionString() error = %v, want %v", err, ErrNotFound)
	}
}

func TestRPCSecret(t *testing.T) {
	gokeyring.MockInit()

	if err := SetRPCSecret(""); err == nil {
		t.Error("SetRPCSecret(\"\") should return an error")
	}
	if err := SetRPCSecret("token-123"); err != nil {
		t.Fatalf("SetRPCSecret() failed: %v", err)
	}
	got, err := GetRPCSecret()
	if err != nil || got != "token-123" {
		t.Errorf("GetRPCSecret() = %q, %v; want token-123", got, err)
	}
	if err := DeleteRPCSecret(); err != nil {
		t.Fatalf("DeleteRPCSecret() failed: %v", err)
	}
}

func TestUnavailableKeyring(t *testing.T) {
	gokeyring.MockInitWithError(errors.New("dbus not running"))
	defer gokeyring.MockInit()

	if IsAvailable() {
		t.Error("IsAvailable() = true with a failing keyring")
	}
	if _, err := GetConnectionString(); !errors.Is(err, ErrKeyringUnavailable) {
		t.Errorf("GetConnectionString() error = %v, want ErrKeyringUnavailable", err)
	}
	if err := NewStore().Load(); !errors.Is(err, ErrKeyringUnavailable) {
		t.Errorf("Store.Load() error = %v, want ErrKeyringUnavailable", err)
	}
}

func TestStoreGetPut(t *testing.T) {
	gokeyring.MockInit()
	s := NewStore()
	if err := s.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	if _, found, err := s.Get("alarms", "alarms_data"); err != nil || found {
		t.Fatalf("Get() on empty keyring = found %v, err %v", found, err)
	}

	if err := s.Put("alarms", map[string]string{"alarms_data": `{"alarms":[]}`}, false); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	v, found, err := s.Get("alarms", "alarms_data")
	if err != nil || !found || v != `{"alarms":[]}` {
		t.Errorf("Get() = %q, %v, %v", v, found, err)
	}

	// Namespaces map to separate services
	if _, found, _ := s.Get("wifi", "alarms_data"); found {
		t.Error("key visible from another namespace")
	}
}

func TestStoreErase(t *testing.T) {
	gokeyring.MockInit()
	s := NewStore()

	_ = s.Put("nvs.net80211", map[string]string{"ssid": "home", "pass": "x"}, false)
	if err := s.Put("nvs.net80211", map[string]string{"marker": "1"}, true); err != nil {
		t.Fatalf("erase Put() failed: %v", err)
	}
	if _, found, _ := s.Get("nvs.net80211", "ssid"); found {
		t.Error("ssid survived erase")
	}
	if v, found, _ := s.Get("nvs.net80211", "marker"); !found || v != "1" {
		t.Errorf("marker = %q, %v; want 1, true", v, found)
	}
}
