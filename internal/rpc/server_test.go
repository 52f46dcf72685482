package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/chime/internal/alarm"
	"github.com/julianstephens/chime/internal/storage"
	"github.com/julianstephens/chime/internal/storage/memory"
)

const testSecret = "test-rpc-secret"

// 2026-01-05 08:00 UTC, a Monday.
var testNow = time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)

// rpcCall sends a JSON-RPC request to the handler and returns the parsed response.
func rpcCall(t *testing.T, handler http.Handler, method string, params any, authToken string) (int, map[string]any) {
	t.Helper()
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		reqBody["params"] = params
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/jsonrpc", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var result map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			t.Fatalf("unmarshal response: %v (body: %s)", err, string(body))
		}
	}
	return rr.Code, result
}

func rpcResult(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %v", resp)
	}
	return result
}

func rpcErrorCode(t *testing.T, resp map[string]any) float64 {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", resp)
	}
	return errObj["code"].(float64)
}

type stubResetter struct {
	calls int
	err   error
}

func (r *stubResetter) Reset(ctx context.Context) error {
	r.calls++
	return r.err
}

func newTestServer(t *testing.T, opts ...Option) (http.Handler, *alarm.Manager, *memory.Store) {
	t.Helper()
	p := memory.New()
	m := alarm.NewManager(storage.NewStore(p), alarm.WithClock(func() time.Time { return testNow }))
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	opts = append([]Option{WithLocation(time.UTC), WithClock(func() time.Time { return testNow })}, opts...)
	s := NewServer(Config{Secret: testSecret, Version: "1.2.3"}, m, opts...)
	t.Cleanup(s.Close)
	return s.Handler(), m, p
}

func TestSystemGetVersion(t *testing.T) {
	h, _, _ := newTestServer(t)

	code, resp := rpcCall(t, h, "system.getVersion", nil, testSecret)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["jsonrpc"] != "2.0" {
		t.Fatalf("expected jsonrpc 2.0, got %v", resp["jsonrpc"])
	}
	if got := rpcResult(t, resp)["version"]; got != "1.2.3" {
		t.Errorf("version = %v, want 1.2.3", got)
	}
}

func TestAuth(t *testing.T) {
	h, _, _ := newTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong token", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := rpcCall(t, h, "system.getVersion", nil, tt.token)
			if code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", code)
			}
			if rpcErrorCode(t, resp) != -32600 {
				t.Errorf("expected code -32600, got %v", resp["error"])
			}
		})
	}

	t.Run("empty secret disables rpc", func(t *testing.T) {
		s := NewServer(Config{}, nil)
		defer s.Close()
		code, _ := rpcCall(t, s.Handler(), "system.getVersion", nil, "anything")
		if code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", code)
		}
	})
}

func TestValidToken(t *testing.T) {
	tests := []struct {
		secret, header string
		want           bool
	}{
		{"s3cret", "Bearer s3cret", true},
		{"s3cret", "bearer s3cret", false},
		{"s3cret", "s3cret", false},
		{"s3cret", "Bearer s3cre", false},
		{"", "Bearer ", false},
	}
	for _, tt := range tests {
		if got := validToken(tt.secret, tt.header); got != tt.want {
			t.Errorf("validToken(%q, %q) = %v, want %v", tt.secret, tt.header, got, tt.want)
		}
	}
}

func TestAlarmAdd(t *testing.T) {
	h, m, _ := newTestServer(t)

	_, resp := rpcCall(t, h, "alarm.add", map[string]any{
		"label":  "gym",
		"hour":   6,
		"minute": 30,
		"repeat": "custom",
		"days":   "tue,thu",
	}, testSecret)
	result := rpcResult(t, resp)

	if result["id"].(float64) != 1 {
		t.Errorf("id = %v, want 1", result["id"])
	}
	if result["time"] != "06:30" || result["repeat"] != "custom" || result["enabled"] != true {
		t.Errorf("unexpected result %v", result)
	}
	// Next Tuesday after Monday 08:00
	if result["nextAt"] != "2026-01-06T06:30:00Z" {
		t.Errorf("nextAt = %v, want 2026-01-06T06:30:00Z", result["nextAt"])
	}

	stored, ok := m.GetAlarmByID(1)
	if !ok || stored.Label != "gym" || stored.CustomDays != 0b0010100 {
		t.Errorf("stored alarm = %+v", stored)
	}
}

func TestAlarmAddDefaults(t *testing.T) {
	h, _, _ := newTestServer(t)

	_, resp := rpcCall(t, h, "alarm.add", map[string]any{"hour": 9}, testSecret)
	result := rpcResult(t, resp)
	if result["repeat"] != "once" || result["enabled"] != true {
		t.Errorf("defaults = %v, want once and enabled", result)
	}

	_, resp = rpcCall(t, h, "alarm.add", map[string]any{"hour": 9, "enabled": false}, testSecret)
	result = rpcResult(t, resp)
	if result["enabled"] != false || result["nextTrigger"].(float64) != 0 {
		t.Errorf("disabled add = %v, want no trigger", result)
	}
}

func TestAlarmAddInvalid(t *testing.T) {
	h, m, _ := newTestServer(t)

	tests := []struct {
		name   string
		params map[string]any
	}{
		{"hour out of range", map[string]any{"hour": 24}},
		{"minute out of range", map[string]any{"hour": 1, "minute": 60}},
		{"unknown repeat", map[string]any{"hour": 1, "repeat": "hourly"}},
		{"bad days", map[string]any{"hour": 1, "repeat": "custom", "days": "someday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp := rpcCall(t, h, "alarm.add", tt.params, testSecret)
			if got := rpcErrorCode(t, resp); got != float64(codeInvalidParams) {
				t.Errorf("expected code %d, got %v", codeInvalidParams, got)
			}
		})
	}
	if n := len(m.GetAlarms()); n != 0 {
		t.Errorf("invalid adds stored %d alarms", n)
	}
}

func TestAlarmUpdate(t *testing.T) {
	h, m, _ := newTestServer(t)
	rpcCall(t, h, "alarm.add", map[string]any{"label": "wake", "hour": 7, "repeat": "daily"}, testSecret)

	_, resp := rpcCall(t, h, "alarm.update", map[string]any{"id": 1, "label": "wake up"}, testSecret)
	result := rpcResult(t, resp)
	if result["label"] != "wake up" || result["time"] != "07:00" || result["repeat"] != "daily" {
		t.Errorf("partial update = %v, want other fields kept", result)
	}

	_, resp = rpcCall(t, h, "alarm.update", map[string]any{"id": 1, "repeat": "weekends"}, testSecret)
	result = rpcResult(t, resp)
	// Saturday 2026-01-10
	if result["nextAt"] != "2026-01-10T07:00:00Z" {
		t.Errorf("nextAt after repeat change = %v", result["nextAt"])
	}

	_, resp = rpcCall(t, h, "alarm.update", map[string]any{"id": 1, "hour": 99}, testSecret)
	if got := rpcErrorCode(t, resp); got != float64(codeInvalidParams) {
		t.Errorf("expected code %d, got %v", codeInvalidParams, got)
	}
	if a, _ := m.GetAlarmByID(1); a.Hour != 7 {
		t.Errorf("rejected update changed hour to %d", a.Hour)
	}
}

func TestAlarmNotFound(t *testing.T) {
	h, _, _ := newTestServer(t)

	tests := []struct {
		method string
		params map[string]any
	}{
		{"alarm.get", map[string]any{"id": 42}},
		{"alarm.update", map[string]any{"id": 42, "label": "x"}},
		{"alarm.delete", map[string]any{"id": 42}},
		{"alarm.enable", map[string]any{"id": 42, "enabled": true}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			_, resp := rpcCall(t, h, tt.method, tt.params, testSecret)
			if got := rpcErrorCode(t, resp); got != float64(codeAlarmNotFound) {
				t.Errorf("expected code %d, got %v", codeAlarmNotFound, got)
			}
		})
	}
}

func TestAlarmEnableAndDelete(t *testing.T) {
	h, _, _ := newTestServer(t)
	rpcCall(t, h, "alarm.add", map[string]any{"hour": 7, "repeat": "daily"}, testSecret)

	_, resp := rpcCall(t, h, "alarm.enable", map[string]any{"id": 1, "enabled": false}, testSecret)
	result := rpcResult(t, resp)
	if result["enabled"] != false || result["nextTrigger"].(float64) != 0 {
		t.Errorf("disabled alarm = %v", result)
	}

	_, resp = rpcCall(t, h, "alarm.enable", map[string]any{"id": 1, "enabled": true}, testSecret)
	if rpcResult(t, resp)["nextAt"] != "2026-01-06T07:00:00Z" {
		t.Errorf("re-enabled alarm = %v", resp["result"])
	}

	_, resp = rpcCall(t, h, "alarm.delete", map[string]any{"id": 1}, testSecret)
	rpcResult(t, resp)
	_, resp = rpcCall(t, h, "alarm.get", map[string]any{"id": 1}, testSecret)
	if got := rpcErrorCode(t, resp); got != float64(codeAlarmNotFound) {
		t.Errorf("get after delete: expected code %d, got %v", codeAlarmNotFound, got)
	}
}

func TestAlarmList(t *testing.T) {
	h, _, _ := newTestServer(t)
	rpcCall(t, h, "alarm.add", map[string]any{"label": "a", "hour": 7}, testSecret)
	rpcCall(t, h, "alarm.add", map[string]any{"label": "b", "hour": 8}, testSecret)

	_, resp := rpcCall(t, h, "alarm.list", nil, testSecret)
	result := rpcResult(t, resp)
	alarms := result["alarms"].([]any)
	if len(alarms) != 2 {
		t.Fatalf("listed %d alarms, want 2", len(alarms))
	}

	var doc struct {
		Alarms []struct {
			ID    uint32 `json:"id"`
			Label string `json:"label"`
		} `json:"alarms"`
	}
	if err := json.Unmarshal([]byte(result["data"].(string)), &doc); err != nil {
		t.Fatalf("data is not the JSON document: %v", err)
	}
	if len(doc.Alarms) != 2 || doc.Alarms[1].Label != "b" {
		t.Errorf("data = %+v", doc)
	}
}

func TestAlarmCheck(t *testing.T) {
	h, _, _ := newTestServer(t)
	rpcCall(t, h, "alarm.add", map[string]any{"label": "wake", "hour": 7, "repeat": "daily"}, testSecret)

	_, resp := rpcCall(t, h, "alarm.check", nil, testSecret)
	if fired := rpcResult(t, resp)["fired"].([]any); len(fired) != 0 {
		t.Errorf("check at 08:00 fired %v", fired)
	}

	_, resp = rpcCall(t, h, "alarm.check", map[string]any{"at": "2026-01-06T07:00:30Z"}, testSecret)
	fired := rpcResult(t, resp)["fired"].([]any)
	if len(fired) != 1 || fired[0].(map[string]any)["label"] != "wake" {
		t.Fatalf("fired = %v, want wake", fired)
	}

	// Same instant again fires nothing
	_, resp = rpcCall(t, h, "alarm.check", map[string]any{"at": "2026-01-06T07:00:30Z"}, testSecret)
	if fired := rpcResult(t, resp)["fired"].([]any); len(fired) != 0 {
		t.Errorf("repeat check fired %v", fired)
	}

	_, resp = rpcCall(t, h, "alarm.check", map[string]any{"at": "tomorrow"}, testSecret)
	if got := rpcErrorCode(t, resp); got != float64(codeInvalidParams) {
		t.Errorf("expected code %d, got %v", codeInvalidParams, got)
	}
}

func TestAlarmCheckReschedulesInServerZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	m := alarm.NewManager(storage.NewStore(memory.New()), alarm.WithClock(func() time.Time { return testNow.In(tokyo) }))
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	s := NewServer(Config{Secret: testSecret}, m, WithLocation(tokyo), WithClock(func() time.Time { return testNow }))
	t.Cleanup(s.Close)
	h := s.Handler()

	rpcCall(t, h, "alarm.add", map[string]any{"label": "wake", "hour": 7, "repeat": "daily"}, testSecret)

	// 07:00:30 in Tokyo
	_, resp := rpcCall(t, h, "alarm.check", map[string]any{"at": "2026-01-05T22:00:30Z"}, testSecret)
	if fired := rpcResult(t, resp)["fired"].([]any); len(fired) != 1 {
		t.Fatalf("fired = %v, want wake", fired)
	}

	a, _ := m.GetAlarmByID(1)
	if want := time.Date(2026, time.January, 7, 7, 0, 0, 0, tokyo).Unix(); a.NextTriggerTime != want {
		t.Errorf("next trigger = %v, want 07:00 Tokyo on Jan 7", time.Unix(a.NextTriggerTime, 0).In(tokyo))
	}
}

func TestAlarmUpdateKeepsConcurrentChanges(t *testing.T) {
	h, m, _ := newTestServer(t)
	rpcCall(t, h, "alarm.add", map[string]any{"label": "wake", "hour": 7, "repeat": "daily"}, testSecret)
	if err := m.EnableAlarm(1, false); err != nil {
		t.Fatal(err)
	}

	_, resp := rpcCall(t, h, "alarm.update", map[string]any{"id": 1, "minute": 30}, testSecret)
	result := rpcResult(t, resp)
	if result["time"] != "07:30" || result["enabled"] != false {
		t.Errorf("update = %v, want 07:30 and still disabled", result)
	}
}

func TestStorageFailure(t *testing.T) {
	h, m, p := newTestServer(t)
	p.FailPut(errors.New("disk full"))

	_, resp := rpcCall(t, h, "alarm.add", map[string]any{"hour": 7}, testSecret)
	if got := rpcErrorCode(t, resp); got != float64(codeStorage) {
		t.Errorf("expected code %d, got %v", codeStorage, got)
	}
	// The in-memory collection keeps the alarm
	if n := len(m.GetAlarms()); n != 1 {
		t.Errorf("collection has %d alarms, want 1", n)
	}
}

func TestReconfigureNetwork(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		h, _, _ := newTestServer(t)
		_, resp := rpcCall(t, h, "system.reconfigureNetwork", map[string]any{"confirm": true}, testSecret)
		if got := rpcErrorCode(t, resp); got != float64(codeUnavailable) {
			t.Errorf("expected code %d, got %v", codeUnavailable, got)
		}
	})

	t.Run("requires confirmation", func(t *testing.T) {
		r := &stubResetter{}
		h, _, _ := newTestServer(t, WithNetworkReset(r))
		_, resp := rpcCall(t, h, "system.reconfigureNetwork", map[string]any{"confirm": false}, testSecret)
		if got := rpcErrorCode(t, resp); got != float64(codeInvalidParams) {
			t.Errorf("expected code %d, got %v", codeInvalidParams, got)
		}
		if r.calls != 0 {
			t.Error("reset ran without confirmation")
		}
	})

	t.Run("resets", func(t *testing.T) {
		r := &stubResetter{}
		h, _, _ := newTestServer(t, WithNetworkReset(r))
		_, resp := rpcCall(t, h, "system.reconfigureNetwork", map[string]any{"confirm": true}, testSecret)
		rpcResult(t, resp)
		if r.calls != 1 {
			t.Errorf("Reset() called %d times, want 1", r.calls)
		}
	})
}

func TestHTTPEndpoints(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("chime_alarms 1\n"))
	})
	h, _, _ := newTestServer(t, WithMetrics(metrics))
	rpcCall(t, h, "alarm.add", map[string]any{"label": "wake", "hour": 7, "repeat": "daily"}, testSecret)

	get := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := get("/health", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"alarms":1`) {
		t.Errorf("/health = %d %s", rr.Code, rr.Body.String())
	}

	if rr := get("/alarms.ics", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("/alarms.ics without token = %d, want 401", rr.Code)
	}
	rr = get("/alarms.ics", testSecret)
	if rr.Code != http.StatusOK {
		t.Fatalf("/alarms.ics = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := rr.Body.String(); !strings.Contains(body, "BEGIN:VEVENT") || !strings.Contains(body, "RRULE:FREQ=DAILY") {
		t.Errorf("calendar body:\n%s", body)
	}

	if rr := get("/metrics", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "chime_alarms") {
		t.Errorf("/metrics = %d %s", rr.Code, rr.Body.String())
	}
}

func TestMetricsNotMounted(t *testing.T) {
	h, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("/metrics without metrics = %d, want 404", rr.Code)
	}
}
