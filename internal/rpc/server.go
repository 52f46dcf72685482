// Package rpc exposes alarm operations over a JSON-RPC 2.0 HTTP bridge.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/ics"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/models"
)

// Custom JSON-RPC error codes.
const (
	codeAlarmNotFound  = jrpc2.Code(-32001)
	codeUnavailable    = jrpc2.Code(-32002)
	codeStorage        = jrpc2.Code(-32003)
	codeCorruptData    = jrpc2.Code(-32004)
	codeInvalidParams  = jrpc2.Code(-32602)
	codeInternalFailed = jrpc2.Code(-32603)
)

// Alarms is the alarm surface served over RPC. *alarm.Manager satisfies it.
type Alarms interface {
	AddAlarm(a models.Alarm) (models.Alarm, error)
	UpdateFunc(id uint32, fn func(a *models.Alarm) error) (models.Alarm, error)
	DeleteAlarm(id uint32) error
	EnableAlarm(id uint32, enable bool) error
	GetAlarmByID(id uint32) (models.Alarm, bool)
	GetAlarms() []models.Alarm
	Check(now time.Time) ([]models.Alarm, error)
	GetAlarmsAsJSON() (string, error)
}

// NetworkResetter clears network settings and restarts into setup mode.
type NetworkResetter interface {
	Reset(ctx context.Context) error
}

// Config holds configuration for the JSON-RPC endpoint.
type Config struct {
	Secret  string // Auth token; empty disables /jsonrpc and /alarms.ics
	Version string
}

type Option func(*Server)

func WithNetworkReset(r NetworkResetter) Option {
	return func(s *Server) { s.netReset = r }
}

// WithLocation sets the zone used for rendered times and calendar export.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server manages the JSON-RPC bridge and method handlers.
type Server struct {
	bridge   jhttp.Bridge
	secret   string
	version  string
	alarms   Alarms
	netReset NetworkResetter
	metrics  http.Handler
	loc      *time.Location
	now      func() time.Time
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version string `json:"version"`
}

// AlarmResult is the wire form of an alarm.
type AlarmResult struct {
	ID          uint32 `json:"id"`
	Label       string `json:"label"`
	Time        string `json:"time"`
	Hour        int    `json:"hour"`
	Minute      int    `json:"minute"`
	Repeat      string `json:"repeat"`
	CustomDays  uint8  `json:"customDays"`
	Enabled     bool   `json:"enabled"`
	NextTrigger int64  `json:"nextTrigger"`
	NextAt      string `json:"nextAt,omitempty"`
}

// AddParams is the input for alarm.add.
type AddParams struct {
	Label   string `json:"label,omitempty"`
	Hour    int    `json:"hour"`
	Minute  int    `json:"minute"`
	Repeat  string `json:"repeat,omitempty"` // mode name, default "once"
	Days    string `json:"days,omitempty"`   // weekdays for "custom", e.g. "mon,wed"
	Enabled *bool  `json:"enabled,omitempty"`
}

// UpdateParams is the input for alarm.update. Unset fields keep their
// current value.
type UpdateParams struct {
	ID      uint32  `json:"id"`
	Label   *string `json:"label,omitempty"`
	Hour    *int    `json:"hour,omitempty"`
	Minute  *int    `json:"minute,omitempty"`
	Repeat  *string `json:"repeat,omitempty"`
	Days    *string `json:"days,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// IDParam is a common input with just an alarm ID.
type IDParam struct {
	ID uint32 `json:"id"`
}

// EnableParams is the input for alarm.enable.
type EnableParams struct {
	ID      uint32 `json:"id"`
	Enabled bool   `json:"enabled"`
}

// ListResult is the response for alarm.list. Data is the persisted JSON
// document of the whole collection.
type ListResult struct {
	Alarms []*AlarmResult `json:"alarms"`
	Data   string         `json:"data"`
}

// CheckParams is the input for alarm.check. At is RFC 3339; empty means now.
type CheckParams struct {
	At string `json:"at,omitempty"`
}

// CheckResult is the response for alarm.check.
type CheckResult struct {
	Fired []*AlarmResult `json:"fired"`
}

// ResetParams is the input for system.reconfigureNetwork.
type ResetParams struct {
	Confirm bool `json:"confirm"`
}

// EmptyResult is a placeholder for methods that return no data.
type EmptyResult struct{}

// NewServer creates a Server with method handlers and HTTP bridge.
func NewServer(cfg Config, alarms Alarms, opts ...Option) *Server {
	s := &Server{
		secret:  cfg.Secret,
		version: cfg.Version,
		alarms:  alarms,
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	methods := handler.Map{
		"system.getVersion":         handler.New(s.systemGetVersion),
		"system.reconfigureNetwork": handler.New(s.systemReconfigureNetwork),
		"alarm.add":                 handler.New(s.alarmAdd),
		"alarm.update":              handler.New(s.alarmUpdate),
		"alarm.delete":              handler.New(s.alarmDelete),
		"alarm.enable":              handler.New(s.alarmEnable),
		"alarm.get":                 handler.New(s.alarmGet),
		"alarm.list":                handler.New(s.alarmList),
		"alarm.check":               handler.New(s.alarmCheck),
	}

	s.bridge = jhttp.NewBridge(methods, nil)
	return s
}

// Handler returns the HTTP surface: /jsonrpc, /alarms.ics, /health and, if
// configured, /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/jsonrpc", requireToken(s.secret, s.bridge))
	mux.Handle("GET /alarms.ics", requireToken(s.secret, http.HandlerFunc(s.handleCalendar)))
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Close shuts down the jrpc2 bridge.
func (s *Server) Close() {
	s.bridge.Close()
}

func (s *Server) systemGetVersion(_ context.Context) (*VersionResult, error) {
	return &VersionResult{Version: s.version}, nil
}

// systemReconfigureNetwork erases network settings and requests a restart
// into setup mode. It needs an explicit confirmation.
func (s *Server) systemReconfigureNetwork(ctx context.Context, p *ResetParams) (*EmptyResult, error) {
	if p == nil || !p.Confirm {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "network reset requires confirm: true"}
	}
	if s.netReset == nil {
		return nil, &jrpc2.Error{Code: codeUnavailable, Message: "network reset is not available"}
	}
	if err := s.netReset.Reset(ctx); err != nil {
		return nil, toRPCError(err)
	}
	return &EmptyResult{}, nil
}

func (s *Server) alarmAdd(_ context.Context, p *AddParams) (*AlarmResult, error) {
	if p == nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing params"}
	}
	a := models.Alarm{
		Label:   p.Label,
		Hour:    p.Hour,
		Minute:  p.Minute,
		Enabled: true,
	}
	if p.Enabled != nil {
		a.Enabled = *p.Enabled
	}
	if err := applyRepeat(&a, p.Repeat, p.Days); err != nil {
		return nil, err
	}

	added, err := s.alarms.AddAlarm(a)
	if err != nil {
		return nil, toRPCError(err)
	}
	return s.result(added), nil
}

func (s *Server) alarmUpdate(_ context.Context, p *UpdateParams) (*AlarmResult, error) {
	if p == nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing params"}
	}
	updated, err := s.alarms.UpdateFunc(p.ID, func(a *models.Alarm) error {
		if p.Label != nil {
			a.Label = *p.Label
		}
		if p.Hour != nil {
			a.Hour = *p.Hour
		}
		if p.Minute != nil {
			a.Minute = *p.Minute
		}
		if p.Enabled != nil {
			a.Enabled = *p.Enabled
		}
		if p.Repeat == nil && p.Days == nil {
			return nil
		}
		repeat := a.RepeatMode.String()
		if p.Repeat != nil {
			repeat = *p.Repeat
		}
		days := ""
		if p.Days != nil {
			days = *p.Days
		}
		return applyRepeat(a, repeat, days)
	})
	if err != nil {
		return nil, toRPCError(err)
	}
	return s.result(updated), nil
}

func (s *Server) alarmDelete(_ context.Context, p *IDParam) (*EmptyResult, error) {
	if p == nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing params"}
	}
	if err := s.alarms.DeleteAlarm(p.ID); err != nil {
		return nil, toRPCError(err)
	}
	return &EmptyResult{}, nil
}

func (s *Server) alarmEnable(_ context.Context, p *EnableParams) (*AlarmResult, error) {
	if p == nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing params"}
	}
	if err := s.alarms.EnableAlarm(p.ID, p.Enabled); err != nil {
		return nil, toRPCError(err)
	}
	a, _ := s.alarms.GetAlarmByID(p.ID)
	return s.result(a), nil
}

func (s *Server) alarmGet(_ context.Context, p *IDParam) (*AlarmResult, error) {
	if p == nil {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing params"}
	}
	a, ok := s.alarms.GetAlarmByID(p.ID)
	if !ok {
		return nil, &jrpc2.Error{Code: codeAlarmNotFound, Message: "alarm not found"}
	}
	return s.result(a), nil
}

func (s *Server) alarmList(_ context.Context) (*ListResult, error) {
	data, err := s.alarms.GetAlarmsAsJSON()
	if err != nil {
		return nil, toRPCError(err)
	}
	alarms := s.alarms.GetAlarms()
	out := make([]*AlarmResult, 0, len(alarms))
	for _, a := range alarms {
		out = append(out, s.result(a))
	}
	return &ListResult{Alarms: out, Data: data}, nil
}

// alarmCheck runs a trigger check at the given instant, or now.
func (s *Server) alarmCheck(_ context.Context, p *CheckParams) (*CheckResult, error) {
	now := s.now()
	if p != nil && p.At != "" {
		at, err := time.Parse(time.RFC3339, p.At)
		if err != nil {
			return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "invalid at: " + err.Error()}
		}
		// Rescheduling follows the zone of now
		now = at.In(s.loc)
	}

	fired, err := s.alarms.Check(now)
	if err != nil {
		// Alarms still fired; only the save failed
		logger.Warn("Trigger check could not persist", "fired", len(fired), "error", err)
		return nil, toRPCError(err)
	}
	out := make([]*AlarmResult, 0, len(fired))
	for _, a := range fired {
		out = append(out, s.result(a))
	}
	return &CheckResult{Fired: out}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"alarms":  len(s.alarms.GetAlarms()),
	})
}

func (s *Server) handleCalendar(w http.ResponseWriter, _ *http.Request) {
	body, err := ics.Export(s.alarms.GetAlarms(), s.loc, s.now())
	if err != nil {
		logger.Error("Failed to export calendar", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "calendar export failed"})
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) result(a models.Alarm) *AlarmResult {
	r := &AlarmResult{
		ID:          a.ID,
		Label:       a.Label,
		Time:        a.TimeOfDay(),
		Hour:        a.Hour,
		Minute:      a.Minute,
		Repeat:      a.RepeatMode.String(),
		CustomDays:  a.CustomDays,
		Enabled:     a.Enabled,
		NextTrigger: a.NextTriggerTime,
	}
	if next := a.NextTrigger(s.loc); !next.IsZero() {
		r.NextAt = next.Format(time.RFC3339)
	}
	return r
}

// applyRepeat sets the repeat mode by name and, for custom, the weekday mask.
func applyRepeat(a *models.Alarm, repeat, days string) error {
	if repeat == "" {
		repeat = models.RepeatOnce.String()
	}
	mode, err := models.ParseRepeatMode(repeat)
	if err != nil {
		return &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}
	a.RepeatMode = mode
	if mode != models.RepeatCustom {
		a.CustomDays = 0
		return nil
	}
	if days == "" {
		return nil
	}
	mask, err := models.ParseWeekdays(days)
	if err != nil {
		return &jrpc2.Error{Code: codeInvalidParams, Message: err.Error()}
	}
	a.CustomDays = mask
	return nil
}

// toRPCError maps an application error kind onto a JSON-RPC error code.
func toRPCError(err error) error {
	var rpcErr *jrpc2.Error
	if errors.As(err, &rpcErr) {
		return err
	}
	code := codeInternalFailed
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		code = codeAlarmNotFound
	case apperrors.KindInvalid:
		code = codeInvalidParams
	case apperrors.KindIO:
		code = codeStorage
	case apperrors.KindParse:
		code = codeCorruptData
	}
	return &jrpc2.Error{Code: code, Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write JSON response", "error", err)
	}
}
