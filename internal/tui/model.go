package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/chime/internal/models"
	"github.com/julianstephens/chime/internal/tui/components/alarms"
)

// DefaultCheckInterval is how often the TUI runs a trigger check.
const DefaultCheckInterval = 5 * time.Second

// Alarms is the part of the alarm manager the TUI drives.
type Alarms interface {
	AddAlarm(a models.Alarm) (models.Alarm, error)
	DeleteAlarm(id uint32) error
	EnableAlarm(id uint32, enable bool) error
	GetAlarms() []models.Alarm
	Check(now time.Time) ([]models.Alarm, error)
}

type SessionState int

const (
	StateList SessionState = iota
	StateAddAlarm
)

// AlarmFormModel holds the add form's bound values.
type AlarmFormModel struct {
	Label  string
	Time   string
	Repeat models.RepeatMode
	Days   []time.Weekday
}

type tickMsg time.Time

type Option func(*Model)

func WithCheckInterval(d time.Duration) Option {
	return func(m *Model) { m.interval = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

type Model struct {
	alarms    Alarms
	loc       *time.Location
	interval  time.Duration
	now       func() time.Time
	state     SessionState
	keys      KeyMap
	listKeys  alarms.KeyMap
	help      help.Model
	list      alarms.Model
	form      *huh.Form
	alarmForm *AlarmFormModel
	status    string
	lastFired string
	formError string
	quitting  bool
	width     int
	height    int
}

func NewModel(a Alarms, loc *time.Location, opts ...Option) Model {
	m := Model{
		alarms:   a,
		loc:      loc,
		interval: DefaultCheckInterval,
		now:      time.Now,
		state:    StateList,
		keys:     DefaultKeyMap(),
		listKeys: alarms.DefaultKeyMap(),
		help:     help.New(),
		list:     alarms.New(a.GetAlarms(), loc, 0, 0),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) ShortHelp() []key.Binding {
	return []key.Binding{m.listKeys.Add, m.listKeys.Toggle, m.listKeys.Delete, m.listKeys.Check, m.keys.Quit, m.keys.Help}
}

func (m Model) FullHelp() [][]key.Binding {
	navigation := []key.Binding{m.keys.Up, m.keys.Down}
	actions := []key.Binding{m.listKeys.Add, m.listKeys.Toggle, m.listKeys.Delete, m.listKeys.Check}
	global := []key.Binding{m.keys.Quit, m.keys.Help}
	return [][]key.Binding{navigation, actions, global}
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// State returns the current screen.
func (m Model) State() SessionState {
	return m.state
}

// Status returns the status line text.
func (m Model) Status() string {
	return m.status
}

// LastFired describes the most recent batch of fired alarms.
func (m Model) LastFired() string {
	return m.lastFired
}

func (m *Model) refresh() {
	m.list.SetAlarms(m.alarms.GetAlarms())
}
