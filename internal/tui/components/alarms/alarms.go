package alarms

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/chime/internal/models"
)

type AddAlarmMsg struct{}

type ToggleAlarmMsg struct {
	ID      uint32
	Enabled bool
}

type DeleteAlarmMsg struct {
	ID uint32
}

type CheckMsg struct{}

type Item struct {
	Alarm models.Alarm
	Loc   *time.Location
}

func (i Item) Title() string {
	label := i.Alarm.Label
	if label == "" {
		label = fmt.Sprintf("Alarm %d", i.Alarm.ID)
	}
	title := fmt.Sprintf("⏰ %s  %s", i.Alarm.TimeOfDay(), label)
	if !i.Alarm.Enabled {
		title = "[OFF] " + title
	}
	return title
}

func (i Item) Description() string {
	next := i.Alarm.NextTrigger(i.Loc)
	if next.IsZero() {
		return fmt.Sprintf("%s · not scheduled", i.Alarm.FormatRepeat())
	}
	return fmt.Sprintf("%s · next %s", i.Alarm.FormatRepeat(), next.Format("Mon Jan 2 15:04"))
}

func (i Item) FilterValue() string { return i.Alarm.Label }

type KeyMap struct {
	Add    key.Binding
	Toggle key.Binding
	Delete key.Binding
	Check  key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Add: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "on/off"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Check: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "check now"),
		),
	}
}

type Model struct {
	list list.Model
	keys KeyMap
	loc  *time.Location
}

func New(alarms []models.Alarm, loc *time.Location, width, height int) Model {
	l := list.New(toItems(alarms, loc), list.NewDefaultDelegate(), width, height)
	l.Title = "Alarms"
	l.SetShowTitle(false)
	l.SetShowHelp(false)

	keys := DefaultKeyMap()
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{keys.Add, keys.Toggle, keys.Delete, keys.Check}
	}
	l.AdditionalFullHelpKeys = func() []key.Binding {
		return []key.Binding{keys.Add, keys.Toggle, keys.Delete, keys.Check}
	}

	return Model{
		list: l,
		keys: keys,
		loc:  loc,
	}
}

func toItems(alarms []models.Alarm, loc *time.Location) []list.Item {
	items := make([]list.Item, len(alarms))
	for i, a := range alarms {
		items[i] = Item{Alarm: a, Loc: loc}
	}
	return items
}

func (m *Model) SetAlarms(alarms []models.Alarm) {
	m.list.SetItems(toItems(alarms, m.loc))
}

// Len returns the number of listed alarms.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Selected returns the highlighted alarm.
func (m Model) Selected() (models.Alarm, bool) {
	item, ok := m.list.SelectedItem().(Item)
	if !ok {
		return models.Alarm{}, false
	}
	return item.Alarm, true
}

// Filtering reports whether the filter input has focus.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Don't match if we're filtering
		if m.Filtering() {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Add):
			return m, func() tea.Msg { return AddAlarmMsg{} }
		case key.Matches(msg, m.keys.Check):
			return m, func() tea.Msg { return CheckMsg{} }
		case key.Matches(msg, m.keys.Toggle):
			if a, ok := m.Selected(); ok {
				return m, func() tea.Msg {
					return ToggleAlarmMsg{ID: a.ID, Enabled: !a.Enabled}
				}
			}
		case key.Matches(msg, m.keys.Delete):
			if a, ok := m.Selected(); ok {
				return m, func() tea.Msg {
					return DeleteAlarmMsg{ID: a.ID}
				}
			}
		}
	}

	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	return m.list.View()
}

func (m *Model) SetSize(width, height int) {
	m.list.SetSize(width, height)
}
