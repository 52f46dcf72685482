package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/models"
	"github.com/julianstephens/chime/internal/tui/components/alarms"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h, v := docStyle.GetFrameSize()
		// Title, status and help lines
		m.list.SetSize(msg.Width-h, msg.Height-v-4)
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.check(time.Time(msg))
		return m, m.tick()
	}

	if m.state == StateAddAlarm {
		cmd := m.handleAddAlarmState(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.list.Filtering() {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}

	case alarms.AddAlarmMsg:
		m.alarmForm = &AlarmFormModel{Repeat: models.RepeatDaily}
		m.form = NewAlarmForm(m.alarmForm)
		m.formError = ""
		m.state = StateAddAlarm
		return m, m.form.Init()

	case alarms.ToggleAlarmMsg:
		if err := m.alarms.EnableAlarm(msg.ID, msg.Enabled); err != nil {
			m.status = fmt.Sprintf("Failed to update alarm %d: %v", msg.ID, err)
		} else if msg.Enabled {
			m.status = fmt.Sprintf("Alarm %d on", msg.ID)
		} else {
			m.status = fmt.Sprintf("Alarm %d off", msg.ID)
		}
		m.refresh()
		return m, nil

	case alarms.DeleteAlarmMsg:
		if err := m.alarms.DeleteAlarm(msg.ID); err != nil {
			m.status = fmt.Sprintf("Failed to delete alarm %d: %v", msg.ID, err)
		} else {
			m.status = fmt.Sprintf("Deleted alarm %d", msg.ID)
		}
		m.refresh()
		return m, nil

	case alarms.CheckMsg:
		if !m.check(m.now()) {
			m.status = "No alarms due"
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleAddAlarmState drives the add form until it completes or is aborted.
func (m *Model) handleAddAlarmState(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEsc {
		m.state = StateList
		return nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	cmds = append(cmds, cmd)

	switch m.form.State {
	case huh.StateCompleted:
		a, err := m.alarmForm.Alarm()
		if err != nil {
			m.formError = err.Error()
			m.form.State = huh.StateNormal
			return tea.Batch(cmds...)
		}
		added, err := m.alarms.AddAlarm(a)
		if err != nil && added.ID == 0 {
			// Rejected; keep the user in the form to correct it
			m.formError = fmt.Sprintf("Failed to add alarm: %v", err)
			m.form.State = huh.StateNormal
			return tea.Batch(cmds...)
		}
		if err != nil {
			m.status = fmt.Sprintf("Added alarm %d but could not save: %v", added.ID, err)
		} else {
			m.status = fmt.Sprintf("Added alarm %d at %s", added.ID, added.TimeOfDay())
		}
		m.formError = ""
		m.refresh()
		m.state = StateList
	case huh.StateAborted:
		m.state = StateList
	}
	return tea.Batch(cmds...)
}

// check runs a trigger check at now and reports whether anything fired.
func (m *Model) check(now time.Time) bool {
	fired, err := m.alarms.Check(now.In(m.loc))
	if err != nil {
		logger.Warn("Trigger check could not persist", "error", err)
		m.status = fmt.Sprintf("Alarms fired but could not be saved: %v", err)
	}
	if len(fired) == 0 {
		return false
	}

	names := make([]string, 0, len(fired))
	for _, a := range fired {
		name := a.Label
		if name == "" {
			name = fmt.Sprintf("Alarm %d", a.ID)
		}
		names = append(names, name)
	}
	m.lastFired = fmt.Sprintf("🔔 %s at %s", strings.Join(names, ", "), now.In(m.loc).Format("15:04"))
	m.refresh()
	return true
}
