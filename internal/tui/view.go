package tui

import (
	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.state {
	case StateAddAlarm:
		content = m.form.View()
		if m.formError != "" {
			content = lipgloss.JoinVertical(lipgloss.Left, content, dangerStyle.Render(m.formError))
		}
	default:
		content = m.list.View()
	}

	status := m.status
	if m.lastFired != "" {
		status = firedStyle.Render(m.lastFired) + "  " + status
	}

	return docStyle.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("chime"),
		content,
		statusStyle.Render(status),
		m.help.View(m),
	))
}
