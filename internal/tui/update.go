package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/repcam/internal/camera"
	"github.com/julianstephens/repcam/internal/session"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		return m, waitForSnapshot(m.sess.Updates())

	case refreshMsg:
		m.snap = m.sess.Snapshot()
		return m, refresh()

	case completedMsg:
		m.pending = false
		switch {
		case msg.err != nil:
			m.status = fmt.Sprintf("Could not record rep: %v", msg.err)
			m.failed = true
		case !msg.counted:
			m.status = "Daily goal already reached"
			m.failed = false
		default:
			m.status = fmt.Sprintf("Rep %d of %d recorded", msg.event.Count, msg.event.Goal)
			m.failed = false
		}
		m.snap = m.sess.Snapshot()

	case retriedMsg:
		m.retrying = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Camera retry failed: %v", msg.err)
			m.failed = true
		} else {
			m.status = "Camera connected"
			m.failed = false
		}
		m.snap = m.sess.Snapshot()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Done):
			if m.pending {
				return m, nil
			}
			m.pending = true
			m.status = "Recording rep..."
			m.failed = false
			return m, m.complete()
		case key.Matches(msg, m.keys.Retry):
			if m.retrying || m.snap.Camera == camera.StateActive {
				return m, nil
			}
			m.retrying = true
			m.status = "Retrying camera..."
			m.failed = false
			return m, m.retry()
		}
	}

	return m, nil
}
