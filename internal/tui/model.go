// Package tui renders the live detection dashboard and the habit setup form.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/repcam/internal/constants"
	"github.com/julianstephens/repcam/internal/models"
	"github.com/julianstephens/repcam/internal/session"
)

// Session is the part of a detection session the dashboard drives.
type Session interface {
	Snapshot() session.Snapshot
	Updates() <-chan session.Snapshot
	Complete(ctx context.Context) (models.CompletionEvent, bool, error)
	Retry(ctx context.Context) error
}

type snapshotMsg session.Snapshot

type refreshMsg time.Time

type completedMsg struct {
	event   models.CompletionEvent
	counted bool
	err     error
}

type retriedMsg struct {
	err error
}

type Model struct {
	sess     Session
	snap     session.Snapshot
	keys     KeyMap
	help     help.Model
	hold     progress.Model
	daily    progress.Model
	status   string
	failed   bool
	pending  bool
	retrying bool
	quitting bool
	width    int
	height   int
}

func NewModel(sess Session) Model {
	return Model{
		sess:  sess,
		snap:  sess.Snapshot(),
		keys:  DefaultKeyMap(),
		help:  help.New(),
		hold:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
		daily: progress.New(progress.WithSolidFill("42"), progress.WithWidth(30), progress.WithoutPercentage()),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.sess.Updates()), refresh())
}

// Snapshot returns the last state the dashboard rendered.
func (m Model) Snapshot() session.Snapshot {
	return m.snap
}

func waitForSnapshot(ch <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

// refresh polls the session once a second so the hold countdown and the
// clock keep moving between notable updates.
func refresh() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m Model) complete() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), constants.SinkTimeout)
		defer cancel()
		ev, counted, err := sess.Complete(ctx)
		return completedMsg{event: ev, counted: counted, err: err}
	}
}

// retry reopens the camera. The source bounds acquisition with its own
// timeout.
func (m Model) retry() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		return retriedMsg{err: sess.Retry(context.Background())}
	}
}
