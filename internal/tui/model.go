// Package tui renders a live session list: names, run states, PIDs, and
// prompt counts, refreshed as the manager publishes lifecycle events.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentherd/agentherd/internal/event"
	"github.com/agentherd/agentherd/internal/manager"
	"github.com/agentherd/agentherd/internal/session"
	"github.com/agentherd/agentherd/internal/util"
)

// refreshInterval is the polling fallback between event-driven refreshes.
const refreshInterval = 2 * time.Second

type tickMsg time.Time

// refreshRequestMsg asks the model to re-snapshot the manager. Sent from the
// manager bus subscription when lifecycle events fire.
type refreshRequestMsg struct{}

// sessionsMsg carries a fresh manager snapshot.
type sessionsMsg []session.Info

// Model is the session-list TUI.
type Model struct {
	mgr      *manager.Manager
	spinner  spinner.Model
	sessions []session.Info
	selected int
	width    int
	height   int
	quitting bool
}

// NewModel creates the session list over mgr.
func NewModel(mgr *manager.Manager) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = rowStyle.Foreground(primaryColor)
	return Model{mgr: mgr, spinner: sp}
}

// Init starts the spinner, the first snapshot, and the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh snapshots the manager.
func (m Model) refresh() tea.Msg {
	return sessionsMsg(m.mgr.ListSessions())
}

// Update handles input and refresh messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.sessions)-1 {
				m.selected++
			}
		case "r":
			return m, m.refresh
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.refresh, tick())

	case refreshRequestMsg:
		return m, m.refresh

	case sessionsMsg:
		m.sessions = msg
		if m.selected >= len(m.sessions) {
			m.selected = max(0, len(m.sessions)-1)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the session table.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	out := titleStyle.Render("agentherd sessions") + "\n"
	if len(m.sessions) == 0 {
		out += helpStyle.Render("no sessions running") + "\n"
	}

	for i, info := range m.sessions {
		badge := badgeStyle.Background(stateColor(info.State)).Render(info.State)
		line := fmt.Sprintf("%-20s %s  pid=%-8d prompts=%d", info.Name, badge, info.PID, info.PromptCount)
		if info.State == session.StateStarting.String() {
			line = m.spinner.View() + " " + line
		}
		if i == m.selected {
			line = selectedStyle.Render("> " + line)
		} else {
			line = rowStyle.Render("  " + line)
		}
		if m.width > 0 {
			line = util.TruncateANSI(line, m.width)
		}
		out += line + "\n"
	}

	out += helpStyle.Render("↑/↓ select · r refresh · q quit")
	return out
}

// Run blocks in the session list until the user quits.
func Run(mgr *manager.Manager) error {
	p := tea.NewProgram(NewModel(mgr), tea.WithAltScreen())

	subID := mgr.Bus().SubscribeAll(func(event.Event) {
		p.Send(refreshRequestMsg{})
	})
	defer mgr.Bus().Unsubscribe(subID)

	_, err := p.Run()
	return err
}
