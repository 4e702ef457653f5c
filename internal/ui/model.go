// ABOUTME: Bubbletea model for the receiver TUI
// ABOUTME: Renders engine events and turns key presses into commands
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/roomcast-go/internal/version"
	"github.com/harperreed/roomcast-go/pkg/roomcast"
)

const (
	boxWidth   = 54
	volumeStep = 5
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	// Session
	endpoint  string
	roomID    string
	userID    string
	connected bool
	state     roomcast.State
	status    string
	warning   string
	members   []string

	// Gate
	prompt  bool
	enabled bool

	// Playback
	volume int
	muted  bool

	// Stats
	stats roomcast.Stats

	controls *Controls

	// Dimensions
	width  int
	height int
}

// EventMsg delivers one engine event to the TUI
type EventMsg struct {
	Event roomcast.Event
}

// StatsMsg refreshes the statistics line
type StatsMsg struct {
	Stats roomcast.Stats
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case EventMsg:
		m.applyEvent(msg.Event)
	case StatsMsg:
		m.stats = msg.Stats
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderRoom()
	s += m.renderControls()
	s += m.renderStats()
	s += m.renderHelp()

	return s
}

// renderHeader renders connection and status lines
func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s", m.endpoint)
	}

	title := fmt.Sprintf(" %s %s ", version.Product, version.Version)
	s := "┌─" + titleStyle.Render(title) + strings.Repeat("─", max(0, boxWidth-1-len([]rune(title)))) + "┐\n"
	s += line(fmt.Sprintf("Conn:   %s", connStatus))
	s += line(fmt.Sprintf("State:  %s", m.state))
	s += line(fmt.Sprintf("Status: %s", m.status))
	if m.warning != "" {
		s += styledLine(fmt.Sprintf("! %s", m.warning), warningStyle)
	}
	s += "├" + strings.Repeat("─", boxWidth) + "┤\n"
	return s
}

// renderRoom renders the roster and the enable prompt
func (m Model) renderRoom() string {
	s := line(fmt.Sprintf("Room %s as %s", m.roomID, m.userID))
	if len(m.members) == 0 {
		s += line("  (no members yet)")
	}
	for _, member := range m.members {
		marker := "  "
		if member == m.userID {
			marker = "* "
		}
		s += line(marker + member)
	}

	if m.prompt {
		s += line("")
		s += styledLine(">> Audio is arriving. Press e to enable playback <<", promptStyle)
	}
	return s
}

// renderControls renders volume and mute
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}

	gate := "off"
	if m.enabled {
		gate = "on"
	}

	return line("") +
		line(fmt.Sprintf("Volume: [%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, muteIcon)) +
		line(fmt.Sprintf("Audio:  %s", gate))
}

// renderStats renders playback statistics
func (m Model) renderStats() string {
	return "├" + strings.Repeat("─", boxWidth) + "┤\n" +
		line(fmt.Sprintf("RX: %d  Played: %d  Gated: %d  Overflow: %d",
			m.stats.FramesReceived, m.stats.FramesPlayed, m.stats.DroppedGated, m.stats.DroppedOverflow))
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return styledLine("s:Start/Stop  e:Enable  ↑/↓:Volume  m:Mute  q:Quit", helpStyle) +
		"└" + strings.Repeat("─", boxWidth) + "┘\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.send(Command{Kind: CommandQuit})
		return m, tea.Quit
	case "s":
		m.controls.send(Command{Kind: CommandToggle})
	case "e":
		m.controls.send(Command{Kind: CommandEnable})
	case "up":
		if m.volume < 100 {
			m.volume = min(100, m.volume+volumeStep)
			m.controls.send(Command{Kind: CommandVolume, Volume: m.volume})
		}
	case "down":
		if m.volume > 0 {
			m.volume = max(0, m.volume-volumeStep)
			m.controls.send(Command{Kind: CommandVolume, Volume: m.volume})
		}
	case "m":
		m.muted = !m.muted
		m.controls.send(Command{Kind: CommandMute, Muted: m.muted})
	}

	return m, nil
}

// applyEvent updates the model from one engine event
func (m *Model) applyEvent(ev roomcast.Event) {
	switch ev.Kind {
	case roomcast.EventStatus:
		m.status = ev.Status
	case roomcast.EventRoomUpdated:
		m.members = append([]string(nil), ev.Members...)
	case roomcast.EventEnablePrompt:
		m.prompt = ev.Show
	case roomcast.EventConnectionChanged:
		m.connected = ev.Connected
	case roomcast.EventStateChanged:
		m.state = ev.State
	case roomcast.EventAudioEnabled:
		m.enabled = true
	case roomcast.EventWarning:
		m.warning = ev.Status
	case roomcast.EventVolumeChanged:
		m.volume = ev.Volume
		m.muted = ev.Muted
	case roomcast.EventStopped:
		m.connected = false
		m.members = nil
		m.prompt = false
		m.enabled = false
		m.warning = ""
	}
}

// line pads s into one boxed row
func line(s string) string {
	return styledLine(s, lipgloss.NewStyle())
}

// styledLine pads before styling so escape codes do not count toward width
func styledLine(s string, style lipgloss.Style) string {
	if len([]rune(s)) > boxWidth-2 {
		s = truncate(s, boxWidth-2)
	}
	pad := strings.Repeat(" ", boxWidth-2-len([]rune(s)))
	return "│ " + style.Render(s) + pad + " │\n"
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return string(runes[:length-3]) + "..."
}
