// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the command channel back to main
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/roomcast-go/pkg/roomcast"
)

// CommandKind identifies a user action from the TUI
type CommandKind int

const (
	CommandToggle CommandKind = iota
	CommandEnable
	CommandVolume
	CommandMute
	CommandQuit
)

// Command is one user action; Volume and Muted are set for their kinds
type Command struct {
	Kind   CommandKind
	Volume int
	Muted  bool
}

// Controls carries commands from the TUI to the receiver
type Controls struct {
	Commands chan Command
}

// NewControls creates a new control channel
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan Command, 10),
	}
}

// send never blocks the UI; a full queue drops the command
func (c *Controls) send(cmd Command) {
	if c == nil {
		return
	}
	select {
	case c.Commands <- cmd:
	default:
	}
}

// Options describes the session shown in the header
type Options struct {
	Endpoint string
	RoomID   string
	UserID   string
	Volume   int
}

// NewModel creates a new TUI model
func NewModel(opts Options, controls *Controls) Model {
	volume := opts.Volume
	if volume == 0 {
		volume = 100
	}
	return Model{
		endpoint: opts.Endpoint,
		roomID:   opts.RoomID,
		userID:   opts.UserID,
		state:    roomcast.StateIdle,
		status:   roomcast.StatusReady,
		volume:   volume,
		controls: controls,
	}
}

// Run creates the TUI program; the caller runs it
func Run(opts Options, controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(opts, controls), tea.WithAltScreen())
}

// Subscriber forwards engine events into a running program
func Subscriber(p *tea.Program) func(roomcast.Event) {
	return func(ev roomcast.Event) {
		p.Send(EventMsg{Event: ev})
	}
}
