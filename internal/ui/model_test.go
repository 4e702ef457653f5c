// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests event application, key handling, and rendering
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/roomcast-go/pkg/roomcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel(controls *Controls) Model {
	return NewModel(Options{
		Endpoint: "ws://relay.local:8927/",
		RoomID:   "r1",
		UserID:   "Receiver",
	}, controls)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestNewModel(t *testing.T) {
	model := testModel(nil)

	assert.False(t, model.connected)
	assert.Equal(t, 100, model.volume)
	assert.False(t, model.muted)
	assert.Equal(t, roomcast.StateIdle, model.state)
	assert.Equal(t, roomcast.StatusReady, model.status)
}

func TestApplyEvents(t *testing.T) {
	model := testModel(nil)

	events := []roomcast.Event{
		{Kind: roomcast.EventConnectionChanged, Connected: true},
		{Kind: roomcast.EventStateChanged, State: roomcast.StateWaiting},
		{Kind: roomcast.EventStatus, Status: roomcast.StatusWaiting},
		{Kind: roomcast.EventRoomUpdated, Members: []string{"Alice", "Receiver"}},
		{Kind: roomcast.EventEnablePrompt, Show: true},
	}
	for _, ev := range events {
		model, _ = update(t, model, EventMsg{Event: ev})
	}

	assert.True(t, model.connected)
	assert.Equal(t, roomcast.StateWaiting, model.state)
	assert.Equal(t, roomcast.StatusWaiting, model.status)
	assert.Equal(t, []string{"Alice", "Receiver"}, model.members)
	assert.True(t, model.prompt)

	model, _ = update(t, model, EventMsg{Event: roomcast.Event{Kind: roomcast.EventAudioEnabled}})
	model, _ = update(t, model, EventMsg{Event: roomcast.Event{Kind: roomcast.EventEnablePrompt, Show: false}})
	assert.True(t, model.enabled)
	assert.False(t, model.prompt)

	model, _ = update(t, model, EventMsg{Event: roomcast.Event{Kind: roomcast.EventStopped}})
	assert.False(t, model.connected)
	assert.Empty(t, model.members)
	assert.False(t, model.enabled)
}

func TestWarningAndVolumeEvents(t *testing.T) {
	model := testModel(nil)

	model, _ = update(t, model, EventMsg{Event: roomcast.Event{Kind: roomcast.EventWarning, Status: roomcast.StatusOffer}})
	assert.Equal(t, roomcast.StatusOffer, model.warning)

	model, _ = update(t, model, EventMsg{Event: roomcast.Event{Kind: roomcast.EventVolumeChanged, Volume: 35, Muted: true}})
	assert.Equal(t, 35, model.volume)
	assert.True(t, model.muted)
}

func TestStatsMsg(t *testing.T) {
	model := testModel(nil)
	model, _ = update(t, model, StatsMsg{Stats: roomcast.Stats{FramesReceived: 10, FramesPlayed: 8}})

	assert.Equal(t, int64(10), model.stats.FramesReceived)
	assert.Equal(t, int64(8), model.stats.FramesPlayed)
}

func TestKeysSendCommands(t *testing.T) {
	controls := NewControls()
	model := testModel(controls)

	model, _ = update(t, model, key("s"))
	model, _ = update(t, model, key("e"))
	model, _ = update(t, model, key("down"))
	model, _ = update(t, model, key("m"))

	want := []Command{
		{Kind: CommandToggle},
		{Kind: CommandEnable},
		{Kind: CommandVolume, Volume: 95},
		{Kind: CommandMute, Muted: true},
	}
	for _, w := range want {
		select {
		case got := <-controls.Commands:
			assert.Equal(t, w, got)
		default:
			t.Fatalf("missing command %+v", w)
		}
	}

	assert.Equal(t, 95, model.volume)
	assert.True(t, model.muted)
}

func TestVolumeBounds(t *testing.T) {
	controls := NewControls()
	model := testModel(controls)

	// already at 100, nothing to send
	model, _ = update(t, model, key("up"))
	assert.Equal(t, 100, model.volume)
	assert.Empty(t, controls.Commands)

	model.volume = 3
	model, _ = update(t, model, key("down"))
	assert.Equal(t, 0, model.volume)
}

func TestQuitKey(t *testing.T) {
	controls := NewControls()
	model := testModel(controls)

	_, cmd := update(t, model, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Equal(t, Command{Kind: CommandQuit}, <-controls.Commands)
}

func TestNilControlsDoNotPanic(t *testing.T) {
	model := testModel(nil)
	assert.NotPanics(t, func() {
		update(t, model, key("s"))
		update(t, model, key("m"))
	})
}

func TestViewRendersSession(t *testing.T) {
	model := testModel(nil)
	assert.Equal(t, "Loading...", model.View())

	model, _ = update(t, model, tea.WindowSizeMsg{Width: 80, Height: 24})
	model, _ = update(t, model, EventMsg{Event: roomcast.Event{Kind: roomcast.EventRoomUpdated, Members: []string{"Alice", "Receiver"}}})
	model, _ = update(t, model, EventMsg{Event: roomcast.Event{Kind: roomcast.EventEnablePrompt, Show: true}})

	view := model.View()
	assert.Contains(t, view, "Room r1 as Receiver")
	assert.Contains(t, view, "  Alice")
	assert.Contains(t, view, "* Receiver")
	assert.Contains(t, view, "Press e to enable playback")

	for _, row := range strings.Split(strings.TrimRight(view, "\n"), "\n") {
		assert.Equal(t, boxWidth+2, lipgloss.Width(row), "row %q", row)
	}
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "█████░░░░░", renderBar(50, 100, 10))
	assert.Equal(t, "░░░░░░░░░░", renderBar(0, 100, 10))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
