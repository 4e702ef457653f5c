// ABOUTME: Receiver states, events and the ordered event emitter
// ABOUTME: Events are queued under the engine lock and delivered by one goroutine
package roomcast

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrInvalidState is returned when an operation is not valid in the current state
	ErrInvalidState = errors.New("invalid state")
	// ErrStopped is returned when the receiver was stopped or closed underneath a call
	ErrStopped = errors.New("receiver stopped")
	// ErrProtocolMismatch is carried by the warning for negotiated-codec peers
	ErrProtocolMismatch = errors.New("protocol mismatch: negotiated streams are not supported")
)

// State is the receiver lifecycle state
type State int

const (
	StateIdle State = iota
	StateStarting
	StateWaiting
	StateAwaitingEnable
	StatePlaying
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateWaiting:
		return "waiting"
	case StateAwaitingEnable:
		return "awaiting-enable"
	case StatePlaying:
		return "playing"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// connected reports whether the state belongs to an open session
func (s State) connected() bool {
	return s == StateWaiting || s == StateAwaitingEnable || s == StatePlaying
}

// EventKind identifies what an Event reports
type EventKind int

const (
	// EventStatus carries a human-readable status line
	EventStatus EventKind = iota
	// EventRoomUpdated carries the new roster in Members
	EventRoomUpdated
	// EventEnablePrompt asks the UI to show (Show=true) or hide the enable affordance
	EventEnablePrompt
	// EventConnectionChanged reports Connected
	EventConnectionChanged
	// EventStateChanged reports State
	EventStateChanged
	EventAudioEnabled
	EventPlaybackStarted
	// EventWarning is non-fatal; Err says why
	EventWarning
	// EventVolumeChanged reports Volume and Muted
	EventVolumeChanged
	// EventStopped is the last event of a session
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventRoomUpdated:
		return "room-updated"
	case EventEnablePrompt:
		return "enable-prompt"
	case EventConnectionChanged:
		return "connection-changed"
	case EventStateChanged:
		return "state-changed"
	case EventAudioEnabled:
		return "audio-enabled"
	case EventPlaybackStarted:
		return "playback-started"
	case EventWarning:
		return "warning"
	case EventVolumeChanged:
		return "volume-changed"
	case EventStopped:
		return "stopped"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one observable change. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	Status    string
	Members   []string
	Show      bool
	Connected bool
	State     State
	Volume    int
	Muted     bool
	Err       error
}

func (e Event) String() string {
	switch e.Kind {
	case EventStatus:
		return fmt.Sprintf("status: %s", e.Status)
	case EventRoomUpdated:
		return fmt.Sprintf("room-updated: [%s]", strings.Join(e.Members, ", "))
	case EventEnablePrompt:
		return fmt.Sprintf("enable-prompt: %t", e.Show)
	case EventConnectionChanged:
		return fmt.Sprintf("connection-changed: %t", e.Connected)
	case EventStateChanged:
		return fmt.Sprintf("state-changed: %s", e.State)
	case EventVolumeChanged:
		return fmt.Sprintf("volume-changed: %d muted=%t", e.Volume, e.Muted)
	case EventWarning:
		return fmt.Sprintf("warning: %s", e.Status)
	default:
		return e.Kind.String()
	}
}

// emitter delivers queued events, in order, on its own goroutine
type emitter struct {
	deliver func(func())

	mu     sync.Mutex
	queue  []Event
	subs   map[int]func(Event)
	nextID int
	closed bool

	signal chan struct{}
	done   chan struct{}
}

func newEmitter(deliver func(func())) *emitter {
	if deliver == nil {
		deliver = func(f func()) { f() }
	}
	e := &emitter{
		deliver: deliver,
		subs:    make(map[int]func(Event)),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *emitter) subscribe(fn func(Event)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
		})
	}
}

// push queues events without blocking
func (e *emitter) push(events ...Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, events...)
	e.mu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}
}

func (e *emitter) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		batch := e.queue
		e.queue = nil
		closed := e.closed
		e.mu.Unlock()

		for _, ev := range batch {
			e.dispatch(ev)
		}

		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-e.signal
		}
	}
}

func (e *emitter) dispatch(ev Event) {
	e.mu.Lock()
	subs := make([]func(Event), 0, len(e.subs))
	for id := 0; id < e.nextID; id++ {
		if fn, ok := e.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	e.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	e.deliver(func() {
		for _, fn := range subs {
			fn(ev)
		}
	})
}

// close flushes queued events and stops the emitter goroutine
func (e *emitter) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.mu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}
	<-e.done
}
