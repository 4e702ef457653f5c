// ABOUTME: Receiver engine orchestrating connection, gating and playback
// ABOUTME: Serializes user actions and transport callbacks behind one lock
package roomcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harperreed/roomcast-go/pkg/audio"
	"github.com/harperreed/roomcast-go/pkg/audio/output"
	"github.com/harperreed/roomcast-go/pkg/protocol"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultQueueFrames is the playback queue depth in frames
	DefaultQueueFrames = 32

	stopReason = "user stopped"
)

// Status lines published through EventStatus
const (
	StatusReady        = "Ready to receive"
	StatusConnecting   = "Connecting..."
	StatusWaiting      = "Connected - Waiting for audio stream..."
	StatusPrompt       = "Audio received! Press e to enable playback"
	StatusEnabled      = "Audio enabled! Waiting for stream..."
	StatusPlaying      = "Playing audio stream..."
	StatusOffer        = "WebRTC stream detected - use PCM sender instead"
	StatusStopped      = "Stopped receiving"
	StatusDisconnected = "Disconnected"
)

// Config holds receiver configuration
type Config struct {
	// Endpoint is the signaling WebSocket URL
	Endpoint string
	RoomID   string
	UserID   string

	// Format is the PCM format of incoming frames (default: 44.1kHz stereo 16-bit)
	Format audio.Format

	// OutputBackend selects the playback sink when NewOutput is nil (default: malgo)
	OutputBackend string
	OutputConfig  output.Config

	// NewOutput creates the playback sink for each session
	NewOutput func() (output.Output, error)

	// Focus is asked for the audio output at start (default: always granted)
	Focus output.Focus

	// QueueFrames bounds frames waiting for the output (default: 32)
	QueueFrames int

	// Volume is the initial volume (0-100, default 100)
	Volume int
	Muted  bool

	DialTimeout  time.Duration
	CloseTimeout time.Duration

	// Deliver runs event callbacks on the subscriber's execution context.
	// Default: called directly on the emitter goroutine.
	Deliver func(func())
}

// Receiver plays a room's PCM stream on the local output
type Receiver struct {
	config Config
	events *emitter

	mu       sync.Mutex
	state    State
	gen      uint64
	session  RoomSession
	gate     AudioGate
	volume   int
	muted    bool
	stats    Stats
	closed   bool
	warnedIO bool

	focused bool
	sink    output.Output
	client  *protocol.Client
	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan []byte
	playWG  sync.WaitGroup
	idle    chan struct{}
}

// NewReceiver creates a receiver with the given configuration
func NewReceiver(config Config) (*Receiver, error) {
	if config.Format == (audio.Format{}) {
		config.Format = audio.DefaultFormat()
	}
	if err := config.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid format: %w", err)
	}
	if config.Volume == 0 {
		config.Volume = 100
	}
	if config.QueueFrames <= 0 {
		config.QueueFrames = DefaultQueueFrames
	}
	if config.Focus == nil {
		config.Focus = output.NoFocus{}
	}
	if config.NewOutput == nil {
		backend, outCfg := config.OutputBackend, config.OutputConfig
		config.NewOutput = func() (output.Output, error) {
			return output.New(backend, outCfg)
		}
	}

	return &Receiver{
		config: config,
		events: newEmitter(config.Deliver),
		state:  StateIdle,
		volume: clampVolume(config.Volume),
		muted:  config.Muted,
		session: RoomSession{
			RoomID:     config.RoomID,
			SelfUserID: config.UserID,
		},
	}, nil
}

// Subscribe registers fn for every future event and returns a function that
// removes it. Events are delivered in order through Config.Deliver.
func (r *Receiver) Subscribe(fn func(Event)) func() {
	return r.events.subscribe(fn)
}

// Start opens the output and joins the room. It returns once the join has
// been sent; audio arrives asynchronously.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrStopped
	}
	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidState, state)
	}
	r.gen++
	gen := r.gen
	sessionCtx, cancel := context.WithCancel(context.Background())
	r.ctx, r.cancel = sessionCtx, cancel
	r.stats = Stats{}
	r.warnedIO = false
	r.setState(StateStarting)
	r.emit(Event{Kind: EventStatus, Status: StatusConnecting})
	r.mu.Unlock()

	log.Info().Str("module", "roomcast").
		Str("endpoint", r.config.Endpoint).
		Str("room", r.config.RoomID).
		Str("user", r.config.UserID).
		Msg("Starting receiver")

	granted, err := r.config.Focus.Request()
	switch {
	case err != nil:
		log.Warn().Err(err).Str("module", "roomcast").Msg("Audio focus request failed, continuing")
	case !granted:
		log.Warn().Str("module", "roomcast").Msg("Audio focus denied, continuing")
	}

	sink, err := r.openSink()

	r.mu.Lock()
	if r.gen != gen {
		// stopped while the device was opening
		r.mu.Unlock()
		if sink != nil {
			_ = sink.Close()
		}
		if granted {
			r.config.Focus.Abandon()
		}
		return ErrStopped
	}
	r.focused = granted
	if err != nil {
		r.emit(Event{Kind: EventStatus, Status: fmt.Sprintf("Error initializing audio: %v", err)})
		r.mu.Unlock()
		r.teardown(gen, "")
		return err
	}
	sink.SetVolume(r.volume)
	sink.SetMuted(r.muted)
	r.sink = sink
	r.client = protocol.NewClient(r.clientConfig(gen))
	client := r.client
	r.mu.Unlock()

	dialCtx, dialCancel := context.WithCancel(ctx)
	defer dialCancel()
	stopDial := context.AfterFunc(sessionCtx, dialCancel)
	defer stopDial()

	if err := client.Connect(dialCtx); err != nil {
		r.mu.Lock()
		if r.gen != gen {
			r.mu.Unlock()
			return ErrStopped
		}
		r.emit(Event{Kind: EventStatus, Status: fmt.Sprintf("Connection error: %v", err)})
		r.mu.Unlock()
		r.teardown(gen, "")
		return fmt.Errorf("failed to connect: %w", err)
	}

	return nil
}

func (r *Receiver) openSink() (out output.Output, err error) {
	out, err = r.config.NewOutput()
	if err != nil {
		return nil, err
	}
	if err := out.Open(r.config.Format); err != nil {
		_ = out.Close()
		return nil, err
	}
	return out, nil
}

// clientConfig binds every transport callback to session gen
func (r *Receiver) clientConfig(gen uint64) protocol.Config {
	return protocol.Config{
		Endpoint:     r.config.Endpoint,
		RoomID:       r.config.RoomID,
		UserID:       r.config.UserID,
		DialTimeout:  r.config.DialTimeout,
		CloseTimeout: r.config.CloseTimeout,
		OnOpen: func() {
			r.handleOpen(gen)
		},
		OnFrame: func(f protocol.Frame) {
			r.handleFrame(gen, f)
		},
		OnError: func(err error) {
			// teardown disconnects, which must not run on the read loop
			go r.fail(gen, err)
		},
		OnClose: func(code int, reason string) {
			go r.peerClosed(gen, code, reason)
		},
	}
}

func (r *Receiver) handleOpen(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen || r.state != StateStarting {
		return
	}

	r.queue = make(chan []byte, r.config.QueueFrames)
	r.playWG.Add(1)
	go r.playLoop(gen, r.ctx.Done(), r.sink, r.queue)

	r.setState(StateWaiting)
	r.emit(
		Event{Kind: EventConnectionChanged, Connected: true},
		Event{Kind: EventStatus, Status: StatusWaiting},
	)
	log.Info().Str("module", "roomcast").Msg("Connected, waiting for audio")
}

func (r *Receiver) handleFrame(gen uint64, frame protocol.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen || !r.state.connected() {
		return
	}

	switch f := frame.(type) {
	case protocol.RoomUpdate:
		r.session.replace(f.Members)
		log.Info().Str("module", "roomcast").Strs("members", f.Members).Msg("Room updated")
		r.emit(Event{Kind: EventRoomUpdated, Members: append([]string(nil), f.Members...)})

	case protocol.UnsupportedOffer:
		log.Warn().Str("module", "roomcast").Msg("Ignoring offer from negotiated-codec peer")
		r.emit(
			Event{Kind: EventWarning, Status: StatusOffer, Err: ErrProtocolMismatch},
			Event{Kind: EventStatus, Status: StatusOffer},
		)

	case protocol.RawAudio:
		r.handleAudio(f.Data)
	}
}

// handleAudio applies the gate; called with r.mu held
func (r *Receiver) handleAudio(data []byte) {
	r.stats.FramesReceived++

	if !r.gate.Enabled {
		r.stats.DroppedGated++
		if !r.gate.PendingFirstFrameSeen {
			r.gate.PendingFirstFrameSeen = true
			log.Info().Str("module", "roomcast").Int("bytes", len(data)).Msg("Audio received while disabled")
			r.emit(
				Event{Kind: EventEnablePrompt, Show: true},
				Event{Kind: EventStatus, Status: StatusPrompt},
			)
		}
		if r.state != StateAwaitingEnable {
			r.setState(StateAwaitingEnable)
		}
		return
	}

	// live stream: when the output falls behind, the oldest frame goes
	for {
		select {
		case r.queue <- data:
			return
		default:
		}
		select {
		case <-r.queue:
			r.stats.DroppedOverflow++
		default:
		}
	}
}

// playLoop writes queued frames to the output until the session ends
func (r *Receiver) playLoop(gen uint64, done <-chan struct{}, sink output.Output, queue <-chan []byte) {
	defer r.playWG.Done()

	started := false
	for {
		select {
		case <-done:
			return
		case data := <-queue:
			if !started {
				if err := sink.Start(); err != nil {
					r.writeFailed(gen, err)
					continue
				}
				started = true
			}

			n, err := sink.Write(data)
			if err != nil {
				r.writeFailed(gen, err)
				continue
			}
			r.framePlayed(gen, n)
		}
	}
}

func (r *Receiver) framePlayed(gen uint64, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen || !r.state.connected() {
		return
	}

	r.stats.FramesPlayed++
	r.stats.BytesWritten += int64(n)

	if r.state != StatePlaying {
		r.setState(StatePlaying)
		r.emit(
			Event{Kind: EventPlaybackStarted},
			Event{Kind: EventStatus, Status: StatusPlaying},
		)
		log.Info().Str("module", "roomcast").Msg("Playback started")
	}
}

// writeFailed logs a device error; playback continues with the next frame
func (r *Receiver) writeFailed(gen uint64, err error) {
	log.Warn().Err(err).Str("module", "roomcast").Msg("Output write failed")

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen {
		return
	}
	r.stats.WriteErrors++
	if !r.warnedIO {
		r.warnedIO = true
		r.emit(Event{
			Kind:   EventWarning,
			Status: fmt.Sprintf("Error playing audio: %v", err),
			Err:    err,
		})
	}
}

// EnableAudio opens the gate; the next frame starts playback
func (r *Receiver) EnableAudio() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StatePlaying:
		return nil
	case StateWaiting, StateAwaitingEnable:
	default:
		return fmt.Errorf("%w: cannot enable audio while %s", ErrInvalidState, r.state)
	}

	if r.gate.Enabled {
		return nil
	}
	r.gate.Enabled = true
	r.gate.PendingFirstFrameSeen = false

	log.Info().Str("module", "roomcast").Msg("Audio enabled")
	if r.state != StateWaiting {
		r.setState(StateWaiting)
	}
	r.emit(
		Event{Kind: EventAudioEnabled},
		Event{Kind: EventEnablePrompt, Show: false},
		Event{Kind: EventStatus, Status: StatusEnabled},
	)
	return nil
}

// Stop tears the session down. It is safe in every state and idempotent.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()

	r.teardown(gen, StatusStopped)
	return nil
}

func (r *Receiver) fail(gen uint64, err error) {
	r.mu.Lock()
	if r.gen != gen || !r.state.connected() {
		r.mu.Unlock()
		return
	}
	log.Error().Err(err).Str("module", "roomcast").Msg("Connection failed")

	reason := err
	var terr *protocol.TransportError
	if errors.As(err, &terr) {
		reason = terr.Err
	}
	r.emit(Event{Kind: EventStatus, Status: fmt.Sprintf("Connection error: %v", reason), Err: err})
	r.mu.Unlock()

	r.teardown(gen, "")
}

func (r *Receiver) peerClosed(gen uint64, code int, reason string) {
	r.mu.Lock()
	if r.gen != gen || !r.state.connected() {
		r.mu.Unlock()
		return
	}
	log.Info().Str("module", "roomcast").Int("code", code).Str("reason", reason).Msg("Connection closed")
	r.mu.Unlock()

	r.teardown(gen, StatusDisconnected)
}

// teardown runs the stop sequence for session gen: gate closed, playback
// loop stopped, output stopped and released, connection closed, session
// reset. finalStatus is published just before Stopped when non-empty.
func (r *Receiver) teardown(gen uint64, finalStatus string) {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return
	}
	switch r.state {
	case StateIdle:
		r.mu.Unlock()
		return
	case StateStopping:
		idle := r.idle
		r.mu.Unlock()
		<-idle
		return
	}

	wasConnected := r.state.connected()
	r.gen++
	r.gate = AudioGate{}
	r.idle = make(chan struct{})
	r.setState(StateStopping)
	if wasConnected {
		r.emit(Event{Kind: EventConnectionChanged, Connected: false})
	}

	cancel := r.cancel
	sink := r.sink
	client := r.client
	focused := r.focused
	idle := r.idle
	r.ctx, r.cancel = nil, nil
	r.sink = nil
	r.focused = false
	r.mu.Unlock()

	log.Info().Str("module", "roomcast").Msg("Stopping receiver")

	if cancel != nil {
		cancel()
	}
	r.playWG.Wait()

	if sink != nil {
		if err := sink.Stop(); err != nil {
			log.Warn().Err(err).Str("module", "roomcast").Msg("Output stop failed")
		}
		if err := sink.Close(); err != nil {
			log.Warn().Err(err).Str("module", "roomcast").Msg("Output release failed")
		}
	}

	if client != nil {
		if err := client.Disconnect(stopReason); err != nil {
			log.Warn().Err(err).Str("module", "roomcast").Msg("Disconnect failed")
		}
	}

	if focused {
		r.config.Focus.Abandon()
	}

	r.mu.Lock()
	r.client = nil
	r.queue = nil
	r.session.reset()
	r.setState(StateIdle)
	if finalStatus != "" {
		r.emit(Event{Kind: EventStatus, Status: finalStatus})
	}
	r.emit(Event{Kind: EventStopped})
	close(idle)
	r.mu.Unlock()

	log.Info().Str("module", "roomcast").Msg("Receiver stopped")
}

// SetVolume sets the software volume (0-100). Volume events are not
// session events; they are emitted in every state, including after Stopped.
func (r *Receiver) SetVolume(volume int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.volume = clampVolume(volume)
	if r.sink != nil {
		r.sink.SetVolume(r.volume)
	}
	r.emit(Event{Kind: EventVolumeChanged, Volume: r.volume, Muted: r.muted})
}

// SetMuted mutes or unmutes the output. Like SetVolume it emits
// EventVolumeChanged regardless of state.
func (r *Receiver) SetMuted(muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.muted = muted
	if r.sink != nil {
		r.sink.SetMuted(muted)
	}
	r.emit(Event{Kind: EventVolumeChanged, Volume: r.volume, Muted: r.muted})
}

// State returns the current receiver state
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns a copy of the receiver state and statistics
func (r *Receiver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := protocol.StateDisconnected
	if r.client != nil {
		conn = r.client.State()
	}

	session := r.session
	session.Members = append([]string(nil), r.session.Members...)

	return Snapshot{
		State:      r.state,
		Connection: conn,
		Session:    session,
		Gate:       r.gate,
		Volume:     r.volume,
		Muted:      r.muted,
		Stats:      r.stats,
	}
}

// Close stops the receiver and flushes pending events. It must not be
// called from an event subscriber.
func (r *Receiver) Close() error {
	err := r.Stop()

	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.events.close()
	return err
}

// setState records and publishes a transition; called with r.mu held
func (r *Receiver) setState(state State) {
	if r.state == state {
		return
	}
	log.Debug().Str("module", "roomcast").
		Str("from", r.state.String()).
		Str("to", state.String()).
		Msg("State change")
	r.state = state
	r.emit(Event{Kind: EventStateChanged, State: state})
}

// emit queues events in transition order; called with r.mu held
func (r *Receiver) emit(events ...Event) {
	r.events.push(events...)
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}
