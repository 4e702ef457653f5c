// ABOUTME: Room hub for the roomcast relay
// ABOUTME: Tracks members per room, fans out messages and broadcasts rosters
package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harperreed/roomcast-go/pkg/protocol"
	"github.com/rs/zerolog/log"
)

const (
	DefaultReadLimit  = 1 << 20
	DefaultSendBuffer = 64

	writeWait = 5 * time.Second
	joinWait  = 10 * time.Second
)

var (
	// ErrHubClosed is returned when joining a hub that is shutting down
	ErrHubClosed = errors.New("hub closed")
	// ErrBadJoin is returned when a connection's first message is not a valid join
	ErrBadJoin = errors.New("first message must be a join")
)

// HubConfig holds hub configuration
type HubConfig struct {
	// ReadLimit is the largest accepted inbound message in bytes
	ReadLimit int64
	// SendBuffer is the number of messages queued per member before dropping
	SendBuffer int
}

// Message is one relayed WebSocket message
type Message struct {
	Kind protocol.MessageKind
	Data []byte
}

// Member is one participant of a room
type Member struct {
	ID     string
	RoomID string
	UserID string

	conn    *websocket.Conn
	send    chan Message
	dropped int
}

// Hub owns all rooms and their members
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader

	mu     sync.Mutex
	rooms  map[string][]*Member
	closed bool

	wg sync.WaitGroup
}

// NewHub creates a new hub
func NewHub(config HubConfig) *Hub {
	if config.ReadLimit <= 0 {
		config.ReadLimit = DefaultReadLimit
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultSendBuffer
	}
	return &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		rooms: make(map[string][]*Member),
	}
}

// Join adds a member to roomID and broadcasts the new roster. Members joined
// with a nil conn receive nothing; they only publish.
func (h *Hub) Join(roomID, userID string, conn *websocket.Conn) (*Member, error) {
	m := &Member{
		ID:     uuid.New().String(),
		RoomID: roomID,
		UserID: userID,
		conn:   conn,
	}
	if conn != nil {
		m.send = make(chan Message, h.config.SendBuffer)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.rooms[roomID] = append(h.rooms[roomID], m)
	h.broadcastRoster(roomID)
	h.mu.Unlock()

	log.Info().Str("module", "relay").
		Str("room", roomID).
		Str("user", userID).
		Str("member", m.ID).
		Msg("Member joined")
	return m, nil
}

// Leave removes a member and broadcasts the remaining roster
func (h *Hub) Leave(m *Member) {
	h.mu.Lock()
	members := h.rooms[m.RoomID]
	found := false
	for i, other := range members {
		if other == m {
			members = append(members[:i:i], members[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		h.mu.Unlock()
		return
	}
	if len(members) == 0 {
		delete(h.rooms, m.RoomID)
	} else {
		h.rooms[m.RoomID] = members
		h.broadcastRoster(m.RoomID)
	}
	if m.send != nil {
		close(m.send)
	}
	h.mu.Unlock()

	log.Info().Str("module", "relay").
		Str("room", m.RoomID).
		Str("user", m.UserID).
		Str("member", m.ID).
		Msg("Member left")
}

// Broadcast sends a message from one member to every other member of its room
func (h *Hub) Broadcast(from *Member, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, m := range h.rooms[from.RoomID] {
		if m == from {
			continue
		}
		h.deliver(m, msg)
	}
}

// Roster returns the user IDs of roomID in join order
func (h *Hub) Roster(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roster(roomID)
}

// Rooms returns the number of rooms with at least one member
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) roster(roomID string) []string {
	users := make([]string, 0, len(h.rooms[roomID]))
	for _, m := range h.rooms[roomID] {
		users = append(users, m.UserID)
	}
	return users
}

// broadcastRoster must be called with h.mu held
func (h *Hub) broadcastRoster(roomID string) {
	data, err := protocol.EncodeRoomUpdate(h.roster(roomID))
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("Failed to encode room update")
		return
	}
	for _, m := range h.rooms[roomID] {
		h.deliver(m, Message{Kind: protocol.TextMessage, Data: data})
	}
}

// deliver queues without blocking; must be called with h.mu held
func (h *Hub) deliver(m *Member, msg Message) {
	if m.send == nil {
		return
	}
	select {
	case m.send <- msg:
	default:
		m.dropped++
		if m.dropped == 1 || m.dropped%100 == 0 {
			log.Warn().Str("module", "relay").
				Str("member", m.ID).
				Int("dropped", m.dropped).
				Msg("Member send buffer full, dropping messages")
		}
	}
}

// ServeHTTP upgrades a connection and runs it until either side closes
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "relay shutting down", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	log.Debug().Str("module", "relay").Str("remote", r.RemoteAddr).Msg("New WebSocket connection")

	conn.SetReadLimit(h.config.ReadLimit)
	join, err := readJoin(conn)
	if err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("remote", r.RemoteAddr).Msg("Rejecting connection")
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ErrBadJoin.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return
	}

	m, err := h.Join(join.RoomID, join.UserID, conn)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(m)
	}()

	h.readPump(m)
	h.Leave(m)
	<-writerDone
}

func readJoin(conn *websocket.Conn) (*protocol.JoinMessage, error) {
	if err := conn.SetReadDeadline(time.Now().Add(joinWait)); err != nil {
		return nil, err
	}
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	if messageType != websocket.TextMessage {
		return nil, ErrBadJoin
	}

	msgType, err := protocol.PeekType(data)
	if err != nil {
		return nil, errors.Join(ErrBadJoin, err)
	}
	if msgType != protocol.TypeJoin {
		return nil, ErrBadJoin
	}

	var join protocol.JoinMessage
	if err := json.Unmarshal(data, &join); err != nil {
		return nil, errors.Join(ErrBadJoin, err)
	}
	if join.RoomID == "" || join.UserID == "" {
		return nil, errors.Join(ErrBadJoin, errors.New("roomId and userId are required"))
	}
	return &join, nil
}

// readPump relays everything after the join to the rest of the room
func (h *Hub) readPump(m *Member) {
	for {
		messageType, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "relay").Str("member", m.ID).Msg("Read error")
			}
			return
		}

		kind := protocol.MessageKind(messageType)
		if kind == protocol.TextMessage {
			if msgType, err := protocol.PeekType(data); err == nil && msgType == protocol.TypeJoin {
				log.Debug().Str("module", "relay").Str("member", m.ID).Msg("Ignoring repeated join")
				continue
			}
		}
		h.Broadcast(m, Message{Kind: kind, Data: data})
	}
}

// writePump drains the member's queue until Leave closes it
func (h *Hub) writePump(m *Member) {
	for msg := range m.send {
		if err := h.write(m, msg); err != nil {
			log.Debug().Err(err).Str("module", "relay").Str("member", m.ID).Msg("Write error")
			// unblock the reader; Leave will close the queue
			_ = m.conn.Close()
			break
		}
	}
	for range m.send {
	}
}

func (h *Hub) write(m *Member, msg Message) error {
	if err := m.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return m.conn.WriteMessage(int(msg.Kind), msg.Data)
}

// Close disconnects every member with a going-away close and waits for
// their handlers to return
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var conns []*websocket.Conn
	for _, members := range h.rooms {
		for _, m := range members {
			if m.conn != nil {
				conns = append(conns, m.conn)
			}
		}
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down")
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
	}
	h.wg.Wait()
	log.Info().Str("module", "relay").Msg("Hub closed")
}
