// ABOUTME: Roomcast signaling message definitions
// ABOUTME: Defines JSON control messages and the decoded frame union
package protocol

import "github.com/gorilla/websocket"

// Control message types
const (
	TypeJoin       = "join"
	TypeRoomUpdate = "roomUpdate"
	TypeOffer      = "offer"
)

// MessageKind is the transport-level kind of a WebSocket message
type MessageKind int

const (
	TextMessage   MessageKind = websocket.TextMessage
	BinaryMessage MessageKind = websocket.BinaryMessage
)

func (k MessageKind) String() string {
	switch k {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// JoinMessage announces a participant to a room
type JoinMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// RoomUpdateMessage carries the full, ordered room roster
type RoomUpdateMessage struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// Frame is a decoded inbound message. It is one of RoomUpdate,
// UnsupportedOffer, RawAudio or Ignored.
type Frame interface {
	frame()
}

// RoomUpdate replaces the room roster
type RoomUpdate struct {
	Members []string
}

// UnsupportedOffer means a peer tried to start a negotiated-codec stream
type UnsupportedOffer struct{}

// RawAudio is one chunk of interleaved s16le PCM
type RawAudio struct {
	Data []byte
}

// Ignored is a well-formed control message of a type this client does not act on
type Ignored struct {
	Type string
}

func (RoomUpdate) frame()       {}
func (UnsupportedOffer) frame() {}
func (RawAudio) frame()         {}
func (Ignored) frame()          {}
