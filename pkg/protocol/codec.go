// ABOUTME: Frame codec for the roomcast signaling protocol
// ABOUTME: Encodes the outbound join and classifies inbound messages
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode is wrapped by every DecodeError
var ErrDecode = errors.New("decode error")

// DecodeError reports an inbound message that could not be classified.
// It is never fatal to the connection.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecode, e.Err}
	}
	return []error{ErrDecode}
}

// EncodeJoin produces the join message for roomID and userID
func EncodeJoin(roomID, userID string) ([]byte, error) {
	return json.Marshal(JoinMessage{
		Type:   TypeJoin,
		RoomID: roomID,
		UserID: userID,
	})
}

// EncodeRoomUpdate produces a roster message; a nil roster encodes as []
func EncodeRoomUpdate(users []string) ([]byte, error) {
	if users == nil {
		users = []string{}
	}
	return json.Marshal(RoomUpdateMessage{
		Type:  TypeRoomUpdate,
		Users: users,
	})
}

// PeekType returns the "type" field of a JSON control message
func PeekType(data []byte) (string, error) {
	var env struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", &DecodeError{Reason: "malformed json", Err: err}
	}
	if isNull(env.Type) {
		return "", &DecodeError{Reason: "missing type"}
	}
	var msgType string
	if err := json.Unmarshal(env.Type, &msgType); err != nil {
		return "", &DecodeError{Reason: "type is not a string", Err: err}
	}
	return msgType, nil
}

// Decode classifies one inbound message. Binary messages are always audio and
// are never inspected. Text messages are JSON control frames; unknown types
// decode to Ignored without error.
func Decode(kind MessageKind, data []byte) (Frame, error) {
	switch kind {
	case BinaryMessage:
		return RawAudio{Data: data}, nil
	case TextMessage:
		return decodeControl(data)
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unsupported message kind %d", int(kind))}
	}
}

func decodeControl(data []byte) (Frame, error) {
	msgType, err := PeekType(data)
	if err != nil {
		return nil, err
	}

	switch msgType {
	case TypeRoomUpdate:
		return decodeRoomUpdate(data)
	case TypeOffer:
		return UnsupportedOffer{}, nil
	default:
		return Ignored{Type: msgType}, nil
	}
}

func decodeRoomUpdate(data []byte) (Frame, error) {
	var msg struct {
		Users json.RawMessage `json:"users"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &DecodeError{Reason: "malformed roomUpdate", Err: err}
	}
	if isNull(msg.Users) {
		return nil, &DecodeError{Reason: "roomUpdate without users"}
	}

	var entries []*string
	if err := json.Unmarshal(msg.Users, &entries); err != nil {
		return nil, &DecodeError{Reason: "roomUpdate users must be an array of strings", Err: err}
	}
	users := make([]string, 0, len(entries))
	for _, user := range entries {
		if user == nil {
			return nil, &DecodeError{Reason: "roomUpdate users must not contain null"}
		}
		users = append(users, *user)
	}
	return RoomUpdate{Members: users}, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
