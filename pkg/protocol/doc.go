// ABOUTME: Roomcast wire protocol package
// ABOUTME: Defines the signaling messages, frame codec and WebSocket client
// Package protocol implements the roomcast signaling protocol.
//
// A receiver opens a WebSocket to a signaling endpoint, sends a join message
// for a room, then receives two kinds of messages: JSON text control frames
// (roomUpdate, offer, anything else is ignored) and binary frames carrying raw
// interleaved s16le PCM with no header. Decode classifies every inbound
// message into a Frame; Client owns the connection lifecycle.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{
//	    Endpoint: "ws://localhost:8928",
//	    RoomID:   "r1",
//	    UserID:   "Receiver",
//	    OnFrame:  func(f protocol.Frame) { ... },
//	})
//	err := client.Connect(ctx)
//	defer client.Disconnect("done")
package protocol
