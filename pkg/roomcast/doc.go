// ABOUTME: High-level roomcast receiver API
// ABOUTME: Joins a room, gates incoming PCM and plays it on the local output
// Package roomcast provides the receiver engine for room-based PCM streaming.
//
// A Receiver joins a signaling room over WebSocket, tracks the room roster,
// and plays raw 16-bit PCM frames on a local audio output once the user has
// enabled audio. Every state change is published as an Event to subscribers,
// in the order it happened.
//
// Example:
//
//	rx, err := roomcast.NewReceiver(roomcast.Config{
//	    Endpoint: "wss://socketbe.onrender.com",
//	    RoomID:   "r1",
//	    UserID:   "Receiver",
//	})
//	unsubscribe := rx.Subscribe(func(ev roomcast.Event) {
//	    fmt.Println(ev)
//	})
//	defer unsubscribe()
//
//	err = rx.Start(ctx)
//	err = rx.EnableAudio()
//	err = rx.Stop()
//
// For lower-level control, see the protocol and audio/output packages.
package roomcast
