// ABOUTME: mDNS service discovery package
// ABOUTME: Discover and advertise roomcast relays on the local network
// Package discovery provides mDNS service discovery for roomcast relays.
//
// A relay advertises itself as _roomcast._tcp; players browse for it when
// no signaling endpoint is configured.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	server, err := discovery.Discover(ctx)
//	if err == nil {
//	    fmt.Println("Found relay at", server.Endpoint())
//	}
package discovery
