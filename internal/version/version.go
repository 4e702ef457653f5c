// ABOUTME: Version and product identification constants
// ABOUTME: Shared by the player and the relay for logs and the UI header
package version

// Version is the release version, overridden at link time with -ldflags "-X"
var Version = "0.3.0"

const (
	Product      = "roomcast"
	Manufacturer = "roomcast-go"
)

// UserAgent identifies roomcast in logs and mDNS records
func UserAgent() string {
	return Product + "/" + Version
}
