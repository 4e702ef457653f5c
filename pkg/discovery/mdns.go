// ABOUTME: mDNS service discovery for roomcast relays
// ABOUTME: Handles both advertisement (relay side) and browsing (player side)
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

const (
	// ServiceType is the DNS-SD service type of a roomcast relay
	ServiceType = "_roomcast._tcp"

	defaultPath  = "/"
	queryTimeout = 3 * time.Second
)

// ErrNotFound is returned by Discover when no relay answered in time
var ErrNotFound = errors.New("no relay found")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int

	// Path is the WebSocket path advertised in the TXT record (default: /)
	Path string
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered relay
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Endpoint returns the relay's WebSocket URL
func (s *ServerInfo) Endpoint() string {
	path := s.Path
	if path == "" {
		path = defaultPath
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(s.Host, fmt.Sprint(s.Port)), path)
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = defaultPath
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise announces this relay via mDNS until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Info().Str("module", "discovery").
		Str("name", m.config.ServiceName).
		Int("port", m.config.Port).
		Str("type", ServiceType).
		Msg("Advertising mDNS service")

	go func() {
		<-m.ctx.Done()
		_ = server.Shutdown()
	}()

	return nil
}

// Browse searches for relays until Stop is called
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop continuously browses for relays
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				server := serverFromEntry(entry)
				if server == nil {
					continue
				}

				log.Info().Str("module", "discovery").
					Str("name", server.Name).
					Str("endpoint", server.Endpoint()).
					Msg("Discovered relay")

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		params := &mdns.QueryParam{
			Service:     ServiceType,
			Domain:      "local",
			Timeout:     queryTimeout,
			Entries:     entries,
			DisableIPv6: true,
		}

		if err := mdns.Query(params); err != nil {
			log.Debug().Err(err).Str("module", "discovery").Msg("mDNS query failed")
		}
		close(entries)
		<-done
	}
}

// Servers returns the channel of discovered relays
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// Discover browses until the first relay answers or ctx is done
func Discover(ctx context.Context) (*ServerInfo, error) {
	manager := NewManager(Config{})
	defer manager.Stop()

	if err := manager.Browse(); err != nil {
		return nil, err
	}

	select {
	case server := <-manager.Servers():
		return server, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNotFound, ctx.Err())
	}
}

// serverFromEntry converts an mDNS answer; entries without IPv4 are skipped
func serverFromEntry(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}

	server := &ServerInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: defaultPath,
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok && path != "" {
			server.Path = path
		}
	}
	return server
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	ips := []net.IP{}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
