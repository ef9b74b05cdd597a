package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Monitor is a jitstub session monitor found on the network
type Monitor struct {
	// Instance is the mDNS instance name (e.g., "jitstub-812")
	Instance string

	// Hostname is the advertising host (e.g., "buildbox.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the monitor's HTTP port
	Port int

	// PID is the process the advertised session is attached to, 0 if unknown
	PID int

	// Metadata contains the raw TXT record data
	// Common fields: "app=jitstub", "pid=812", "version=v0.3.0"
	Metadata map[string]string

	// DiscoveredAt is when the monitor was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the monitor
func (m *Monitor) String() string {
	if m.PID > 0 {
		return fmt.Sprintf("jitstub monitor %s (pid %d) at %s", m.Instance, m.PID, m.Addr())
	}
	return fmt.Sprintf("jitstub monitor %s at %s", m.Instance, m.Addr())
}

// Addr returns host:port suitable for server.FetchSnapshot and server.Watch
func (m *Monitor) Addr() string {
	return net.JoinHostPort(m.IP, strconv.Itoa(m.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (m *Monitor) GetMetadata(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}
