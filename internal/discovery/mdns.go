package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stikjit/jitstub/internal/logging"
	"github.com/stikjit/jitstub/internal/version"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type jitstub monitors advertise
	ServiceType = "_jitstub._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for monitor discovery
	DefaultScanTimeout = 5 * time.Second

	// appTag marks TXT records written by jitstub
	appTag = "jitstub"
)

// TXTRecords returns the TXT record set advertised for a session on pid.
func TXTRecords(pid int) []string {
	records := []string{"app=" + appTag, "version=" + version.Version}
	if pid > 0 {
		records = append(records, "pid="+strconv.Itoa(pid))
	}
	return records
}

// Advertisement is a registered mDNS service. Call Shutdown to withdraw it.
type Advertisement struct {
	Instance string
	Port     int
	server   *zeroconf.Server
}

// Advertise announces a monitor listening on port. An empty instance name
// becomes "jitstub-<pid>".
func Advertise(instance string, port, pid int) (*Advertisement, error) {
	if port <= 0 {
		return nil, fmt.Errorf("cannot advertise monitor on port %d", port)
	}
	if instance == "" {
		instance = fmt.Sprintf("%s-%d", appTag, pid)
	}

	srv, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, TXTRecords(pid), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising monitor",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
		zap.Int("pid", pid),
	)
	return &Advertisement{Instance: instance, Port: port, server: srv}, nil
}

// Shutdown withdraws the advertisement. It is safe to call more than once.
func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	logging.Debug("Withdrew monitor advertisement", zap.String("instance", a.Instance))
}

// Scanner handles mDNS monitor discovery
type Scanner struct {
	// Timeout is the maximum time to wait for monitor discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan browses for monitors until the timeout or ctx ends, then returns
// everything found. Duplicate announcements of one instance are collapsed.
func (s *Scanner) Scan(ctx context.Context) ([]*Monitor, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		seen     = make(map[string]bool)
		monitors = make([]*Monitor, 0)
	)

	err := s.browse(ctx, func(m *Monitor) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[m.Instance] {
			seen[m.Instance] = true
			monitors = append(monitors, m)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	out := make([]*Monitor, len(monitors))
	copy(out, monitors)
	return out, nil
}

// Find waits for the monitor with the given instance name.
func (s *Scanner) Find(ctx context.Context, instance string) (*Monitor, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	found := make(chan *Monitor, 1)
	err := s.browse(ctx, func(m *Monitor) bool {
		if m.Instance != instance {
			return true
		}
		select {
		case found <- m:
		default:
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	select {
	case m := <-found:
		return m, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("monitor %q not found within %s", instance, s.Timeout)
	}
}

// browse starts a resolver and feeds parsed monitors to fn until fn
// returns false or ctx ends.
func (s *Scanner) browse(ctx context.Context, fn func(*Monitor) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				m := parseServiceEntry(entry)
				if m == nil {
					continue
				}
				logging.Debug("Discovered monitor", zap.String("monitor", m.String()))
				if !fn(m) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Monitor.
// Returns nil if the entry is unusable or was not written by jitstub.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Monitor {
	if entry == nil || entry.Instance == "" || entry.Port <= 0 {
		return nil
	}

	metadata := parseTXT(entry.Text)
	if metadata["app"] != appTag {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	pid, _ := strconv.Atoi(metadata["pid"])

	return &Monitor{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		PID:          pid,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// parseTXT splits "key=value" records. A record without '=' is a flag
// with an empty value.
func parseTXT(text []string) map[string]string {
	metadata := make(map[string]string, len(text))
	for _, txt := range text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}
	return metadata
}

// QuickScan performs a fast scan with a 2-second timeout
func QuickScan(ctx context.Context) ([]*Monitor, error) {
	scanner := NewScanner()
	scanner.Timeout = 2 * time.Second
	return scanner.Scan(ctx)
}
