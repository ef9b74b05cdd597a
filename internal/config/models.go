package config

import (
	"fmt"
	"net"
	"sort"
	"time"
)

// CurrentVersion is the config file schema version.
const CurrentVersion = 1

// Config represents the entire user configuration file.
type Config struct {
	Version  int                 `yaml:"version"`
	Stub     StubConfig          `yaml:"stub"`
	Loop     LoopConfig          `yaml:"loop"`
	Monitor  MonitorConfig       `yaml:"monitor"`
	Profiles map[string]*Profile `yaml:"profiles,omitempty"` // Keyed by profile name
}

// StubConfig describes how to reach the debug stub.
type StubConfig struct {
	Address     string        `yaml:"address"`      // host:port of debugserver or its proxy
	DialTimeout time.Duration `yaml:"dial_timeout"` // TCP connect timeout
	AckMode     bool          `yaml:"ack_mode"`     // Keep +/- acknowledgements instead of QStartNoAckMode
	MaxAttempts int           `yaml:"max_attempts"` // Retransmit limit while acks are on
}

// LoopConfig tunes the JIT negotiation loop.
type LoopConfig struct {
	DefaultRegionSize uint64 `yaml:"default_region_size"` // Used when a request leaves x1 at zero
	PageSize          uint64 `yaml:"page_size"`           // Granularity of region preparation
}

// MonitorConfig controls the session monitor.
type MonitorConfig struct {
	Listen       string        `yaml:"listen,omitempty"` // Empty disables the monitor
	Advertise    bool          `yaml:"advertise"`        // Announce the monitor over mDNS
	ServiceName  string        `yaml:"service_name"`     // mDNS instance name
	PushInterval time.Duration `yaml:"push_interval"`    // Websocket snapshot period
}

// Profile is a named target.
type Profile struct {
	Description string `yaml:"description,omitempty"`
	PID         int    `yaml:"pid"`
	Address     string `yaml:"address,omitempty"` // Overrides stub.address
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Stub: StubConfig{
			Address:     "127.0.0.1:1234",
			DialTimeout: 10 * time.Second,
			AckMode:     false,
			MaxAttempts: 3,
		},
		Loop: LoopConfig{
			DefaultRegionSize: 0x10000,
			PageSize:          0x4000,
		},
		Monitor: MonitorConfig{
			Listen:       "",
			Advertise:    false,
			ServiceName:  "jitstub",
			PushInterval: time.Second,
		},
		Profiles: make(map[string]*Profile),
	}
}

// fillDefaults replaces zero values with defaults, for files that only set
// some keys.
func (c *Config) fillDefaults() {
	d := Default()

	if c.Stub.Address == "" {
		c.Stub.Address = d.Stub.Address
	}
	if c.Stub.DialTimeout == 0 {
		c.Stub.DialTimeout = d.Stub.DialTimeout
	}
	if c.Stub.MaxAttempts == 0 {
		c.Stub.MaxAttempts = d.Stub.MaxAttempts
	}
	if c.Loop.DefaultRegionSize == 0 {
		c.Loop.DefaultRegionSize = d.Loop.DefaultRegionSize
	}
	if c.Loop.PageSize == 0 {
		c.Loop.PageSize = d.Loop.PageSize
	}
	if c.Monitor.ServiceName == "" {
		c.Monitor.ServiceName = d.Monitor.ServiceName
	}
	if c.Monitor.PushInterval == 0 {
		c.Monitor.PushInterval = d.Monitor.PushInterval
	}
	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}
}

// ValidationError reports one invalid config value.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config value for %s (%v): %s", e.Field, e.Value, e.Reason)
}

// Validate checks the config for values the loop or transport cannot use.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ValidationError{Field: "version", Value: c.Version, Reason: fmt.Sprintf("expected %d", CurrentVersion)}
	}
	if err := validateAddress("stub.address", c.Stub.Address); err != nil {
		return err
	}
	if c.Stub.DialTimeout <= 0 {
		return &ValidationError{Field: "stub.dial_timeout", Value: c.Stub.DialTimeout, Reason: "must be positive"}
	}
	if c.Stub.MaxAttempts < 1 {
		return &ValidationError{Field: "stub.max_attempts", Value: c.Stub.MaxAttempts, Reason: "must be at least 1"}
	}
	if c.Loop.DefaultRegionSize == 0 {
		return &ValidationError{Field: "loop.default_region_size", Value: c.Loop.DefaultRegionSize, Reason: "must be non-zero"}
	}
	if p := c.Loop.PageSize; p == 0 || p&(p-1) != 0 {
		return &ValidationError{Field: "loop.page_size", Value: fmt.Sprintf("0x%x", p), Reason: "must be a power of two"}
	}
	if c.Monitor.Listen != "" {
		if err := validateAddress("monitor.listen", c.Monitor.Listen); err != nil {
			return err
		}
	}
	if c.Monitor.Advertise && c.Monitor.Listen == "" {
		return &ValidationError{Field: "monitor.advertise", Value: true, Reason: "requires monitor.listen"}
	}

	for _, name := range c.ProfileNames() {
		p := c.Profiles[name]
		if p == nil || p.PID <= 0 {
			return &ValidationError{Field: "profiles." + name + ".pid", Value: pidOf(p), Reason: "must be a positive process id"}
		}
		if p.Address != "" {
			if err := validateAddress("profiles."+name+".address", p.Address); err != nil {
				return err
			}
		}
	}
	return nil
}

func pidOf(p *Profile) int {
	if p == nil {
		return 0
	}
	return p.PID
}

func validateAddress(field, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return &ValidationError{Field: field, Value: addr, Reason: "must be host:port"}
	}
	return nil
}

// ProfileNames returns the profile names, sorted.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProfile retrieves a profile by name.
func (c *Config) GetProfile(name string) (*Profile, error) {
	p, ok := c.Profiles[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("no profile named %q (known: %v)", name, c.ProfileNames())
	}
	return p, nil
}

// SetProfile adds or replaces a profile.
func (c *Config) SetProfile(name string, p *Profile) {
	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}
	c.Profiles[name] = p
}

// StubAddress returns the address to dial for a profile, falling back to
// the configured stub address.
func (c *Config) StubAddress(p *Profile) string {
	if p != nil && p.Address != "" {
		return p.Address
	}
	return c.Stub.Address
}
