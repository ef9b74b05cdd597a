package discovery

import "testing"

func TestMonitor_String(t *testing.T) {
	tests := []struct {
		name     string
		monitor  *Monitor
		expected string
	}{
		{
			name:     "with pid",
			monitor:  &Monitor{Instance: "jitstub-812", IP: "192.168.4.16", Port: 8765, PID: 812},
			expected: "jitstub monitor jitstub-812 (pid 812) at 192.168.4.16:8765",
		},
		{
			name:     "without pid",
			monitor:  &Monitor{Instance: "lab", IP: "10.0.0.5", Port: 9000},
			expected: "jitstub monitor lab at 10.0.0.5:9000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.monitor.String(); got != tt.expected {
				t.Errorf("Monitor.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMonitor_Addr(t *testing.T) {
	tests := []struct {
		ip       string
		port     int
		expected string
	}{
		{"192.168.4.16", 8765, "192.168.4.16:8765"},
		{"fe80::1", 8765, "[fe80::1]:8765"},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			m := &Monitor{IP: tt.ip, Port: tt.port}
			if got := m.Addr(); got != tt.expected {
				t.Errorf("Monitor.Addr() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMonitor_GetMetadata(t *testing.T) {
	m := &Monitor{}
	if got := m.GetMetadata("pid"); got != "" {
		t.Errorf("GetMetadata() on nil map = %q", got)
	}

	m.Metadata = map[string]string{"pid": "812"}
	if got := m.GetMetadata("pid"); got != "812" {
		t.Errorf("GetMetadata(pid) = %q", got)
	}
	if got := m.GetMetadata("missing"); got != "" {
		t.Errorf("GetMetadata(missing) = %q", got)
	}
}
