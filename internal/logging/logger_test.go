package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be silent when no level is set")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv error: %v", err)
	}
	defer SetLogger(nil)

	core := GetLogger().Core()
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled")
	}
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
}

func TestInitialize_InvalidLevel(t *testing.T) {
	defer SetLogger(nil)

	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"verbose", true},
		{"DEBUG", true},
		{"inf", true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := Initialize(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.level) {
				t.Errorf("error %q should name the bad level", err)
			}
		})
	}
}

func TestLogRawBytes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogRawBytes("rsp notification", []byte("%Stop:T05#xx"))

	entries := logs.FilterMessage("rsp notification").All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["length"] != int64(12) {
		t.Errorf("length = %v, want 12", fields["length"])
	}
	if hexField, _ := fields["hex"].(string); !strings.HasPrefix(hexField, "25") {
		t.Errorf("hex = %q, want leading %%", hexField)
	}
}

func TestLogPacket(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogPacket("send", "m1000,4")
	LogPacket("recv", strings.Repeat("a", 300))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["direction"] != "send" || fields["payload"] != "m1000,4" {
		t.Errorf("fields = %v", fields)
	}
	if p := entries[1].ContextMap()["payload"].(string); !strings.HasSuffix(p, "...") || len(p) != packetTraceMax+3 {
		t.Errorf("long payload not truncated: len %d", len(p))
	}
}

func TestLogPacket_SkippedAboveDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogPacket("send", "c")
	if logs.Len() != 0 {
		t.Errorf("packet logged at info level")
	}
}

func TestLogSession(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogSession("region_mapped", zap.Uint64("address", 0x2000))

	entries := logs.FilterField(zap.String("event", "region_mapped")).All()
	if len(entries) != 1 {
		t.Fatalf("got %d matching entries, want 1", len(entries))
	}
	if entries[0].ContextMap()["address"] != uint64(0x2000) {
		t.Errorf("address field = %v", entries[0].ContextMap()["address"])
	}
}

func TestAsciiDump(t *testing.T) {
	if got := asciiDump([]byte("O\x00K\n")); got != "O.K." {
		t.Errorf("asciiDump = %q, want O.K.", got)
	}
	if asciiDump(nil) != "" {
		t.Error("asciiDump(nil) should be empty")
	}
}
