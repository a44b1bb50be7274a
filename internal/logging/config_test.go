package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
		"trace":   zerolog.TraceLevel,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q) = %v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
	if _, ok := parseLevel(""); ok {
		t.Fatalf("expected empty level to be ignored")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogBypass, "nope")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel || cfg.Timestamp || !cfg.NoColor || cfg.Bypass {
		t.Fatalf("unexpected config after overrides: %+v", cfg)
	}
}

func TestNewLoggerRespectsLevelAndBypass(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, Config{Level: zerolog.WarnLevel, NoColor: true})
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}

	buf.Reset()
	l = newLogger(&buf, Config{Level: zerolog.DebugLevel, Bypass: true})
	l.Error().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("bypass logger wrote %q", buf.String())
	}
}

func TestPrintfHelpersFollowLevel(t *testing.T) {
	prev := current.Load()
	t.Cleanup(func() { current.Store(prev) })

	var buf bytes.Buffer
	l := newLogger(&buf, Config{Level: zerolog.TraceLevel, NoColor: true})
	current.Store(&l)
	Tracef("frame %d routed", 7)
	if !strings.Contains(buf.String(), "frame 7 routed") {
		t.Fatalf("trace line missing: %q", buf.String())
	}

	buf.Reset()
	l = newLogger(&buf, Config{Level: zerolog.DebugLevel, NoColor: true})
	current.Store(&l)
	Tracef("frame %d routed", 8)
	Debugf("debug %s", "kept")
	if strings.Contains(buf.String(), "frame 8") || !strings.Contains(buf.String(), "debug kept") {
		t.Fatalf("unexpected output at debug level: %q", buf.String())
	}
}
