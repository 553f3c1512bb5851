package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "valid JSON config",
			config:  Config{Level: "info", Format: "json"},
			wantErr: false,
		},
		{
			name:    "valid text config",
			config:  Config{Level: "debug", Format: "text"},
			wantErr: false,
		},
		{
			name:    "empty config uses defaults",
			config:  Config{},
			wantErr: false,
		},
		{
			name:    "critical level",
			config:  Config{Level: "critical"},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			config:  Config{Level: "verbose", Format: "json"},
			wantErr: true,
		},
		{
			name:    "invalid format",
			config:  Config{Level: "info", Format: "console"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}

			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if logger != nil {
				defer logger.Close()
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		level    slog.Level
		wantLog  bool
	}{
		{"debug level logs debug", "debug", slog.LevelDebug, true},
		{"info level filters debug", "info", slog.LevelDebug, false},
		{"info level logs info", "info", slog.LevelInfo, true},
		{"warn level filters info", "warn", slog.LevelInfo, false},
		{"error level filters warn", "error", slog.LevelWarn, false},
		{"error level logs critical", "error", LevelCritical, true},
		{"critical level filters error", "critical", slog.LevelError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger, err := New(Config{Level: tt.logLevel, Format: "json", Writer: buf})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer logger.Close()

			logger.Slog().Log(t.Context(), tt.level, "probe")

			got := strings.Contains(buf.String(), "probe")
			if got != tt.wantLog {
				t.Errorf("logged = %v, want %v (output: %q)", got, tt.wantLog, buf.String())
			}
		})
	}
}

func TestLogger_CriticalLevelName(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{Level: "info", Format: "json", Writer: buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	Critical(logger.Slog(), "emergency stop", "reason", "usage at 96%")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "CRITICAL" {
		t.Errorf("level = %v, want CRITICAL", entry["level"])
	}
}

func TestLogger_RedactsSecrets(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{
		Level:   "info",
		Format:  "json",
		Writer:  buf,
		Secrets: []string{"santiment-secret-1234"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	logger.Slog().With("endpoint", "https://api/?key=santiment-secret-1234").
		Info("request failed: key santiment-secret-1234 rejected", "detail", "santiment-secret-1234")

	out := buf.String()
	if strings.Contains(out, "santiment-secret-1234") {
		t.Errorf("secret leaked into output: %s", out)
	}
	if !strings.Contains(out, "sant***") {
		t.Errorf("expected masked prefix in output: %s", out)
	}
}

func TestLogger_JournalPerComponent(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{
		Level:      "info",
		Format:     "json",
		Writer:     &bytes.Buffer{},
		JournalDir: dir,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Slog().With("component", "watchdog").Warn("dataset stale", "name", "hybrid")
	logger.Slog().With("component", "governor").Info("cost recorded", "source", "santiment")
	logger.Slog().Info("no component")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	tests := []struct {
		file string
		want []string
	}{
		{"watchdog.log", []string{"WATCHDOG: WARNING", "dataset stale", "name=hybrid"}},
		{"governor.log", []string{"GOVERNOR:", "cost recorded", "source=santiment"}},
		{"warden.log", []string{"WARDEN:", "no component"}},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(dir, tt.file))
			if err != nil {
				t.Fatalf("read journal: %v", err)
			}
			line := string(data)
			if !strings.HasPrefix(line, "[") {
				t.Errorf("journal line should start with a bracketed timestamp: %q", line)
			}
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("journal %s missing %q: %q", tt.file, w, line)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"critical", LevelCritical, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
