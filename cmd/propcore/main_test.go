package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/propcore/internal/auth"
	"github.com/nerrad567/propcore/internal/codec"
)

const testSecret = "test-secret-for-development-only-0123456789"

const testSchema = `
classes:
  - name: Daq
    properties:
      - name: Rate
        type: int
        default: 1000
`

// writeConfig writes a config with MQTT, InfluxDB and the mirror disabled
// and points PROPCORE_CONFIG at it.
func writeConfig(t *testing.T, dbPath, schemaPath string) {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
service:
  id: test-service

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

mirror:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 18947

security:
  jwt:
    secret: "` + testSecret + `"
    access_token_ttl: 30

schema:
  paths: ["` + schemaPath + `"]
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("PROPCORE_CONFIG", configPath)
}

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daq.yaml")
	if err := os.WriteFile(path, []byte(testSchema), 0o600); err != nil {
		t.Fatalf("failed to write schema: %v", err)
	}
	return path
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("PROPCORE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config error", err)
	}
}

func TestRun_MissingSchema(t *testing.T) {
	writeConfig(t, filepath.Join(t.TempDir(), "test.db"), "/nonexistent/schema.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with a missing schema file")
	}
	if !strings.Contains(err.Error(), "loading schema") {
		t.Errorf("run() error = %v, want loading schema error", err)
	}
}

func TestRun_BadDatabasePath(t *testing.T) {
	// A regular file where the database directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("failed to write blocker: %v", err)
	}
	writeConfig(t, filepath.Join(blocker, "test.db"), writeSchema(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when the database cannot be created")
	}
}

func TestRun_StartsAndStops(t *testing.T) {
	writeConfig(t, filepath.Join(t.TempDir(), "test.db"), writeSchema(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	time.Sleep(500 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}

func TestRunToken(t *testing.T) {
	writeConfig(t, filepath.Join(t.TempDir(), "test.db"), writeSchema(t))

	var out bytes.Buffer
	if err := runToken([]string{"-user", "alice", "-groups", "operators, admin,", "-ttl", "1h"}, &out); err != nil {
		t.Fatalf("runToken() error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	user := claims.User()
	if user.ID != "alice" {
		t.Errorf("user.ID = %q, want %q", user.ID, "alice")
	}
	if len(user.Groups) != 2 || user.Groups[0] != "operators" || user.Groups[1] != "admin" {
		t.Errorf("user.Groups = %v, want [operators admin]", user.Groups)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl < 59*time.Minute || ttl > time.Hour {
		t.Errorf("token lifetime = %v, want about 1h", ttl)
	}
}

func TestRunToken_DefaultTTL(t *testing.T) {
	writeConfig(t, filepath.Join(t.TempDir(), "test.db"), writeSchema(t))

	var out bytes.Buffer
	if err := runToken([]string{"-user", "bob"}, &out); err != nil {
		t.Fatalf("runToken() error = %v", err)
	}
	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl < 29*time.Minute || ttl > 30*time.Minute {
		t.Errorf("token lifetime = %v, want about 30m", ttl)
	}
}

func TestRunToken_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing user", nil},
		{"unknown flag", []string{"-user", "alice", "-nope"}},
		{"bad ttl", []string{"-user", "alice", "-ttl", "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runToken(tt.args, &out); err == nil {
				t.Error("runToken() error = nil, want error")
			}
		})
	}
}

func TestRunToken_InvalidConfig(t *testing.T) {
	t.Setenv("PROPCORE_CONFIG", "/nonexistent/path/config.yaml")

	var out bytes.Buffer
	if err := runToken([]string{"-user", "alice"}, &out); err == nil {
		t.Fatal("runToken() should fail with invalid config path")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("PROPCORE_CONFIG", "")
	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}

	t.Setenv("PROPCORE_CONFIG", "/custom/path/config.yaml")
	if path := getConfigPath(); path != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q, want %q", path, "/custom/path/config.yaml")
	}
}

func TestDocumentCodec(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"json", codec.ContentTypeJSON},
		{"", codec.ContentTypeJSON},
		{"cbor", codec.ContentTypeCBOR},
	}
	for _, tt := range tests {
		if got := documentCodec(tt.format).ContentType(); got != tt.want {
			t.Errorf("documentCodec(%q).ContentType() = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestSplitGroups(t *testing.T) {
	if got := splitGroups(""); len(got) != 0 {
		t.Errorf("splitGroups(\"\") = %v, want empty", got)
	}
	if got := splitGroups(" a ,b,,c "); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("splitGroups() = %v, want [a b c]", got)
	}
}
