package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/hylla/timeboard/internal/app"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/timeboard.db")
	if cfg.Database.Path != "/tmp/timeboard.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Notify.Sink != NotifySinkLog {
		t.Fatalf("unexpected notify sink %q", cfg.Notify.Sink)
	}
	if cfg.Server.ShutdownTimeout.Std() != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout %s", cfg.Server.ShutdownTimeout.Std())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("Location() = %v, %v", loc, err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/timeboard.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[database]
path = "/custom/timeboard.db"

[logging]
level = "debug"

[logging.dev_file]
enabled = true
dir = "/var/log/timeboard"

[server]
http_bind = "0.0.0.0:9090"
shutdown_timeout = "3s"

[time]
zone = "Europe/Stockholm"

[notify]
sink = "nats"
queue_size = 32
nats_url = "nats://broker:4222"

[[users]]
id = "u1"
name = "Ada"
email = "ada@example.com"

[[users]]
id = "u2"
name = "Grace"
`)

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/timeboard.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.DevFile.Enabled || cfg.Logging.DevFile.Dir != "/var/log/timeboard" {
		t.Fatalf("unexpected logging config %#v", cfg.Logging)
	}
	if cfg.Server.HTTPBind != "0.0.0.0:9090" || cfg.Server.ShutdownTimeout.Std() != 3*time.Second {
		t.Fatalf("unexpected server config %#v", cfg.Server)
	}
	if cfg.Server.APIEndpoint != "/api/v1" {
		t.Fatalf("expected default api endpoint to survive, got %q", cfg.Server.APIEndpoint)
	}
	if cfg.Notify.Sink != NotifySinkNATS || cfg.Notify.QueueSize != 32 || cfg.Notify.NATSURL != "nats://broker:4222" {
		t.Fatalf("unexpected notify config %#v", cfg.Notify)
	}
	if len(cfg.Users) != 2 || cfg.Users[0].Name != "Ada" || cfg.Users[0].Email != "ada@example.com" {
		t.Fatalf("unexpected users %#v", cfg.Users)
	}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "Europe/Stockholm" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "log level", content: "[logging]\nlevel = \"loud\"\n", want: "logging.level"},
		{name: "notify sink", content: "[notify]\nsink = \"email\"\n", want: "notify.sink"},
		{name: "time zone", content: "[time]\nzone = \"Mars/Olympus\"\n", want: "time.zone"},
		{name: "endpoint", content: "[server]\napi_endpoint = \"api\"\n", want: "server.api_endpoint"},
		{name: "duration", content: "[server]\nshutdown_timeout = \"soon\"\n"},
		{name: "zero timeout", content: "[server]\nshutdown_timeout = \"0s\"\n", want: "shutdown_timeout"},
		{name: "duplicate user", content: "[[users]]\nid = \"u1\"\n[[users]]\nid = \"u1\"\n", want: "duplicated"},
		{name: "blank user", content: "[[users]]\nname = \"nobody\"\n", want: "users[0].id"},
		{name: "queue size", content: "[notify]\nqueue_size = -1\n", want: "queue_size"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content), Default("/tmp/default.db"))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateRequiresDatabasePath(t *testing.T) {
	cfg := Default("  ")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for blank database path")
	}
}

func TestDurationRoundTrip(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}
	if string(text) != "1m30s" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(target); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Fatalf("expected dir to exist, stat error %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default("/tmp/timeboard.db")
	cfg.Notify.Sink = NotifySinkNone
	cfg.Users = []app.UserProfile{{ID: "u1", Name: "Ada"}}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path, Default("/other.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Database.Path != "/tmp/timeboard.db" || loaded.Notify.Sink != NotifySinkNone {
		t.Fatalf("unexpected loaded config %#v", loaded)
	}
	if loaded.Server.ShutdownTimeout.Std() != 10*time.Second {
		t.Fatalf("unexpected shutdown timeout %v", loaded.Server.ShutdownTimeout.Std())
	}
	if len(loaded.Users) != 1 || loaded.Users[0].Name != "Ada" {
		t.Fatalf("unexpected users %#v", loaded.Users)
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	cfg := Default("")
	if err := Save(filepath.Join(t.TempDir(), "config.toml"), cfg); err == nil {
		t.Fatal("expected validation error")
	}
}
