package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/timeboard/internal/app"
	toml "github.com/pelletier/go-toml/v2"
)

// NotifySink selects where notifications are delivered.
type NotifySink string

const (
	NotifySinkLog  NotifySink = "log"
	NotifySinkNATS NotifySink = "nats"
	NotifySinkNone NotifySink = "none"
)

type Config struct {
	Database DatabaseConfig    `toml:"database"`
	Logging  LoggingConfig     `toml:"logging"`
	Server   ServerConfig      `toml:"server"`
	Time     TimeConfig        `toml:"time"`
	Notify   NotifyConfig      `toml:"notify"`
	Users    []app.UserProfile `toml:"users,omitempty"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type ServerConfig struct {
	HTTPBind        string   `toml:"http_bind"`
	APIEndpoint     string   `toml:"api_endpoint"`
	MCPEndpoint     string   `toml:"mcp_endpoint"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type TimeConfig struct {
	// Zone is an IANA zone name used for overdue cutoffs and day filters.
	Zone string `toml:"zone"`
}

type NotifyConfig struct {
	Sink          NotifySink `toml:"sink"`
	QueueSize     int        `toml:"queue_size"`
	NATSURL       string     `toml:"nats_url"`
	SubjectPrefix string     `toml:"subject_prefix"`
}

// Duration decodes TOML strings such as "10s" into a time.Duration.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: false,
				Dir:     ".timeboard/log",
			},
		},
		Server: ServerConfig{
			HTTPBind:        "127.0.0.1:8080",
			APIEndpoint:     "/api/v1",
			MCPEndpoint:     "/mcp",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Time: TimeConfig{
			Zone: "UTC",
		},
		Notify: NotifyConfig{
			Sink:          NotifySinkLog,
			QueueSize:     256,
			NATSURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "timeboard.notifications",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when enabled")
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	for key, endpoint := range map[string]string{
		"server.api_endpoint": c.Server.APIEndpoint,
		"server.mcp_endpoint": c.Server.MCPEndpoint,
	} {
		if !strings.HasPrefix(strings.TrimSpace(endpoint), "/") {
			return fmt.Errorf("%s must start with '/': %q", key, endpoint)
		}
	}
	if c.Server.ShutdownTimeout.Std() <= 0 {
		return errors.New("server.shutdown_timeout must be > 0")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Notify.Sink {
	case NotifySinkLog, NotifySinkNone:
	case NotifySinkNATS:
		if strings.TrimSpace(c.Notify.NATSURL) == "" {
			return errors.New("notify.nats_url is required for the nats sink")
		}
	default:
		return fmt.Errorf("invalid notify.sink: %q", c.Notify.Sink)
	}
	if c.Notify.QueueSize < 0 {
		return errors.New("notify.queue_size must be >= 0")
	}

	seenUser := map[string]struct{}{}
	for idx, user := range c.Users {
		id := strings.TrimSpace(user.ID)
		if id == "" {
			return fmt.Errorf("users[%d].id is required", idx)
		}
		if _, ok := seenUser[id]; ok {
			return fmt.Errorf("users[%d].id is duplicated: %s", idx, id)
		}
		seenUser[id] = struct{}{}
	}

	return nil
}

// Location resolves the configured reference zone. Empty means UTC.
func (c Config) Location() (*time.Location, error) {
	zone := strings.TrimSpace(c.Time.Zone)
	if zone == "" || strings.EqualFold(zone, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid time.zone %q: %w", c.Time.Zone, err)
	}
	return loc, nil
}

// Save writes cfg as TOML to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	content, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode toml: %w", err)
	}
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
