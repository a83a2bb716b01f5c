package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds runtime configuration loaded from an optional TOML file and
// environment variables. Environment variables win over the file.
type Config struct {
	APIBaseURL            string
	PushURL               string
	SessionFile           string
	ListenAddr            string
	CorsOrigins           []string
	HTTPTimeout           time.Duration
	PushMaxAttempts       int
	PushReconnectDelay    time.Duration
	PushReconnectDelayMax time.Duration
	PushPongWait          time.Duration
	LogDir                string
	LogRetentionDays      int
	DiagnosticsInterval   time.Duration
}

func Defaults() Config {
	return Config{
		APIBaseURL:            "http://localhost:5000/api",
		SessionFile:           ".labclient/session.json",
		ListenAddr:            "127.0.0.1:8090",
		HTTPTimeout:           10 * time.Second,
		PushMaxAttempts:       10,
		PushReconnectDelay:    time.Second,
		PushReconnectDelayMax: 5 * time.Second,
		PushPongWait:          60 * time.Second,
		LogDir:                "storage/logs",
		LogRetentionDays:      7,
		DiagnosticsInterval:   time.Minute,
	}
}

func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("LABCLIENT_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.APIBaseURL = strings.TrimRight(envOr("API_BASE_URL", cfg.APIBaseURL), "/")
	cfg.PushURL = envOr("PUSH_URL", cfg.PushURL)
	cfg.SessionFile = envOr("SESSION_FILE", cfg.SessionFile)
	cfg.ListenAddr = envOr("LISTEN_ADDR", cfg.ListenAddr)
	if raw := envOr("CORS_ORIGINS", ""); raw != "" {
		cfg.CorsOrigins = parseCSV(raw)
	}
	cfg.HTTPTimeout = envOrDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.PushMaxAttempts = envOrInt("PUSH_MAX_ATTEMPTS", cfg.PushMaxAttempts)
	cfg.PushReconnectDelay = envOrDuration("PUSH_RECONNECT_DELAY", cfg.PushReconnectDelay)
	cfg.PushReconnectDelayMax = envOrDuration("PUSH_RECONNECT_DELAY_MAX", cfg.PushReconnectDelayMax)
	cfg.PushPongWait = envOrDuration("PUSH_PONG_WAIT", cfg.PushPongWait)
	cfg.LogDir = envOr("LOG_DIR", cfg.LogDir)
	cfg.LogRetentionDays = envOrInt("LOG_RETENTION_DAYS", cfg.LogRetentionDays)
	cfg.DiagnosticsInterval = envOrDuration("DIAGNOSTICS_INTERVAL", cfg.DiagnosticsInterval)

	if cfg.PushURL == "" {
		derived, err := DerivePushURL(cfg.APIBaseURL)
		if err != nil {
			return Config{}, err
		}
		cfg.PushURL = derived
	}
	if cfg.PushReconnectDelayMax < cfg.PushReconnectDelay {
		cfg.PushReconnectDelayMax = cfg.PushReconnectDelay
	}
	if cfg.LogRetentionDays > 7 {
		cfg.LogRetentionDays = 7
	}
	return cfg, nil
}

// DerivePushURL maps http(s)://host/anything to ws(s)://host/ws.
func DerivePushURL(apiBase string) (string, error) {
	parsed, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http", "":
		parsed.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported api base scheme %q", parsed.Scheme)
	}
	parsed.Path = "/ws"
	parsed.RawQuery = ""
	return parsed.String(), nil
}

type fileConfig struct {
	APIBaseURL            string   `toml:"api_base_url"`
	PushURL               string   `toml:"push_url"`
	SessionFile           string   `toml:"session_file"`
	ListenAddr            string   `toml:"listen_addr"`
	CorsOrigins           []string `toml:"cors_origins"`
	HTTPTimeout           string   `toml:"http_timeout"`
	PushMaxAttempts       int      `toml:"push_max_attempts"`
	PushReconnectDelay    string   `toml:"push_reconnect_delay"`
	PushReconnectDelayMax string   `toml:"push_reconnect_delay_max"`
	PushPongWait          string   `toml:"push_pong_wait"`
	LogDir                string   `toml:"log_dir"`
	LogRetentionDays      int      `toml:"log_retention_days"`
	DiagnosticsInterval   string   `toml:"diagnostics_interval"`
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	var file fileConfig
	if err := toml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}

	setString(&cfg.APIBaseURL, file.APIBaseURL)
	setString(&cfg.PushURL, file.PushURL)
	setString(&cfg.SessionFile, file.SessionFile)
	setString(&cfg.ListenAddr, file.ListenAddr)
	setString(&cfg.LogDir, file.LogDir)
	if len(file.CorsOrigins) > 0 {
		cfg.CorsOrigins = file.CorsOrigins
	}
	if file.PushMaxAttempts > 0 {
		cfg.PushMaxAttempts = file.PushMaxAttempts
	}
	if file.LogRetentionDays > 0 {
		cfg.LogRetentionDays = file.LogRetentionDays
	}
	for _, d := range []struct {
		raw    string
		target *time.Duration
	}{
		{file.HTTPTimeout, &cfg.HTTPTimeout},
		{file.PushReconnectDelay, &cfg.PushReconnectDelay},
		{file.PushReconnectDelayMax, &cfg.PushReconnectDelayMax},
		{file.PushPongWait, &cfg.PushPongWait},
		{file.DiagnosticsInterval, &cfg.DiagnosticsInterval},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: invalid duration %q: %w", path, d.raw, err)
		}
		*d.target = parsed
	}
	return nil
}

func setString(target *string, value string) {
	if strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
