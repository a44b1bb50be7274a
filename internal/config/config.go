// Package config loads galleryctl settings from TOML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/urigallery/internal/protocol/session"
	"github.com/danmuck/urigallery/internal/transport/rtc"
	"github.com/danmuck/urigallery/internal/transport/wsock"
)

const (
	TransportWebRTC    = "webrtc"
	TransportWebSocket = "websocket"

	EnvSignalURL = "URIGALLERY_SIGNAL_URL"
	EnvTokenFile = "URIGALLERY_TOKEN_FILE"
	EnvTransport = "URIGALLERY_TRANSPORT"
	EnvRelayURL  = "URIGALLERY_RELAY_URL"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	SignalURL          string
	TokenFile          string
	Transport          string
	RelayURL           string
	RelayCAFile        string
	RelayCertFile      string
	RelayKeyFile       string
	STUNServers        []string
	HeartbeatInterval  time.Duration
	ConnectTimeout     time.Duration
	MaxConnectAttempts int
	DownloadRPS        float64
	DownloadBurst      int
	MetricsAddr        string
	MetricsCORSOrigins []string
}

func Default() Config {
	return Config{
		SignalURL:          "http://localhost:8080",
		Transport:          TransportWebRTC,
		STUNServers:        []string{rtc.DefaultSTUNServer},
		HeartbeatInterval:  session.DefaultHeartbeatInterval,
		ConnectTimeout:     session.DefaultConnectTimeout,
		MaxConnectAttempts: 1,
		DownloadRPS:        8,
		DownloadBurst:      4,
	}
}

// fileConfig is the config.toml key mapping.
type fileConfig struct {
	SignalURL          string   `toml:"signal_url"`
	TokenFile          string   `toml:"token_file"`
	Transport          string   `toml:"transport"`
	RelayURL           string   `toml:"relay_url"`
	RelayCAFile        string   `toml:"relay_ca_file"`
	RelayCertFile      string   `toml:"relay_cert_file"`
	RelayKeyFile       string   `toml:"relay_key_file"`
	STUNServers        []string `toml:"stun_servers"`
	HeartbeatInterval  string   `toml:"heartbeat_interval"`
	ConnectTimeout     string   `toml:"connect_timeout"`
	MaxConnectAttempts int      `toml:"max_connect_attempts"`
	DownloadRPS        float64  `toml:"download_rps"`
	DownloadBurst      int      `toml:"download_burst"`
	MetricsAddr        string   `toml:"metrics_addr"`
	MetricsCORSOrigins []string `toml:"metrics_cors_origins"`
}

// Load overlays the keys present in path onto Default, applies environment
// overrides and validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	if meta.IsDefined("signal_url") {
		cfg.SignalURL = strings.TrimSpace(raw.SignalURL)
	}
	if meta.IsDefined("token_file") {
		cfg.TokenFile = strings.TrimSpace(raw.TokenFile)
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("relay_url") {
		cfg.RelayURL = strings.TrimSpace(raw.RelayURL)
	}
	if meta.IsDefined("relay_ca_file") {
		cfg.RelayCAFile = strings.TrimSpace(raw.RelayCAFile)
	}
	if meta.IsDefined("relay_cert_file") {
		cfg.RelayCertFile = strings.TrimSpace(raw.RelayCertFile)
	}
	if meta.IsDefined("relay_key_file") {
		cfg.RelayKeyFile = strings.TrimSpace(raw.RelayKeyFile)
	}
	if meta.IsDefined("stun_servers") {
		cfg.STUNServers = raw.STUNServers
	}
	if meta.IsDefined("heartbeat_interval") {
		d, err := parseDuration("heartbeat_interval", raw.HeartbeatInterval)
		if err != nil {
			return err
		}
		cfg.HeartbeatInterval = d
	}
	if meta.IsDefined("connect_timeout") {
		d, err := parseDuration("connect_timeout", raw.ConnectTimeout)
		if err != nil {
			return err
		}
		cfg.ConnectTimeout = d
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("download_rps") {
		cfg.DownloadRPS = raw.DownloadRPS
	}
	if meta.IsDefined("download_burst") {
		cfg.DownloadBurst = raw.DownloadBurst
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("metrics_cors_origins") {
		cfg.MetricsCORSOrigins = raw.MetricsCORSOrigins
	}
	return nil
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, err)
	}
	return d, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSignalURL); ok && strings.TrimSpace(v) != "" {
		cfg.SignalURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTokenFile); ok && strings.TrimSpace(v) != "" {
		cfg.TokenFile = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTransport); ok && strings.TrimSpace(v) != "" {
		cfg.Transport = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvRelayURL); ok && strings.TrimSpace(v) != "" {
		cfg.RelayURL = strings.TrimSpace(v)
	}
}

func (c Config) Validate() error {
	if err := checkURL("signal_url", c.SignalURL, "http", "https"); err != nil {
		return err
	}
	switch c.Transport {
	case TransportWebRTC:
	case TransportWebSocket:
		if err := checkURL("relay_url", c.RelayURL, "ws", "wss"); err != nil {
			return err
		}
		if err := c.RelayTLS().Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	default:
		return fmt.Errorf("%w: transport=%q (expected %s or %s)", ErrInvalid, c.Transport, TransportWebRTC, TransportWebSocket)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: heartbeat_interval must not be negative", ErrInvalid)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect_timeout must be positive", ErrInvalid)
	}
	if c.MaxConnectAttempts < 1 {
		return fmt.Errorf("%w: max_connect_attempts must be >= 1", ErrInvalid)
	}
	if c.DownloadRPS < 0 || c.DownloadBurst < 0 {
		return fmt.Errorf("%w: download limits must not be negative", ErrInvalid)
	}
	return nil
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %s=%q is not an absolute url", ErrInvalid, key, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s scheme %q (expected %s)", ErrInvalid, key, u.Scheme, strings.Join(schemes, " or "))
}

// SessionConfig maps the connection keys onto session.Config. A zero
// heartbeat_interval disables heartbeats.
func (c Config) SessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.HeartbeatInterval = c.HeartbeatInterval
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = -1
	}
	cfg.ConnectTimeout = c.ConnectTimeout
	cfg.MaxConnectAttempts = c.MaxConnectAttempts
	return cfg
}

func (c Config) RelayTLS() wsock.TLSConfig {
	return wsock.TLSConfig{CAFile: c.RelayCAFile, CertFile: c.RelayCertFile, KeyFile: c.RelayKeyFile}
}

func (c Config) String() string {
	return "transport=" + c.Transport +
		" signal_url=" + c.SignalURL +
		" heartbeat=" + c.HeartbeatInterval.String() +
		" attempts=" + strconv.Itoa(c.MaxConnectAttempts)
}
