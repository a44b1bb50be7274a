package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders Default as a config.toml.
func Template() (string, error) {
	d := Default()
	raw := fileConfig{
		SignalURL:          d.SignalURL,
		Transport:          d.Transport,
		RelayURL:           "wss://relay.example.com/relay",
		STUNServers:        d.STUNServers,
		HeartbeatInterval:  d.HeartbeatInterval.String(),
		ConnectTimeout:     d.ConnectTimeout.String(),
		MaxConnectAttempts: d.MaxConnectAttempts,
		DownloadRPS:        d.DownloadRPS,
		DownloadBurst:      d.DownloadBurst,
		MetricsCORSOrigins: []string{},
	}
	b, err := toml.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return "# galleryctl configuration\n" + string(b), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
