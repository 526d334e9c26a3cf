// Package config holds the CLI settings: defaults, then an optional JSON
// file (-c/-config), then short flags.
package config

import "time"

// Config holds runtime settings for the settlement CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the settlement gRPC endpoint.
//   - OnlineCheckInterval: how often the client checks server reachability.
//   - DownloadDir: directory under the working directory receipts are saved to.
//   - RequestTimeout: deadline for a single server call.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	DownloadDir         string
	RequestTimeout      time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.DownloadDir = "receipts"
	c.RequestTimeout = 60 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
