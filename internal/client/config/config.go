// Package config loads runtime configuration for the notesync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the sync server's HTTP API
//	-i int      online status check interval (seconds)
//	-d string   local SQLite database path
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_base_url": "http://127.0.0.1:8080",
//	  "online_check_interval": "3s",
//	  "database_path": "notesync.db",
//	  "s3_region": "us-east-1",
//	  "s3_access_key": "...",
//	  "s3_secret_key": "...",
//	  "s3_bucket": "notesync-attachments",
//	  "s3_base_endpoint": "https://s3.example.com"
//	}
package config

import "time"

// Config holds runtime settings for the notesync CLI. Grounded on the
// teacher's client Config (ServerEndpointAddr/OnlineCheckInterval),
// renamed from a gRPC host:port to an HTTP base URL and extended with the
// local SQLite path and the client-held S3 credentials blob.Config needs
// (SPEC_FULL.md's client-owned attachment store, since presigning now
// happens client-side rather than being brokered by the server).
type Config struct {
	ServerBaseURL       string
	OnlineCheckInterval time.Duration
	DatabasePath        string

	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3BaseEndpoint string
}

// LoadDefaults populates c with sensible development defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "notesync.db"
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
