package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/eidolon-labs/notesync/internal/flagx"
	"github.com/eidolon-labs/notesync/internal/timex"
)

// JsonConfig is an intermediate DTO used only for reading JSON
// configuration files, using timex.Duration for interval fields so both
// duration strings ("1m") and integer nanoseconds parse. After
// unmarshalling, its fields are copied into the runtime Config struct
// which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
}

// parseJson loads configuration values from a JSON file into config.
// The file path is looked up via the -c/-config command-line flags; if
// neither is set, no file is loaded and config is left untouched. A file
// that can't be read or parsed panics — a broken config file at startup
// is a fatal misconfiguration, not something to silently ignore.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = time.Duration(c.RefreshTokenValidityDuration.Duration)
	}
}
