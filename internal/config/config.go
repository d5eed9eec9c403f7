package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, decoded from the environment.
type Config struct {
	DBSource    string `env:"DB_SOURCE,required"`
	Port        string `env:"SERVER_PORT,default=8080"`
	Environment string `env:"ENVIRONMENT,default=development"`

	SessionSecret string        `env:"SESSION_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL,default=1h"`

	// Scan-token RSA keys. Leaving both unset switches the token authority
	// into ephemeral-key mode, which invalidates outstanding scan tokens on
	// every restart and is only acceptable for local or demo operation.
	ScanKeyFile string        `env:"SCAN_KEY_FILE,default="`
	ScanPubFile string        `env:"SCAN_PUB_FILE,default="`
	ScanTTL     time.Duration `env:"SCAN_TTL,default=72h"`

	// Maximum clock skew tolerated on X-Request-Timestamp, in either direction.
	TimestampSkew time.Duration `env:"TIMESTAMP_SKEW,default=5m"`

	RateRPS   int `env:"RATE_RPS,default=10"`
	RateBurst int `env:"RATE_BURST,default=20"`
}

// Load reads .env (if present) and decodes the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("config decode failed: %w", err)
	}
	return &cfg, nil
}
