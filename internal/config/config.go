// Package config reads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings of both binaries. Empty RedisAddr and NATSURL
// select the in-process fallbacks; empty DatabaseDSN selects the in-memory
// repository.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	GRPCAddr    string `env:"GRPC_ADDR" envDefault:":9091"`

	DatabaseDSN string `env:"DATABASE_DSN"`
	RedisAddr   string `env:"REDIS_ADDR"`
	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"spacall.bookings"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret"`

	SearchRadiusKM  float64       `env:"SEARCH_RADIUS_KM" envDefault:"5"`
	CandidateLimit  int           `env:"CANDIDATE_LIMIT" envDefault:"5"`
	ClaimTTL        time.Duration `env:"CLAIM_TTL" envDefault:"30s"`
	PendingTTL      time.Duration `env:"PENDING_TTL" envDefault:"30m"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SettingsTTL     time.Duration `env:"SETTINGS_TTL" envDefault:"5m"`
	AvgSpeedKMH     float64       `env:"AVG_SPEED_KMH" envDefault:"30"`
	SurchargePerKM  int64         `env:"SURCHARGE_PER_KM_CENTS" envDefault:"0"`
	SurchargeFreeKM float64       `env:"SURCHARGE_FREE_KM" envDefault:"3"`

	StrictSMS bool `env:"STRICT_SMS" envDefault:"false"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`
}

// Parse reads the configuration from environment variables.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
