// Package config loads the process configuration from the environment.
package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Federation holds the tunables of the federation engine.
type Federation struct {
	// Domain is the host name of the local instance, including any port.
	Domain string `env:"DOMAIN, default=localhost"`
	// Insecure selects http rather than https for locally minted identifiers.
	Insecure bool `env:"INSECURE, default=false"`

	MaxCommentDepth   int           `env:"MAX_COMMENT_DEPTH, default=50"`
	RefreshInterval   time.Duration `env:"REFRESH_INTERVAL, default=24h"`
	FetchLimit        int           `env:"FETCH_LIMIT, default=20"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT, default=10s"`
	DeliveryAttempts  uint          `env:"DELIVERY_ATTEMPTS, default=3"`
	DeliveryDelay     time.Duration `env:"DELIVERY_DELAY, default=1s"`
	RetentionWindow   time.Duration `env:"RETENTION_WINDOW, default=168h"`
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL, default=1h"`
}

// Scheme returns the URL scheme used for local identifiers.
func (f Federation) Scheme() string {
	if f.Insecure {
		return "http"
	}
	return "https"
}

// Options are the site wide settings exposed through the site view.
type Options struct {
	RegistrationOpen bool `env:"REGISTRATION_OPEN, default=true"`
	EmailRequired    bool `env:"EMAIL_REQUIRED, default=false"`
}

type Config struct {
	Federation Federation `env:",prefix=WIKI_FEDERATION_"`
	Options    Options    `env:",prefix=WIKI_OPTIONS_"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied and nothing
// read from the environment.
func Default() *Config {
	var cfg Config
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.MapLookuper(nil),
	}); err != nil {
		panic(err)
	}
	return &cfg
}
