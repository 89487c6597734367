package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Relay holds relay server configuration, read from the environment and an
// optional .env file.
type Relay struct {
	Host           string        `env:"HOST"`
	Port           int           `env:"PORT,default=3001"`
	RoomTTL        time.Duration `env:"ROOM_TTL,default=1h"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL,default=1m"`
	AllowedOrigins string        `env:"ALLOWED_ORIGINS"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
}

// LoadRelay loads envFiles (missing files are ignored) and then the process
// environment into a Relay.
func LoadRelay(envFiles ...string) (*Relay, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("relay config: %s: %w", f, err)
		}
	}

	var cfg Relay
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("relay config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("relay config: invalid PORT %d", cfg.Port)
	}
	if cfg.RoomTTL <= 0 || cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("relay config: ROOM_TTL and SWEEP_INTERVAL must be positive")
	}
	return &cfg, nil
}

// Addr is the listen address.
func (r *Relay) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Origins returns the allowed websocket origins; empty allows all.
func (r *Relay) Origins() []string {
	return splitList(r.AllowedOrigins)
}
