// Package backend parses backend aggregator flags and runs the service.
package backend

import (
	"context"
	"errors"
	"flag"
	"log"

	"github.com/onekgame/onek/internal/backend"
	entrypoint "github.com/onekgame/onek/internal/platform/cmd"
)

// Config holds backend command configuration.
type Config struct {
	Addr          string `env:"ONEK_BACKEND_ADDR" envDefault:"127.0.0.1:7703"`
	AuthorityAddr string `env:"ONEK_AUTHORITY_ADDR" envDefault:"127.0.0.1:7701"`
	LogicAddr     string `env:"ONEK_LOGIC_ADDR" envDefault:"127.0.0.1:7702"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The session listen address")
	fs.StringVar(&cfg.AuthorityAddr, "authority", cfg.AuthorityAddr, "The state authority address")
	fs.StringVar(&cfg.LogicAddr, "logic", cfg.LogicAddr, "The logic engine intent address")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the backend aggregator service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBackend, func(ctx context.Context) error {
		b, err := backend.New(cfg.AuthorityAddr, cfg.LogicAddr, cfg.Addr)
		if err != nil {
			return err
		}
		defer b.Close()
		log.Printf("backend listening on %s", b.Address())
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}
