// Package logic parses logic engine flags and runs the service.
package logic

import (
	"context"
	"errors"
	"flag"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/onekgame/onek/internal/client"
	"github.com/onekgame/onek/internal/logic"
	entrypoint "github.com/onekgame/onek/internal/platform/cmd"
)

// Config holds logic command configuration.
type Config struct {
	Addr          string `env:"ONEK_LOGIC_ADDR" envDefault:"127.0.0.1:7702"`
	AuthorityAddr string `env:"ONEK_AUTHORITY_ADDR" envDefault:"127.0.0.1:7701"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The intent port listen address")
	fs.StringVar(&cfg.AuthorityAddr, "authority", cfg.AuthorityAddr, "The state authority address")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the logic engine: a synced authority mirror plus the
// intent port.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLogic, func(ctx context.Context) error {
		mirror := client.New(cfg.AuthorityAddr, entrypoint.ServiceLogic)

		group, ctx := errgroup.WithContext(ctx)
		group.Go(func() error { return mirror.Run(ctx) })

		if err := mirror.WaitSynced(ctx); err != nil {
			return err
		}
		log.Printf("mirror synced at version %d", mirror.Version())

		engine := logic.NewEngine(mirror)
		server, err := logic.NewServer(engine, cfg.Addr)
		if err != nil {
			return err
		}
		defer server.Close()
		log.Printf("intent port listening on %s", server.Address())

		group.Go(func() error { return server.Run(ctx) })
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}
