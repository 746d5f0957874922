// Package state parses state authority flags and runs the service.
package state

import (
	"context"
	"flag"
	"log"

	"github.com/onekgame/onek/internal/authority"
	"github.com/onekgame/onek/internal/authority/sqlite"
	"github.com/onekgame/onek/internal/invariant"
	entrypoint "github.com/onekgame/onek/internal/platform/cmd"
)

// Config holds state command configuration.
type Config struct {
	Addr string `env:"ONEK_STATE_ADDR" envDefault:"127.0.0.1:7701"`
	// DB is the journal database path. Empty keeps the journal in
	// memory, which forgets history on restart.
	DB            string `env:"ONEK_STATE_DB"`
	SnapshotEvery uint64 `env:"ONEK_STATE_SNAPSHOT_EVERY" envDefault:"64"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The authority listen address")
	fs.StringVar(&cfg.DB, "db", cfg.DB, "The journal database path (empty for in-memory)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the state authority service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceState, func(ctx context.Context) error {
		acfg := authority.Config{
			Checks:        invariant.Default(),
			SnapshotEvery: cfg.SnapshotEvery,
		}
		if cfg.DB != "" {
			store, err := sqlite.Open(cfg.DB)
			if err != nil {
				return err
			}
			acfg.Journal = store
		}

		a, err := authority.New(acfg)
		if err != nil {
			return err
		}
		defer a.Close()

		server, err := authority.NewServer(a, cfg.Addr)
		if err != nil {
			return err
		}
		defer server.Close()
		log.Printf("authority listening on %s at version %d", server.Address(), a.Version())
		return server.Run(ctx)
	})
}
