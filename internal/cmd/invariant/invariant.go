// Package invariant parses invariant checker flags and runs the
// privileged observer.
package invariant

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/onekgame/onek/internal/client"
	"github.com/onekgame/onek/internal/invariant"
	entrypoint "github.com/onekgame/onek/internal/platform/cmd"
	"github.com/onekgame/onek/internal/schema"
)

// Config holds invariant command configuration.
type Config struct {
	AuthorityAddr string `env:"ONEK_AUTHORITY_ADDR" envDefault:"127.0.0.1:7701"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.AuthorityAddr, "authority", cfg.AuthorityAddr, "The state authority address")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run mirrors the authority and verifies every committed world against
// the default invariant set. The first violation is fatal: the checker
// exits non-zero so a supervisor can take the system down for
// inspection.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceInvariant, func(ctx context.Context) error {
		checks := invariant.Default()
		violations := make(chan error, 1)
		record := func(err error) {
			select {
			case violations <- err:
			default:
			}
		}

		mirror := client.New(cfg.AuthorityAddr, entrypoint.ServiceInvariant,
			client.WithOnDelta(func(d schema.Delta, world schema.World) {
				if err := checks.Check(world); err != nil {
					record(fmt.Errorf("version %d (tx %s): %w", world.Version, d.TxID, err))
				}
			}),
			client.WithOnResync(func(world schema.World) {
				if err := checks.Check(world); err != nil {
					record(fmt.Errorf("snapshot at version %d: %w", world.Version, err))
				}
			}),
		)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() { _ = mirror.Run(runCtx) }()
		if err := mirror.WaitSynced(ctx); err != nil {
			return err
		}
		log.Printf("checking %s from version %d", strings.Join(checks.Names(), ", "), mirror.Version())

		select {
		case <-ctx.Done():
			return nil
		case err := <-violations:
			return fmt.Errorf("invariant violation: %w", err)
		}
	})
}
