// Package tester parses test driver flags and replays scripted
// scenarios against a running authority and logic pair.
package tester

import (
	"context"
	"flag"
	"fmt"
	"log"

	entrypoint "github.com/onekgame/onek/internal/platform/cmd"
	"github.com/onekgame/onek/internal/tester"
)

// Config holds tester command configuration.
type Config struct {
	AuthorityAddr string `env:"ONEK_AUTHORITY_ADDR" envDefault:"127.0.0.1:7701"`
	LogicAddr     string `env:"ONEK_LOGIC_ADDR" envDefault:"127.0.0.1:7702"`
	Snapshots     string `env:"ONEK_TESTER_SNAPSHOTS" envDefault:"internal/tester/testdata"`
	Scenario      string `env:"ONEK_TESTER_SCENARIO"`
	Determinism   bool   `env:"ONEK_TESTER_DETERMINISM" envDefault:"true"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.AuthorityAddr, "authority", cfg.AuthorityAddr, "The state authority address")
	fs.StringVar(&cfg.LogicAddr, "logic", cfg.LogicAddr, "The logic engine intent address")
	fs.StringVar(&cfg.Snapshots, "snapshots", cfg.Snapshots, "The snapshot baseline directory")
	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "Run only the named scenario")
	fs.BoolVar(&cfg.Determinism, "determinism", cfg.Determinism, "Replay each scenario twice and compare")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run replays the built-in scenario suite. Any snapshot mismatch or
// determinism divergence makes the command exit non-zero.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTester, func(ctx context.Context) error {
		runner := tester.NewRunner(cfg.AuthorityAddr, cfg.LogicAddr)

		ran := 0
		failed := 0
		for _, sc := range tester.Scenarios() {
			if cfg.Scenario != "" && sc.Name != cfg.Scenario {
				continue
			}
			ran++
			if err := runScenario(ctx, runner, cfg, sc); err != nil {
				failed++
				log.Printf("FAIL %s: %v", sc.Name, err)
				continue
			}
			log.Printf("ok   %s", sc.Name)
		}
		if ran == 0 {
			return fmt.Errorf("no scenario named %q", cfg.Scenario)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scenarios failed", failed, ran)
		}
		return nil
	})
}

func runScenario(ctx context.Context, runner *tester.Runner, cfg Config, sc tester.Scenario) error {
	outcome, err := runner.Run(ctx, sc)
	if err != nil {
		return err
	}
	if err := tester.CheckSnapshot(cfg.Snapshots, sc.Name, tester.RenderOutcome(outcome.Final)); err != nil {
		return err
	}
	if cfg.Determinism {
		if err := runner.VerifyDeterminism(ctx, sc); err != nil {
			return err
		}
	}
	return nil
}
