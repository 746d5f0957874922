package tester

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("tester", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.AuthorityAddr != "127.0.0.1:7701" || cfg.LogicAddr != "127.0.0.1:7702" {
		t.Fatalf("unexpected upstream defaults: %q, %q", cfg.AuthorityAddr, cfg.LogicAddr)
	}
	if !cfg.Determinism {
		t.Fatal("expected determinism checks on by default")
	}
	if cfg.Scenario != "" {
		t.Fatalf("expected full suite by default, got %q", cfg.Scenario)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("tester", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-scenario", "walk_east", "-determinism=false"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Scenario != "walk_east" {
		t.Fatalf("expected scenario override, got %q", cfg.Scenario)
	}
	if cfg.Determinism {
		t.Fatal("expected determinism disabled")
	}
}
