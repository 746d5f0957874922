package backend

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("backend", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "127.0.0.1:7703" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.AuthorityAddr != "127.0.0.1:7701" || cfg.LogicAddr != "127.0.0.1:7702" {
		t.Fatalf("unexpected upstream defaults: %q, %q", cfg.AuthorityAddr, cfg.LogicAddr)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("backend", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-addr", "0.0.0.0:7703", "-logic", "10.0.0.5:7702"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "0.0.0.0:7703" {
		t.Fatalf("expected addr override, got %q", cfg.Addr)
	}
	if cfg.LogicAddr != "10.0.0.5:7702" {
		t.Fatalf("expected logic override, got %q", cfg.LogicAddr)
	}
}
