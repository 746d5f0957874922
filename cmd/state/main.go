package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	statecmd "github.com/onekgame/onek/internal/cmd/state"
)

func main() {
	cfg, err := statecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[STATE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := statecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
