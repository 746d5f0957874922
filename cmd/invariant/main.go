package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	invariantcmd "github.com/onekgame/onek/internal/cmd/invariant"
)

func main() {
	cfg, err := invariantcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[INVARIANT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := invariantcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("checker stopped: %v", err)
	}
}
