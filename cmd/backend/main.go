package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	backendcmd "github.com/onekgame/onek/internal/cmd/backend"
)

func main() {
	cfg, err := backendcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[BACKEND] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := backendcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
