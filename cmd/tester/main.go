package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	testercmd "github.com/onekgame/onek/internal/cmd/tester"
)

func main() {
	cfg, err := testercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[TESTER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := testercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("scenarios failed: %v", err)
	}
}
