package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	logiccmd "github.com/onekgame/onek/internal/cmd/logic"
)

func main() {
	cfg, err := logiccmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[LOGIC] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := logiccmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
