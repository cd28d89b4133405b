// Package main starts the toolgate MCP server on stdio or HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	toolgatecmd "github.com/louisbranch/toolgate/internal/cmd/toolgate"
	"github.com/louisbranch/toolgate/internal/platform/config"
)

func main() {
	cfg, err := toolgatecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[TOOLGATE] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := toolgatecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve toolgate: %v", err)
	}
}
