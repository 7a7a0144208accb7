// Relay is the signaling relay entry point.
//
// The relay registers peers by name over WebSocket and forwards call
// signaling between them. It routes envelopes only; no media ever passes
// through it.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"

	"github.com/peercall/peercall/internal/config"
	"github.com/peercall/peercall/internal/relay"
	"github.com/peercall/peercall/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_ = godotenv.Load(".env")

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	cfg := config.MustLoad(*configPath)
	if *addr != "" {
		cfg.Relay.Address = *addr
	}

	pterm.Info.Printfln("peercall relay v%s", version)

	srv := relay.NewServer()
	port, err := srv.Start(cfg.Relay.Address)
	if err != nil {
		util.LogError("failed to start relay: %v", err)
		os.Exit(1)
	}
	defer srv.Close()

	util.StartStatsReporter(ctx)
	util.LogSuccess("signaling relay listening on port %d", port)

	<-ctx.Done()
	util.LogInfo("relay shutting down")
}
