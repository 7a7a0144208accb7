// Peercall is the CLI entry point.
//
// Connects to a signaling relay under a chosen name and lets the user
// place, accept and control audio/video calls with another registered
// peer. Media negotiation runs over WebRTC; the relay only carries
// signaling.
//
// It can be launched non-interactively via flags (-name, -relay) or fall
// back to interactive prompts.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"

	"github.com/peercall/peercall/internal/call"
	"github.com/peercall/peercall/internal/config"
	"github.com/peercall/peercall/internal/media"
	"github.com/peercall/peercall/internal/signaling"
	"github.com/peercall/peercall/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	_ = godotenv.Load(".env")

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	name := flag.String("name", "", "identity to register with the relay")
	relayURL := flag.String("relay", "", "relay WebSocket URL (overrides config)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	cfg := config.MustLoad(*configPath)
	if *relayURL != "" {
		cfg.Client.RelayURL = *relayURL
	}
	if *name != "" {
		cfg.Client.Identity = *name
	}

	pterm.Info.Printfln("peercall v%s", version)
	pterm.Println()

	if cfg.Client.Identity == "" {
		cfg.Client.Identity = askIdentity()
	}

	wsURL, err := normalizeWSURL(cfg.Client.RelayURL)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	ch, err := signaling.Dial(ctx, wsURL, cfg.Client.Identity)
	if err != nil {
		util.LogError("failed to reach relay: %v", err)
		os.Exit(1)
	}
	defer ch.Close()
	util.LogSuccess("registered as %q at %s", cfg.Client.Identity, wsURL)

	coord := call.New(call.Config{
		Identity: cfg.Client.Identity,
		Channel:  ch,
		NewEngine: func() (media.Engine, error) {
			return media.NewPionEngine(cfg.WebRTC.STUNServers)
		},
		Notifier:    &consoleNotifier{},
		RingTimeout: cfg.Call.RingTimeout,
		SendEndCall: cfg.Call.SendEndCall,
	})
	go coord.Run(ctx)

	runPrompt(ctx, coord)
	util.LogInfo("goodbye")
}

// runPrompt reads user commands until quit or interrupt.
func runPrompt(ctx context.Context, coord *call.Coordinator) {
	printHelp()
	for ctx.Err() == nil {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("command").
			Show()

		fields := strings.Fields(strings.TrimSpace(raw))
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "call", "video":
			if len(fields) < 2 {
				util.LogWarning("usage: call <peer>")
				continue
			}
			err = coord.PlaceCall(fields[1], media.ModeAudioVideo)
		case "audio":
			if len(fields) < 2 {
				util.LogWarning("usage: audio <peer>")
				continue
			}
			err = coord.PlaceCall(fields[1], media.ModeAudioOnly)
		case "accept":
			err = coord.Accept()
		case "reject":
			err = coord.Reject()
		case "hangup":
			err = coord.HangUp()
		case "mic":
			var muted bool
			if muted, err = coord.ToggleMic(); err == nil {
				util.LogInfo("microphone muted: %t", muted)
			}
		case "cam":
			var paused bool
			if paused, err = coord.ToggleCamera(); err == nil {
				util.LogInfo("camera paused: %t", paused)
			}
		case "speaker":
			var on bool
			if on, err = coord.ToggleSpeaker(); err == nil {
				util.LogInfo("speakerphone: %t", on)
			}
		case "state":
			util.LogInfo("call state: %s", coord.State())
		case "help":
			printHelp()
		case "quit", "exit":
			_ = coord.HangUp()
			return
		default:
			util.LogWarning("unknown command %q (try 'help')", fields[0])
		}

		if err != nil {
			util.LogWarning("%v", err)
		}
	}
}

func printHelp() {
	pterm.Println("  call <peer>    place a video call")
	pterm.Println("  audio <peer>   place an audio-only call")
	pterm.Println("  accept         answer the ringing call")
	pterm.Println("  reject         decline the ringing call")
	pterm.Println("  hangup         end the current call")
	pterm.Println("  mic | cam      toggle microphone / camera")
	pterm.Println("  speaker        toggle speakerphone")
	pterm.Println("  state | quit")
	pterm.Println()
}

// consoleNotifier renders coordinator notifications. Callbacks only print;
// they never call back into the coordinator.
type consoleNotifier struct{}

func (consoleNotifier) IncomingCall(from string, mode media.Mode) {
	util.LogSuccess("%s is calling you (%s): 'accept' or 'reject'", from, mode)
}

func (consoleNotifier) PeerUnreachable(target string) {
	util.LogWarning("%s is not reachable", target)
}

func (consoleNotifier) NegotiationFailed(stage media.Stage, err error) {
	util.LogError("negotiation failed at %s: %v", stage, err)
}

func (consoleNotifier) RemoteMediaAvailable(mode media.Mode) {
	util.LogSuccess("remote media flowing (%s)", mode)
}

func (consoleNotifier) CallConnected(peer string) {
	util.LogSuccess("connected to %s", peer)
}

func (consoleNotifier) CallEnded(reason call.EndReason) {
	util.LogInfo("call ended: %s", reason)
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates and normalizes a raw WebSocket URL string.
func normalizeWSURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %s", raw)
	}
	scheme := "ws"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host), nil
}

// askIdentity prompts for a non-empty peer name.
func askIdentity() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Your name on the relay").
			Show()

		name := strings.TrimSpace(raw)
		if name != "" {
			pterm.Println()
			return name
		}
		util.LogWarning("name must not be empty")
	}
}
