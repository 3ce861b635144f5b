package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/vibesphere/internal/app"
	"github.com/abelbrown/vibesphere/internal/config"
	"github.com/abelbrown/vibesphere/internal/coord"
	"github.com/abelbrown/vibesphere/internal/feed"
	"github.com/abelbrown/vibesphere/internal/logging"
	"github.com/abelbrown/vibesphere/internal/otel"
	"github.com/abelbrown/vibesphere/internal/ui"
)

func main() {
	configPath := flag.String("config", config.ConfigPath(), "config file")
	keysPath := flag.String("keys", "", "shell file of VIBESPHERE_* exports to apply")
	debug := flag.Bool("debug", false, "open the debug overlay on start")
	trace := flag.Bool("trace", false, "record every key press and live merge in the event log")
	flag.Parse()

	if *trace {
		otel.SetTraceEnabled(true)
	}

	if err := logging.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
	}
	defer logging.Close()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *keysPath != "" {
		if err := cfg.LoadKeysFromFile(*keysPath); err != nil {
			log.Fatalf("Failed to load keys: %v", err)
		}
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := app.Open(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatalf("Failed to open services: %v", err)
	}
	defer svc.Close()
	svc.Events.Info(otel.KindStartup, "main", "db="+cfg.DBPath())

	if err := svc.SignIn(ctx); err != nil {
		logging.Warn("sign in failed, browsing signed out", "err", err)
	}
	ui.SetTheme(svc.Theme())

	// The controller reports changes to the coordinator, which needs the
	// controller to take snapshots. Nothing fires before Start.
	var coordinator *coord.Coordinator
	player := ui.NewPlayer(0)
	controller := svc.NewFeed(player, func() {
		if coordinator != nil {
			coordinator.FeedChanged()
		}
	})
	coordinator = coord.NewCoordinator(controller, svc.Identity, svc.Notes)

	appCfg := ui.AppConfig{
		Ctx:    ctx,
		Feed:   controller,
		Player: player,
		LoadWaves: func() tea.Cmd {
			return func() tea.Msg {
				waves, fallback, err := feed.LoadWaves(ctx, svc.Store, time.Now())
				return ui.WavesLoaded{Waves: waves, Fallback: fallback, Err: err}
			}
		},
		Follow: func(uid string) tea.Cmd {
			return func() tea.Msg {
				return ui.ActionDone{Action: "follow", Err: svc.Identity.Follow(ctx, uid)}
			}
		},
		MarkAllRead: func() tea.Cmd {
			return func() tea.Msg {
				u := svc.Identity.Current()
				if u == nil {
					return ui.ActionDone{Action: "mark read"}
				}
				return ui.ActionDone{Action: "mark read", Err: svc.Notes.MarkAllRead(ctx, u.UID)}
			}
		},
		Events:    svc.Events,
		Ring:      svc.Ring,
		ShowDebug: *debug || cfg.UI.ShowDebug,
	}

	// Create program
	program := tea.NewProgram(ui.NewApp(appCfg), tea.WithAltScreen())

	// Start relaying feed, viewer and inbox changes into the program
	coordinator.Start(ctx, program)

	// Run UI (blocks until quit)
	if _, err := program.Run(); err != nil {
		log.Printf("Error running program: %v", err)
	}

	// Graceful shutdown
	svc.Events.Info(otel.KindShutdown, "main", "")
	controller.Unmount()
	cancel()
	coordinator.Wait()
}
