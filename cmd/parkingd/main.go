/*
main.go - parkingd entry point

PURPOSE:
  Initializes and runs the parking reservation engine daemon.

COMMANDS:
  serve     Run the HTTP command surface with the retention sweeper
  sweep     Run a single retention sweep and exit
  version   Print version info

STARTUP SEQUENCE (serve):
  1. Load YAML config (defaults apply when the file is missing)
  2. Resolve the building timezone and layout
  3. Open the SQLite store
  4. Wire the allocation engine and start the sweeper
  5. Serve HTTP with graceful shutdown on SIGINT/SIGTERM
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnfabrycky/felipe/api"
	"github.com/johnfabrycky/felipe/config"
	"github.com/johnfabrycky/felipe/parking"
	"github.com/johnfabrycky/felipe/store/sqlite"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "parkingd",
		Short: "Reservation engine for the building's parking spots",
	}
	root.PersistentFlags().String("config", "felipe.yaml", "path to config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP command surface and the retention sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, engine, store, err := wire(cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sweeper := parking.NewSweeper(store.Offers(), store.Claims(), engineClock(engine))
			sweeper.Interval = cfg.SweepInterval()
			sweeper.Start()
			defer sweeper.Stop()

			handler := api.NewHandler(engine, cfg.CacheTTL())
			router := api.NewRouter(handler, api.RouterOptions{
				AllowedOrigins:  cfg.Server.AllowedOrigins,
				RateLimitPerSec: cfg.Server.RateLimitPerSec,
				RateLimitBurst:  cfg.Server.RateLimitBurst,
			})

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			go func() {
				log.Printf("[Server] Listening on http://localhost:%d", cfg.Server.Port)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("[Server] Failed: %v", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Println("[Server] Shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("forced shutdown: %w", err)
			}
			log.Println("[Server] Stopped")
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired offers and claims once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			_, engine, store, err := wire(cfgPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sweeper := parking.NewSweeper(store.Offers(), store.Claims(), engineClock(engine))
			removed, err := sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			log.Printf("[Sweeper] Removed %d expired rows", removed)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("parkingd %s\n", version)
		},
	}
}

// wire builds the engine and its store from the config file.
func wire(cfgPath string) (*config.Config, *parking.Engine, *sqlite.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, nil, err
	}
	blackout, err := cfg.BlackoutCalendar()
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := sqlite.Open(cfg.Database.Path, loc)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	clock := parking.SystemClock{Loc: loc}
	engine := parking.NewEngine(cfg.Layout(), store.Offers(), store.Claims(), clock).
		WithBlackout(blackout).
		WithRecurrenceCap(cfg.Building.RecurrenceCap).
		WithNotifier(logNotifier{})
	return cfg, engine, store, nil
}

func engineClock(e *parking.Engine) parking.Clock {
	return clockFunc(e.Now)
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// logNotifier stands in for the chat transport's notification channel.
type logNotifier struct{}

func (logNotifier) Notify(user parking.UserID, message string) {
	log.Printf("[Notify] %s: %s", user, message)
}
