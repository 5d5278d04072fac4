package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fgeck/gostation-homelab/internal/alias"
	"github.com/fgeck/gostation-homelab/internal/config"
	"github.com/fgeck/gostation-homelab/internal/httpapi"
	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/fgeck/gostation-homelab/internal/services/mqtt"
	"github.com/fgeck/gostation-homelab/internal/services/poller"
	"github.com/fgeck/gostation-homelab/internal/services/registry"
	"github.com/fgeck/gostation-homelab/internal/services/ssh"
	"github.com/fgeck/gostation-homelab/internal/services/stationdump"
	"github.com/fgeck/gostation-homelab/internal/services/telegram"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errConfigRequired = errors.New("config file is required")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the presence monitor",
	Long: `Start polling the station dump and keep running until interrupted:
1. Poll the station dump every poll_interval
2. Reconcile clients against the previous poll
3. Record clients in the entity registry
4. Publish Home Assistant presence sensors (if mqtt is configured)
5. Serve the HTTP API and event stream (if http.listen is set)
6. Send Telegram notifications (if configured)`,
	RunE: runMonitor,
}

// loadConfig reads and validates the config file named by --config.
func loadConfig(cmd *cobra.Command) (*models.MonitorConfig, error) {
	if configFile == "" {
		log.Error().Msg("config file is required")
		_ = cmd.Help()
		return nil, errConfigRequired
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}
	return cfg, nil
}

// newFetcher runs iw locally, or over SSH when a remote is configured.
func newFetcher(logger zerolog.Logger, cfg models.StationConfig) poller.Fetcher {
	if cfg.Remote != nil {
		return ssh.New(logger, *cfg.Remote)
	}
	return stationdump.New(logger)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

//nolint:funlen // wiring every optional collaborator
func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	aliases, err := alias.New(cfg.Clients)
	if err != nil {
		log.Error().Err(err).Msg("invalid client aliases")
		return err
	}

	remote := "local"
	if cfg.Station.Remote != nil {
		remote = cfg.Station.Remote.Host
	}
	log.Info().
		Str("config", configFile).
		Str("interface", cfg.Station.Interface).
		Str("host", remote).
		Int("aliases", aliases.Len()).
		Msg("configuration loaded")

	ctx, cancel := signalContext()
	defer cancel()

	reg, err := registry.New(ctx, log.Logger, cfg.Registry, aliases)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Registry.Path).Msg("failed to open entity registry")
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close entity registry")
		}
	}()

	p := poller.New(log.Logger, newFetcher(log.Logger, cfg.Station), aliases, cfg.Station, reg)
	g, gctx := errgroup.WithContext(ctx)

	if cfg.MQTT != nil {
		publisher := mqtt.New(log.Logger, *cfg.MQTT, aliases, Version)
		if entities, err := reg.List(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to seed mqtt publisher from entity registry")
		} else {
			publisher.Seed(entities)
		}
		p.Subscribe(publisher)
		g.Go(func() error { return publisher.Start(gctx) })
	}

	if cfg.Telegram != nil {
		p.Subscribe(telegram.NewNotifier(log.Logger, telegram.New(log.Logger), *cfg.Telegram, cfg.Station.Interface))
	}

	if cfg.HTTP.Listen != "" {
		api := httpapi.New(log.Logger, p, reg, aliases)
		defer api.Close()
		p.Subscribe(api)

		server := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error { return httpapi.RunServer(gctx, server, log.Logger) })
	}

	g.Go(func() error { return p.Run(gctx) })

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("monitor stopped with error")
		return err
	}

	status := p.Status()
	log.Info().
		Uint64("cycles", status.Cycles).
		Uint64("failures", status.Failures).
		Uint64("dropped_ticks", status.DroppedTicks).
		Msg("monitor stopped")
	return nil
}
