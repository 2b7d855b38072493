package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"wanotify/internal/config"
	"wanotify/internal/directory"
	"wanotify/internal/ledger"
	"wanotify/internal/notify"
	"wanotify/internal/observability"
	"wanotify/internal/server"
	"wanotify/internal/session"
	"wanotify/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "wanotify: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "wanotify.toml", "path to the TOML configuration file")
	writeTemplate := flag.Bool("init-config", false, "write a starter configuration file and exit")
	flag.Parse()

	if *writeTemplate {
		if err := config.WriteTemplate(*configPath, false); err != nil {
			return err
		}
		fmt.Println("wrote", *configPath)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	observability.InitLogger(cfg.App.Name)
	observability.RegisterMetrics()

	creds, err := session.NewFileCredentialStore(cfg.WhatsApp.AuthPath, cfg.WhatsApp.SessionID, cfg.WhatsApp.Passphrase)
	if err != nil {
		return fmt.Errorf("credential store: %w", err)
	}
	sessionCfg := session.DefaultConfig()
	sessionCfg.ReconnectDelay = cfg.WhatsApp.ReconnectDelay.Duration
	sessionCfg.ReinitDelay = cfg.WhatsApp.ReinitDelay.Duration
	sessionCfg.Backoff = session.BackoffConfig{
		InitialDelay: cfg.WhatsApp.ReconnectDelay.Duration,
		Multiplier:   cfg.WhatsApp.BackoffMult,
		MaxDelay:     cfg.WhatsApp.BackoffMax.Duration,
	}
	manager := session.NewManager(session.NewLoopback(), creds, sessionCfg)

	led, err := ledger.OpenFileLedger(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	dir, err := directory.OpenFileDirectory(cfg.Directory.Path)
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	defer dir.Close()

	dispatcher := notify.NewDispatcher(manager, led)
	processor := webhook.NewProcessor(dispatcher, dir)

	srv := server.New(cfg, server.Deps{
		Session:   manager,
		Notifier:  dispatcher,
		Processor: processor,
		Ledger:    led,
		Directory: dir,
	})

	manager.Initialize()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting_down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http_shutdown_failed")
	}
	// Close keeps credential material so the next start reconnects
	// without re-pairing.
	if err := manager.Close(); err != nil {
		log.Warn().Err(err).Msg("session_close_failed")
	}
	return nil
}
