package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/leafo/midibridge/bridge"
	"github.com/leafo/midibridge/config"
)

// reconnectInterval paces attempts to create the port client while the
// bridge runs without one.
const reconnectInterval = time.Second

func main() {
	flags := config.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg := config.Default()
	if flags.ConfigFile != "" {
		var err error
		cfg, err = config.Load(flags.ConfigFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	flags.Apply(cfg)

	if err := config.Validate(cfg); err != nil {
		flag.Usage()
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Check if we're in save-only mode
	if flags.SaveConfig != "" {
		target := flags.SaveConfig
		if target == "-" {
			target = ""
		}
		if err := config.Save(cfg, target); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}
		if target != "" {
			fmt.Printf("Configuration saved to %s\n", target)
		}
		return
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if cfg.User != "" {
		if err := setUser(cfg.User); err != nil {
			log.Fatalf("Could not set user: %v", err)
		}
	}

	// A port peer going away must not kill us on a write.
	signal.Ignore(syscall.SIGPIPE)

	if err := run(cfg, logger); err != nil {
		log.Fatalf("MIDI bridge error: %v", err)
	}
}

// run bridges until a signal arrives or a device closes with kill-on-close.
func run(cfg *config.Config, logger *slog.Logger) error {
	b, err := bridge.New(cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	sink, err := openSink(cfg, b, logger, cancel)
	if err != nil {
		if cfg.DumpFile == "" {
			return fmt.Errorf("unable to create %s client and no dump file requested: %w", cfg.Sink, err)
		}
		logger.Warn("unable to create port client, dump mode only until it can be created",
			"sink", cfg.Sink, "err", err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink = reconnect(ctx, cfg, b, logger, cancel)
		}()
	}

	logger.Info("bridge running",
		"capture", cfg.CaptureDevice, "playback", cfg.PlaybackDevice, "replay", cfg.ReplayFile,
		"port", cfg.Port(), "sink", cfg.Sink)

	err = b.Run(ctx)
	cancel()
	wg.Wait()

	stats := b.Stats()
	logger.Info("bridge stopped",
		"frames", stats.Reader.Frames, "delivered", stats.Reader.Delivered,
		"skipped", stats.Reader.Skipped, "desync", stats.Reader.Desync,
		"written", stats.Outbound.Written)

	if sink != nil {
		b.Detach()
		sink.Close()
	}
	if errors.Is(err, bridge.ErrDeviceClosed) {
		logger.Info("device closed, exiting")
		return nil
	}
	return err
}

// openSink creates the port client selected by cfg and attaches it to b.
// shutdown is called when the client is closed from outside.
func openSink(cfg *config.Config, b *bridge.Bridge, logger *slog.Logger, shutdown func()) (io.Closer, error) {
	if cfg.Sink == config.SinkRtMidi {
		s, err := openRtMidi(cfg, b, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := openJack(cfg, b, logger, shutdown)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// reconnect retries openSink until it succeeds or ctx is done.
func reconnect(ctx context.Context, cfg *config.Config, b *bridge.Bridge, logger *slog.Logger, shutdown func()) io.Closer {
	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		sink, err := openSink(cfg, b, logger, shutdown)
		if err != nil {
			continue
		}
		logger.Info("port client created", "sink", cfg.Sink, "port", cfg.Port())
		return sink
	}
}
