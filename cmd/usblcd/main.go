// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

// usblcd drives a Thermalright 320x240 USB LCD panel: it wakes the device
// over its SCSI mass-storage transport, then renders system telemetry over
// a configurable background until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/config"
	"github.com/the-black-eagle/Thermalright-usblcd/pkg/helpers"
	"github.com/the-black-eagle/Thermalright-usblcd/pkg/service"
	"github.com/the-black-eagle/Thermalright-usblcd/pkg/sysinfo"
	"github.com/the-black-eagle/Thermalright-usblcd/pkg/usblcd"
)

const appName = "usblcd"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	debugMode := flag.Bool(
		"debug",
		false,
		"enable debug and protocol trace logging",
	)
	renderOnce := flag.Bool(
		"once",
		false,
		"push a single frame and exit",
	)
	imagePath := flag.String(
		"image",
		"",
		"background image path (overrides config)",
	)
	animationPath := flag.String(
		"animation",
		"",
		"background animation path (overrides config)",
	)
	customText := flag.String(
		"custom",
		"",
		"custom overlay text (overrides config)",
	)
	flag.Parse()

	logDir := filepath.Join(xdg.StateHome, appName)
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
	if err := helpers.InitLogging(logDir, []io.Writer{consoleWriter}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	configDir := filepath.Join(xdg.ConfigHome, appName)
	cfg, err := config.NewConfig(configDir, config.BaseDefaults)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *debugMode {
		cfg.SetDebugLogging(true)
	}
	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *imagePath != "" {
		cfg.SetBackgroundImage(*imagePath)
	}
	if *animationPath != "" {
		cfg.SetBackgroundAnimation(*animationPath)
	}
	if *customText != "" {
		cfg.SetCustomText(*customText, true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	devCfg := cfg.Device()
	opts := usblcd.DefaultOptions()
	opts.VendorID = devCfg.VID
	opts.ProductID = devCfg.PID
	opts.HandshakeDeadline = cfg.HandshakeDeadline()
	opts.HandshakeBackoff = cfg.HandshakeBackoff()
	opts.Debug = devCfg.Debug || cfg.DebugLogging()

	dev, err := usblcd.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	defer func() {
		if closeErr := dev.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("device close failed")
		}
	}()

	if err := dev.Handshake(ctx); err != nil {
		return fmt.Errorf("device handshake failed: %w", err)
	}

	clock := clockwork.NewRealClock()

	gpu := sysinfo.DetectGPU("/")
	log.Info().
		Str("gpu", gpu.Name()).
		Bool("available", gpu.Available()).
		Msg("gpu telemetry capability")

	fast, slow := cfg.PollIntervals()
	poller := sysinfo.NewPoller(gpu, clock, fast, slow)
	poller.Start(ctx)
	defer poller.Stop()

	svc, err := service.New(cfg, dev, poller, clock)
	if err != nil {
		return err
	}

	if *renderOnce {
		return svc.RenderOnce(ctx)
	}

	log.Info().Str("config", cfg.Path()).Msg("render service started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info().Msg("shutting down")
	return nil
}
