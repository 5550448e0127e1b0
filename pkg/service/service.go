// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

// Package service runs the render loop: compose background plus overlay,
// flatten to the panel's pixel format, push it over USB, and recover the
// device when an upload fails.
package service

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/background"
	"github.com/the-black-eagle/Thermalright-usblcd/pkg/config"
	"github.com/the-black-eagle/Thermalright-usblcd/pkg/overlay"
	"github.com/the-black-eagle/Thermalright-usblcd/pkg/sysinfo"
	"github.com/the-black-eagle/Thermalright-usblcd/pkg/usblcd"
)

// DisplayDevice is the slice of the panel driver the render loop needs.
type DisplayDevice interface {
	Handshake(ctx context.Context) error
	Ready(ctx context.Context) bool
	UpdateImage(ctx context.Context, pixels []byte) error
}

// Telemetry provides the latest metric values for the overlay modules.
type Telemetry interface {
	Snapshot() map[string]float64
}

// Service drives one panel from one config.
type Service struct {
	cfg       *config.Instance
	dev       DisplayDevice
	telemetry Telemetry
	bg        *background.Manager
	renderer  *overlay.Renderer
	clock     clockwork.Clock
}

func New(
	cfg *config.Instance,
	dev DisplayDevice,
	telemetry Telemetry,
	clock clockwork.Clock,
) (*Service, error) {
	renderer, err := overlay.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to create overlay renderer: %w", err)
	}

	return &Service{
		cfg:       cfg,
		dev:       dev,
		telemetry: telemetry,
		bg:        background.NewManager(clock),
		renderer:  renderer,
		clock:     clock,
	}, nil
}

// Run renders frames at the configured cadence until ctx is canceled. A
// failed upload triggers the readiness probe and, if the device stays
// unready, a fresh handshake before the next frame.
func (s *Service) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.RefreshInterval())
	defer ticker.Stop()

	for {
		if err := s.RenderOnce(ctx); err != nil {
			log.Warn().Err(err).Msg("frame update failed")
			s.recover(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
	}
}

// RenderOnce composes and uploads a single frame.
func (s *Service) RenderOnce(ctx context.Context) error {
	frame, err := s.composeFrame(s.clock.Now())
	if err != nil {
		return err
	}

	pixels, err := usblcd.Raster(frame)
	if err != nil {
		return err
	}

	return s.dev.UpdateImage(ctx, pixels)
}

func (s *Service) recover(ctx context.Context) {
	if s.dev.Ready(ctx) {
		return
	}

	log.Info().Msg("device not ready, attempting handshake")
	if err := s.dev.Handshake(ctx); err != nil {
		log.Error().Err(err).Msg("device recovery failed")
	}
}

// composeFrame builds the full 320x240 frame: background, clock, date,
// custom line, labels and the metric modules.
func (s *Service) composeFrame(now time.Time) (*image.RGBA, error) {
	bgCfg := s.cfg.Background()
	base := s.bg.Frame(bgCfg.ImagePath, bgCfg.AnimatedPath, bgCfg.Mode, bgCfg.FPS)

	// The background manager caches frames; draw onto a copy.
	frame := image.NewRGBA(base.Bounds())
	xdraw.Draw(frame, frame.Bounds(), base, base.Bounds().Min, xdraw.Src)

	items := s.overlayItems(now)
	if err := s.renderer.Draw(frame, items); err != nil {
		return nil, err
	}
	return frame, nil
}

func (s *Service) overlayItems(now time.Time) []overlay.Item {
	items := make([]overlay.Item, 0, 11)

	if t := s.cfg.TimeItem(); t.Enabled {
		items = append(items, textItem(t, formatClock(now, t.Format)))
	}
	if d := s.cfg.DateItem(); d.Enabled {
		items = append(items, textItem(d, formatDate(now, d.Format)))
	}
	if c := s.cfg.CustomItem(); c.Enabled {
		items = append(items, textItem(c, c.Text))
	}

	cpuLabel, gpuLabel := s.cfg.Labels()
	if cpuLabel.Enabled {
		items = append(items, textItem(cpuLabel, cpuLabel.Text))
	}
	if gpuLabel.Enabled {
		items = append(items, textItem(gpuLabel, gpuLabel.Text))
	}

	snapshot := s.telemetry.Snapshot()
	for _, mod := range s.cfg.Modules() {
		if !mod.Enabled || mod.Metric == "" {
			continue
		}
		items = append(items, overlay.Item{
			Text:  sysinfo.Format(mod.Metric, snapshot[mod.Metric]),
			Color: itemColor(mod.Color),
			X:     mod.X,
			Y:     mod.Y,
			Size:  mod.Font.Size,
			Bold:  mod.Font.Bold,
		})
	}

	return items
}

func textItem(cfg config.TextItem, text string) overlay.Item {
	return overlay.Item{
		Text:  text,
		Color: itemColor(cfg.Color),
		X:     cfg.X,
		Y:     cfg.Y,
		Size:  cfg.Font.Size,
		Bold:  cfg.Font.Bold,
	}
}

func itemColor(hex string) color.RGBA {
	c, err := overlay.ParseHexColor(hex)
	if err != nil {
		log.Warn().Str("color", hex).Msg("invalid layout color, using white")
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return c
}

func formatClock(now time.Time, format string) string {
	if format == "12h" {
		return now.Format("3:04 PM")
	}
	return now.Format("15:04")
}

// formatDate treats the configured format as a Go time layout, defaulting
// to day-month-year.
func formatDate(now time.Time, format string) string {
	if format == "" {
		format = "02-01-2006"
	}
	return now.Format(format)
}
