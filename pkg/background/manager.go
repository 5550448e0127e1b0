// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

// Package background produces the 320x240 frame behind the overlay: a
// static image, an animated GIF, a composite of both when the image carries
// alpha, or a generated gradient when nothing is configured.
package background

import (
	"image"
	"image/color"
	"os"
	"time"

	// Registered decoders for static backgrounds.
	_ "image/jpeg"
	_ "image/png"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/helpers/syncutil"
)

const (
	frameWidth  = 320
	frameHeight = 240
)

var frameBounds = image.Rect(0, 0, frameWidth, frameHeight)

// Manager caches the decoded static background and the running animation so
// the render loop only pays for decoding when a path or file changes.
type Manager struct {
	clock clockwork.Clock

	mu          syncutil.Mutex
	static      *image.RGBA
	staticPath  string
	staticMtime time.Time
	staticAlpha bool
	anim        *Animation
	gradient    *image.RGBA
}

func NewManager(clock clockwork.Clock) *Manager {
	return &Manager{clock: clock}
}

// Frame returns the current background. Precedence follows the vendor tool:
// an alpha-carrying image composites over the animation, an opaque image
// wins outright, then animation only, image only, and finally the gradient.
func (m *Manager) Frame(imagePath, animPath, mode string, fps int) *image.RGBA {
	m.mu.Lock()
	defer m.mu.Unlock()

	img := m.loadStatic(imagePath)
	frame := m.animationFrame(animPath, mode, fps)

	switch {
	case img != nil && frame != nil:
		if m.staticAlpha {
			return composite(frame, img)
		}
		return img
	case frame != nil:
		return frame
	case img != nil:
		return img
	default:
		return m.defaultGradient()
	}
}

// loadStatic returns the cached static background, reloading when the path
// or the file's mtime changed. Unreadable files degrade to no background.
func (m *Manager) loadStatic(path string) *image.RGBA {
	if path == "" {
		return nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil
	}

	if m.static != nil && m.staticPath == path && m.staticMtime.Equal(fi.ModTime()) {
		return m.static
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to open background image")
		return nil
	}
	defer func() { _ = f.Close() }()

	src, _, err := image.Decode(f)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to decode background image")
		return nil
	}

	m.static = scaleToFrame(src)
	m.staticPath = path
	m.staticMtime = fi.ModTime()
	m.staticAlpha = !isOpaque(src)
	log.Debug().Str("path", path).Bool("alpha", m.staticAlpha).Msg("background image loaded")

	return m.static
}

// animationFrame returns the current animation frame, (re)loading the
// animation when the configured path changes.
func (m *Manager) animationFrame(path, mode string, fps int) *image.RGBA {
	if path == "" {
		m.anim = nil
		return nil
	}

	if m.anim == nil || m.anim.Path() != path {
		anim, err := LoadAnimation(path, mode, fps, m.clock)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to load background animation")
			m.anim = nil
			return nil
		}
		m.anim = anim
	}

	return m.anim.Frame()
}

// defaultGradient generates the stock purple-tinted gradient, dithered per
// row to break up banding on the panel.
func (m *Manager) defaultGradient() *image.RGBA {
	if m.gradient != nil {
		return m.gradient
	}

	img := image.NewRGBA(frameBounds)
	for y := range frameHeight {
		ratio := float64(y) / frameHeight
		val := int(20 + ratio*40)

		noise := (y % 3) - 1
		val = max(0, min(255, val+noise))

		row := color.RGBA{R: uint8(val), G: uint8(val / 2), B: uint8(val), A: 255}
		for x := range frameWidth {
			img.SetRGBA(x, y, row)
		}
	}

	m.gradient = img
	return img
}

// composite draws fg (with alpha) over bg into a fresh frame.
func composite(bg, fg *image.RGBA) *image.RGBA {
	out := image.NewRGBA(frameBounds)
	xdraw.Draw(out, frameBounds, bg, image.Point{}, xdraw.Src)
	xdraw.Draw(out, frameBounds, fg, image.Point{}, xdraw.Over)
	return out
}

// scaleToFrame resamples src to the panel geometry.
func scaleToFrame(src image.Image) *image.RGBA {
	out := image.NewRGBA(frameBounds)
	if src.Bounds().Dx() == frameWidth && src.Bounds().Dy() == frameHeight {
		xdraw.Draw(out, frameBounds, src, src.Bounds().Min, xdraw.Src)
		return out
	}
	xdraw.CatmullRom.Scale(out, frameBounds, src, src.Bounds(), xdraw.Src, nil)
	return out
}

func isOpaque(img image.Image) bool {
	if op, ok := img.(interface{ Opaque() bool }); ok {
		return op.Opaque()
	}
	return true
}
