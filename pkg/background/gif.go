// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package background

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
)

// Animation is a decoded GIF played back against the wall clock. Frames are
// coalesced and pre-scaled at load time so playback is a simple index
// lookup per rendered frame.
type Animation struct {
	clock  clockwork.Clock
	path   string
	mode   string
	frames []*image.RGBA
	delays []time.Duration
	total  time.Duration
	start  time.Time
}

// LoadAnimation decodes a GIF and prepares its frames for playback. mode is
// "loop" or "bounce"; fps is the fallback rate for GIFs with no frame
// timing.
func LoadAnimation(path, mode string, fps int, clock clockwork.Clock) (*Animation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open animation: %w", err)
	}
	defer func() { _ = f.Close() }()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode animation: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("animation has no frames: %s", path)
	}

	if fps <= 0 {
		fps = 24
	}
	fallback := time.Second / time.Duration(fps)

	anim := &Animation{
		clock:  clock,
		path:   path,
		mode:   mode,
		frames: make([]*image.RGBA, 0, len(g.Image)),
		delays: make([]time.Duration, 0, len(g.Image)),
		start:  clock.Now(),
	}

	canvas := image.NewRGBA(image.Rect(0, 0, g.Config.Width, g.Config.Height))
	for i, frame := range g.Image {
		var restore *image.RGBA
		if i < len(g.Disposal) && g.Disposal[i] == gif.DisposalPrevious {
			restore = image.NewRGBA(canvas.Bounds())
			draw.Draw(restore, canvas.Bounds(), canvas, canvas.Bounds().Min, draw.Src)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		anim.frames = append(anim.frames, scaleToFrame(canvas))

		delay := fallback
		if i < len(g.Delay) && g.Delay[i] > 0 {
			delay = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		anim.delays = append(anim.delays, delay)
		anim.total += delay

		if i < len(g.Disposal) {
			switch g.Disposal[i] {
			case gif.DisposalBackground:
				draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
			case gif.DisposalPrevious:
				canvas = restore
			}
		}
	}

	return anim, nil
}

func (a *Animation) Path() string { return a.path }

// Frame returns the frame for the current wall-clock position. Playback is
// time-based, not tick-based, so a slow render loop skips frames instead of
// slowing the animation down.
func (a *Animation) Frame() *image.RGBA {
	if len(a.frames) == 1 || a.total <= 0 {
		return a.frames[0]
	}

	pos := a.clock.Since(a.start)
	if a.mode == "bounce" {
		cycle := 2 * a.total
		pos %= cycle
		if pos >= a.total {
			pos = cycle - pos - 1
		}
	} else {
		pos %= a.total
	}

	for i, delay := range a.delays {
		if pos < delay {
			return a.frames[i]
		}
		pos -= delay
	}
	return a.frames[len(a.frames)-1]
}
