// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

// Package overlay rasterizes the text layer onto a background frame using
// the embedded Go fonts. Coordinates address the top-left corner of each
// text run, matching the vendor tool's layout config.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/helpers/syncutil"
)

// Item is one text run to draw.
type Item struct {
	Text  string
	Color color.RGBA
	X     int
	Y     int
	Size  int
	Bold  bool
}

type faceKey struct {
	size int
	bold bool
}

// Renderer draws text items with a cached set of font faces. Safe for
// concurrent use.
type Renderer struct {
	regular *sfnt.Font
	bold    *sfnt.Font

	mu    syncutil.Mutex
	faces map[faceKey]font.Face
}

func NewRenderer() (*Renderer, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bold font: %w", err)
	}

	return &Renderer{
		regular: regular,
		bold:    bold,
		faces:   make(map[faceKey]font.Face),
	}, nil
}

func (r *Renderer) face(size int, bold bool) (font.Face, error) {
	if size <= 0 {
		size = 12
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := faceKey{size: size, bold: bold}
	if face, ok := r.faces[key]; ok {
		return face, nil
	}

	src := r.regular
	if bold {
		src = r.bold
	}
	face, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build %dpt face: %w", size, err)
	}

	r.faces[key] = face
	return face, nil
}

// Draw renders the items onto dst in order. Items with empty text are
// skipped; a bad item aborts the pass.
func (r *Renderer) Draw(dst *image.RGBA, items []Item) error {
	for _, item := range items {
		if item.Text == "" {
			continue
		}

		face, err := r.face(item.Size, item.Bold)
		if err != nil {
			return err
		}

		metrics := face.Metrics()
		drawer := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(item.Color),
			Face: face,
			Dot: fixed.Point26_6{
				X: fixed.I(item.X),
				Y: fixed.I(item.Y) + metrics.Ascent,
			},
		}
		drawer.DrawString(item.Text)
	}

	return nil
}

// Width measures the horizontal advance of text, for callers that center a
// run on the panel.
func (r *Renderer) Width(text string, size int, bold bool) (int, error) {
	face, err := r.face(size, bold)
	if err != nil {
		return 0, err
	}
	return font.MeasureString(face, text).Ceil(), nil
}

// ParseHexColor parses a "#RRGGBB" layout color.
func ParseHexColor(s string) (color.RGBA, error) {
	var c color.RGBA
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid color %q, want #RRGGBB", s)
	}
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid color %q: %w", s, err)
	}
	c.A = 255
	return c, nil
}
