// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package usblcd

import (
	"context"
	"fmt"
	"image"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/scsi"
)

// rasterSize is the byte length of one packed RGB24 frame.
const rasterSize = Width * Height * 3

// PackRGB565 packs an 8-bit RGB triplet into the panel's 16-bit pixel
// format: 5 bits red, 6 bits green, 5 bits blue.
func PackRGB565(r, g, b byte) uint16 {
	return uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b)>>3
}

// bandPayloads slices a packed RGB24 raster into per-band pixel payloads.
// Within a band, columns run left to right and each column is emitted bottom
// row first: the panel scans bottom to top. Pixels are little-endian RGB565.
func bandPayloads(pixels []byte) ([3][]byte, error) {
	var bands [3][]byte
	if len(pixels) != rasterSize {
		return bands, fmt.Errorf("raster must be %d bytes of packed RGB, got %d", rasterSize, len(pixels))
	}

	start := 0
	for i, width := range bandWidths {
		payload := make([]byte, 0, width*Height*2)
		for col := range width {
			x := start + col
			for row := range Height {
				src := ((Height-1-row)*Width + x) * 3
				px := PackRGB565(pixels[src], pixels[src+1], pixels[src+2])
				payload = append(payload, byte(px), byte(px>>8))
			}
		}
		bands[i] = payload
		start += width
	}

	return bands, nil
}

// UpdateImage pushes one full frame to the panel. The raster must be a
// packed RGB24 buffer of exactly 320x240 pixels, row-major, top row first.
// Each of the three column bands goes out as one vendor write command; the
// first rejected band aborts the update.
func (d *Device) UpdateImage(ctx context.Context, pixels []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	bands, err := bandPayloads(pixels)
	if err != nil {
		return err
	}

	for i, payload := range bands {
		cdb := scsi.VendorImageCDB(byte(i), uint32(len(payload)))
		res := d.exec.Exchange(ctx, cdb, payload, 0, 0)
		if !res.OK {
			return fmt.Errorf("band %d upload rejected (status %d)", i, res.Status)
		}
	}

	return nil
}

// Raster flattens img into the packed RGB24 buffer UpdateImage expects.
// img must already have the panel's 320x240 geometry.
func Raster(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Dx() != Width || bounds.Dy() != Height {
		return nil, fmt.Errorf("image must be %dx%d, got %dx%d", Width, Height, bounds.Dx(), bounds.Dy())
	}

	out := make([]byte, 0, rasterSize)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := range Height {
			row := rgba.Pix[rgba.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			for x := range Width {
				out = append(out, row[x*4], row[x*4+1], row[x*4+2])
			}
		}
		return out, nil
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out = append(out, byte(r>>8), byte(g>>8), byte(b>>8))
		}
	}
	return out, nil
}
