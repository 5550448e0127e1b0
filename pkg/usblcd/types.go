// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

// Package usblcd drives the Thermalright 320x240 USB LCD panel over its
// repurposed SCSI mass-storage transport: device open/claim lifecycle, the
// two-stage wake-up handshake, the readiness probe with transport recovery,
// and the three-band RGB565 image upload.
package usblcd

import (
	"time"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/scsi"
)

// Fixed identity of the panel. This driver targets exactly one device
// family; there is no discovery beyond this match.
const (
	DefaultVendorID  uint16 = 0x0402
	DefaultProductID uint16 = 0x3922
)

// Panel geometry.
const (
	Width  = 320
	Height = 240
)

// Fixed endpoint and interface numbers for this device family.
const (
	interfaceNumber  = 0
	bulkOutEndpoint  = 0x02
	bulkInEndpoint   = 0x81
	controlTimeoutMS = 1000
)

// bandWidths partitions the 320 columns into the three physical panel
// segments. Widths sum to Width.
var bandWidths = [3]int{120, 120, 80}

// splashSize is the byte count of the stored splash payload the device hands
// back during stage 2 of the handshake.
const splashSize = 57627

// handshakeTag is the fixed wire tag the Windows driver stamps on every
// stage-2 command. The INQUIRY and the vendor 0xF5 commands all carry the
// same value in captured traces.
const handshakeTag uint32 = 0x628bf560

// Options bundles the tunables of one device. The handshake deadline and
// backoff are empirically matched to observed device timing; they are
// exposed for tuning but the defaults mirror the vendor driver.
type Options struct {
	VendorID  uint16
	ProductID uint16

	// HandshakeDeadline bounds the stage-1 preconditioning loop.
	HandshakeDeadline time.Duration
	// HandshakeBackoff is slept between stage-1 attempts.
	HandshakeBackoff time.Duration
	// SettleDelay is waited before the stage-2 vendor sequence.
	SettleDelay time.Duration

	Timeouts scsi.Timeouts

	// Debug enables per-exchange protocol tracing.
	Debug bool
}

// DefaultOptions matches the vendor driver's timing.
func DefaultOptions() Options {
	return Options{
		VendorID:          DefaultVendorID,
		ProductID:         DefaultProductID,
		HandshakeDeadline: 10 * time.Second,
		HandshakeBackoff:  5 * time.Millisecond,
		SettleDelay:       50 * time.Millisecond,
		Timeouts:          scsi.DefaultTimeouts(),
	}
}
