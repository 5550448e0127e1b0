// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package usblcd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/scsi"
)

var (
	// ErrHandshakeTimeout is returned when stage 1 cannot settle the device
	// before the configured deadline.
	ErrHandshakeTimeout = errors.New("device did not settle before the handshake deadline")
	// ErrHandshakeFailed is returned when the straight-line stage-2 vendor
	// sequence is rejected. Stage 2 is never retried: a rejection there means
	// logical desync, not transient bus noise.
	ErrHandshakeFailed = errors.New("vendor handshake sequence failed")
)

// Handshake brings the panel from an unknown state to accepting image
// writes.
//
// Stage 1 preconditions the device: TEST UNIT READY and MODE SENSE(6) are
// retried with a short backoff until one reports Good status, resetting the
// transport whenever a Check Condition yields a malformed sense response.
// The loop is bounded by a wall-clock deadline and checks ctx between
// attempts.
//
// Stage 2 runs the captured vendor wake-up sequence once: INQUIRY, the APIX
// probe, a full splash read, and an echo of the splash bytes straight back.
// The first rejection aborts the whole handshake.
func (d *Device) Handshake(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.precondition(ctx); err != nil {
		return err
	}
	return d.vendorSequence(ctx)
}

func (d *Device) precondition(ctx context.Context) error {
	deadline := d.clock.Now().Add(d.opts.HandshakeDeadline)

	for d.clock.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("handshake aborted: %w", err)
		}

		tur := d.exec.Exchange(ctx, scsi.TestUnitReadyCDB(), nil, 0, 0)
		if tur.OK {
			log.Debug().Msg("unit ready, preconditioning complete")
			return nil
		}
		if tur.Status == scsi.StatusCheckCondition {
			d.drainSense(ctx)
		}

		mode := d.exec.Exchange(ctx, scsi.ModeSense6CDB(), nil, scsi.ModeSenseAllocLength, 0)
		if mode.OK {
			log.Debug().Msg("mode sense accepted, preconditioning complete")
			return nil
		}
		if mode.Status == scsi.StatusCheckCondition {
			d.drainSense(ctx)
		}

		d.clock.Sleep(d.opts.HandshakeBackoff)
	}

	return ErrHandshakeTimeout
}

// drainSense asks the device why it reported Check Condition. A decodable
// response is only logged; an empty or truncated one means the transport
// itself is wedged and gets reset.
func (d *Device) drainSense(ctx context.Context) {
	sense := d.exec.Exchange(ctx, scsi.RequestSenseCDB(), nil, scsi.SenseAllocLength, 0)
	if info, ok := scsi.DecodeSense(sense.Data); ok {
		log.Debug().Str("sense", info.String()).Msg("device reported check condition")
		return
	}
	log.Debug().Int("sense_len", len(sense.Data)).Msg("malformed sense response, resetting transport")
	d.reset(ctx)
}

func (d *Device) vendorSequence(ctx context.Context) error {
	d.clock.Sleep(d.opts.SettleDelay)

	inq := d.exec.Exchange(ctx, scsi.InquiryCDB(), nil, scsi.InquiryAllocLength, handshakeTag)
	if !inq.OK || len(inq.Data) == 0 {
		return fmt.Errorf("%w: inquiry rejected (status %d, %d bytes)",
			ErrHandshakeFailed, inq.Status, len(inq.Data))
	}

	probe := d.exec.Exchange(ctx, scsi.VendorProbeCDB(), nil, scsi.VendorProbeAllocLength, handshakeTag)
	if !probe.OK {
		return fmt.Errorf("%w: apix probe rejected (status %d)", ErrHandshakeFailed, probe.Status)
	}

	splash := d.exec.Exchange(ctx, scsi.VendorTransferCDB(), nil, splashSize, handshakeTag)
	if !splash.OK || len(splash.Data) == 0 {
		return fmt.Errorf("%w: splash read rejected (status %d, %d bytes)",
			ErrHandshakeFailed, splash.Status, len(splash.Data))
	}

	// The device expects its own splash payload echoed back verbatim.
	echo := d.exec.Exchange(ctx, scsi.VendorTransferCDB(), splash.Data, 0, handshakeTag)
	if !echo.OK {
		return fmt.Errorf("%w: splash echo rejected (status %d)", ErrHandshakeFailed, echo.Status)
	}

	log.Info().Int("splash_bytes", len(splash.Data)).Msg("handshake complete")
	return nil
}
