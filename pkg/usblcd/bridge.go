// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package usblcd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
	"github.com/rs/zerolog/log"
)

// usbBridge owns the gousb handle chain for one opened panel and implements
// scsi.Transport over its two bulk endpoints.
type usbBridge struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
}

// openBridge locates the panel by its fixed identity, claims interface 0
// with kernel-driver auto-detach, and resets the device so it starts from a
// known state.
func openBridge(vendorID, productID uint16) (*usbBridge, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vendorID), gousb.ID(productID))
	if err != nil {
		_ = ctx.Close()
		return nil, fmt.Errorf("failed to open device %04x:%04x: %w", vendorID, productID, err)
	}
	if dev == nil {
		_ = ctx.Close()
		return nil, fmt.Errorf("device %04x:%04x not found", vendorID, productID)
	}

	dev.ControlTimeout = controlTimeoutMS * time.Millisecond

	if err := dev.SetAutoDetach(true); err != nil {
		_ = dev.Close()
		_ = ctx.Close()
		return nil, fmt.Errorf("failed to enable kernel driver auto-detach: %w", err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		_ = dev.Close()
		_ = ctx.Close()
		return nil, fmt.Errorf("failed to select configuration: %w", err)
	}

	intf, err := cfg.Interface(interfaceNumber, 0)
	if err != nil {
		_ = cfg.Close()
		_ = dev.Close()
		_ = ctx.Close()
		return nil, fmt.Errorf("failed to claim interface %d: %w", interfaceNumber, err)
	}

	out, err := intf.OutEndpoint(bulkOutEndpoint)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		_ = dev.Close()
		_ = ctx.Close()
		return nil, fmt.Errorf("failed to open bulk OUT endpoint: %w", err)
	}

	in, err := intf.InEndpoint(bulkInEndpoint & 0x0F)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		_ = dev.Close()
		_ = ctx.Close()
		return nil, fmt.Errorf("failed to open bulk IN endpoint: %w", err)
	}

	// The panel comes up in whatever state the previous host left it; a
	// reset after claiming matches the vendor driver's open sequence.
	if err := dev.Reset(); err != nil {
		log.Warn().Err(err).Msg("device reset on open failed")
	}

	log.Info().
		Str("id", fmt.Sprintf("%04x:%04x", vendorID, productID)).
		Msg("usb lcd opened")

	return &usbBridge{ctx: ctx, dev: dev, cfg: cfg, intf: intf, out: out, in: in}, nil
}

func (b *usbBridge) BulkOut(ctx context.Context, p []byte) (int, error) {
	n, err := b.out.WriteContext(ctx, p)
	if err != nil {
		return n, fmt.Errorf("bulk out transfer failed: %w", err)
	}
	return n, nil
}

func (b *usbBridge) BulkIn(ctx context.Context, p []byte) (int, error) {
	n, err := b.in.ReadContext(ctx, p)
	if err != nil {
		return n, fmt.Errorf("bulk in transfer failed: %w", err)
	}
	return n, nil
}

// Reset issues the Bulk-Only Mass Storage Reset class request and clears the
// halt condition on both bulk endpoints. Failures are reported but the
// clear-halts still run; a stalled endpoint is recoverable even when the
// class request is not.
func (b *usbBridge) Reset(_ context.Context) error {
	// bmRequestType 0x21: host-to-device, class, interface recipient.
	// bRequest 0xFF: Bulk-Only Mass Storage Reset.
	_, err := b.dev.Control(0x21, 0xFF, 0, interfaceNumber, nil)
	if err != nil {
		err = fmt.Errorf("mass storage reset failed: %w", err)
	}

	if cerr := b.clearHalt(bulkInEndpoint); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := b.clearHalt(bulkOutEndpoint); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// clearHalt issues CLEAR_FEATURE(ENDPOINT_HALT) to one endpoint address.
func (b *usbBridge) clearHalt(endpoint uint16) error {
	// bmRequestType 0x02: host-to-device, standard, endpoint recipient.
	// bRequest 0x01: CLEAR_FEATURE, wValue 0: ENDPOINT_HALT.
	if _, err := b.dev.Control(0x02, 0x01, 0, endpoint, nil); err != nil {
		return fmt.Errorf("clear halt on endpoint 0x%02x failed: %w", endpoint, err)
	}
	return nil
}

// Close releases the handle chain in reverse acquisition order.
func (b *usbBridge) Close() error {
	if b.intf != nil {
		b.intf.Close()
		b.intf = nil
	}
	var firstErr error
	if b.cfg != nil {
		if err := b.cfg.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to release configuration: %w", err)
		}
		b.cfg = nil
	}
	if b.dev != nil {
		if err := b.dev.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close device: %w", err)
		}
		b.dev = nil
	}
	if b.ctx != nil {
		if err := b.ctx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close usb context: %w", err)
		}
		b.ctx = nil
	}
	return firstErr
}
