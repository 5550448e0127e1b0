// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package usblcd

import (
	"context"
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/helpers/syncutil"
	"github.com/the-black-eagle/Thermalright-usblcd/pkg/scsi"
)

// Device is one opened panel. It bundles the transport, the command executor
// with its tag counter, and the handshake tunables, so there is no hidden
// process-wide state and a fake transport can stand in for hardware.
//
// The command protocol is strictly request/response over shared endpoints;
// every exported operation takes the device lock for its full exchange
// sequence so concurrent callers cannot interleave command, data and status
// phases.
type Device struct {
	tr     scsi.Transport
	exec   *scsi.Executor
	clock  clockwork.Clock
	closer io.Closer
	opts   Options
	mu     syncutil.Mutex
}

// Open locates the panel by its fixed identity and prepares it for command
// traffic. The caller still has to run Handshake before image writes.
func Open(opts Options) (*Device, error) {
	bridge, err := openBridge(opts.VendorID, opts.ProductID)
	if err != nil {
		return nil, err
	}
	d := newDevice(bridge, clockwork.NewRealClock(), opts)
	d.closer = bridge
	return d, nil
}

// newDevice wires a device over any transport. Tests inject fakes here.
func newDevice(tr scsi.Transport, clock clockwork.Clock, opts Options) *Device {
	return &Device{
		tr:    tr,
		exec:  scsi.NewExecutor(tr, opts.Timeouts, opts.Debug),
		clock: clock,
		opts:  opts,
	}
}

// Close releases the underlying USB handle. The device must not be used
// afterwards.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}

// reset runs the transport recovery sequence. Recovery failures are logged
// and swallowed: the retry loops that trigger resets deal in command results,
// not reset errors.
func (d *Device) reset(ctx context.Context) {
	if err := d.tr.Reset(ctx); err != nil {
		log.Debug().Err(err).Msg("transport reset failed")
	}
}
