// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package usblcd

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/scsi"
)

// Ready issues a TEST UNIT READY and reports whether the panel will accept
// an image write right now. Transient device errors trigger the transport
// recovery sequence (mass storage reset plus clear-halt on both bulk
// endpoints) so a later probe can succeed; in that case Ready still reports
// false for this call.
func (d *Device) Ready(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := d.exec.Exchange(ctx, scsi.TestUnitReadyCDB(), nil, 0, 0)
	if res.OK {
		return true
	}

	switch res.Status {
	case scsi.StatusCheckCondition:
		sense := d.exec.Exchange(ctx, scsi.RequestSenseCDB(), nil, scsi.SenseAllocLength, 0)
		if info, ok := scsi.DecodeSense(sense.Data); ok {
			log.Debug().Str("sense", info.String()).Msg("device not ready")
		}
		d.reset(ctx)
	case scsi.StatusPhaseError:
		d.reset(ctx)
	}

	return false
}
