// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package usblcd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/scsi"
)

// testOptions shrinks the waits so handshake tests finish quickly; the
// protocol sequencing under test does not depend on the real timing.
func testOptions() Options {
	opts := DefaultOptions()
	opts.SettleDelay = time.Millisecond
	return opts
}

// splashPayload is a recognizable stand-in for the device's stored splash.
func splashPayload() []byte {
	data := make([]byte, splashSize)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

// readyDeviceScript answers every command the happy-path handshake issues.
func readyDeviceScript(splash []byte) func(cdb []byte, dir byte, length uint32) commandOutcome {
	return func(cdb []byte, dir byte, length uint32) commandOutcome {
		switch cdb[0] {
		case scsi.OpTestUnitReady:
			return commandOutcome{status: scsi.StatusGood}
		case scsi.OpInquiry:
			return commandOutcome{data: make([]byte, scsi.InquiryAllocLength), status: scsi.StatusGood}
		case scsi.OpVendor:
			if cdb[1] == 'A' {
				return commandOutcome{data: make([]byte, scsi.VendorProbeAllocLength), status: scsi.StatusGood}
			}
			if dir == 0x80 {
				return commandOutcome{data: splash, status: scsi.StatusGood}
			}
			return commandOutcome{status: scsi.StatusGood}
		default:
			return commandOutcome{status: scsi.StatusCheckCondition}
		}
	}
}

func TestHandshakeReadyDevice(t *testing.T) {
	t.Parallel()

	splash := splashPayload()
	fake := newFakeDevice(readyDeviceScript(splash))
	dev := newDevice(fake, clockwork.NewRealClock(), testOptions())

	require.NoError(t, dev.Handshake(context.Background()))

	// A device that answers the first TEST UNIT READY skips straight to the
	// vendor sequence: no sense requests, no resets, no retries.
	require.Len(t, fake.cdbs, 5)
	assert.Equal(t, scsi.OpTestUnitReady, fake.cdbs[0][0])
	assert.Equal(t, scsi.OpInquiry, fake.cdbs[1][0])
	assert.Equal(t, scsi.OpVendor, fake.cdbs[2][0])
	assert.Equal(t, byte('A'), fake.cdbs[2][1])
	assert.Equal(t, scsi.OpVendor, fake.cdbs[3][0])
	assert.Equal(t, scsi.OpVendor, fake.cdbs[4][0])
	assert.Zero(t, fake.resets)

	// Every stage-2 command carries the fixed wire tag.
	for i := 1; i < 5; i++ {
		assert.Equal(t, handshakeTag, fake.tags[i], "command %d", i)
	}

	// The echo must send the splash read back byte for byte.
	echoed, ok := fake.payloads[4]
	require.True(t, ok, "splash echo payload not captured")
	assert.True(t, bytes.Equal(splash, echoed), "echo payload differs from splash read")
}

func TestHandshakeModeSenseFallback(t *testing.T) {
	t.Parallel()

	// TEST UNIT READY never succeeds but MODE SENSE(6) does, which also
	// completes preconditioning. The intervening check condition yields a
	// well-formed sense response, so no reset happens.
	sense := make([]byte, scsi.SenseAllocLength)
	sense[2] = 0x06 // unit attention
	sense[12] = 0x29

	splash := splashPayload()
	ready := readyDeviceScript(splash)
	fake := newFakeDevice(nil)
	fake.script = func(cdb []byte, dir byte, length uint32) commandOutcome {
		switch cdb[0] {
		case scsi.OpTestUnitReady:
			return commandOutcome{status: scsi.StatusCheckCondition}
		case scsi.OpRequestSense:
			return commandOutcome{data: sense, status: scsi.StatusGood}
		case scsi.OpModeSense6:
			return commandOutcome{data: make([]byte, 4), status: scsi.StatusGood}
		default:
			return ready(cdb, dir, length)
		}
	}
	dev := newDevice(fake, clockwork.NewRealClock(), testOptions())

	require.NoError(t, dev.Handshake(context.Background()))
	assert.Equal(t, 1, fake.countCDBs(scsi.OpTestUnitReady))
	assert.Equal(t, 1, fake.countCDBs(scsi.OpRequestSense))
	assert.Equal(t, 1, fake.countCDBs(scsi.OpModeSense6))
	assert.Zero(t, fake.resets)
}

func TestHandshakeDeadline(t *testing.T) {
	t.Parallel()

	// The device never becomes ready and every sense response is truncated,
	// so each attempt resets the transport. The loop must give up at the
	// wall-clock deadline instead of spinning forever.
	fake := newFakeDevice(func(cdb []byte, dir byte, length uint32) commandOutcome {
		if cdb[0] == scsi.OpRequestSense {
			return commandOutcome{data: make([]byte, 4), status: scsi.StatusGood}
		}
		return commandOutcome{status: scsi.StatusCheckCondition}
	})

	opts := testOptions()
	opts.HandshakeDeadline = 100 * time.Millisecond
	opts.HandshakeBackoff = 5 * time.Millisecond

	fc := clockwork.NewFakeClock()
	dev := newDevice(fake, fc, opts)

	done := make(chan error, 1)
	go func() { done <- dev.Handshake(context.Background()) }()

	for {
		select {
		case err := <-done:
			require.ErrorIs(t, err, ErrHandshakeTimeout)

			attempts := fake.countCDBs(scsi.OpTestUnitReady)
			assert.GreaterOrEqual(t, attempts, 2, "expected repeated attempts before the deadline")
			// Both the failed TEST UNIT READY and the failed MODE SENSE(6)
			// of every attempt drain sense and reset on the malformed reply.
			assert.Equal(t, 2*attempts, fake.resets)
			assert.Zero(t, fake.countCDBs(scsi.OpInquiry), "stage 2 must not start")
			return
		default:
		}

		waitCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		if fc.BlockUntilContext(waitCtx, 1) == nil {
			fc.Advance(opts.HandshakeBackoff)
		}
		cancel()
	}
}

func TestHandshakeContextCancel(t *testing.T) {
	t.Parallel()

	fake := newFakeDevice(func(cdb []byte, dir byte, length uint32) commandOutcome {
		return commandOutcome{status: scsi.StatusCheckCondition}
	})
	dev := newDevice(fake, clockwork.NewRealClock(), testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := dev.Handshake(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHandshakeStage2Rejection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		reject byte // vendor sub-marker of the command to reject, 0 for INQUIRY
	}{
		{name: "inquiry rejected", reject: scsi.OpInquiry},
		{name: "apix probe rejected", reject: 'A'},
		{name: "splash read rejected", reject: 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			splash := splashPayload()
			ready := readyDeviceScript(splash)
			fake := newFakeDevice(func(cdb []byte, dir byte, length uint32) commandOutcome {
				switch {
				case cdb[0] == scsi.OpInquiry && tt.reject == scsi.OpInquiry:
					return commandOutcome{status: scsi.StatusCheckCondition}
				case cdb[0] == scsi.OpVendor && cdb[1] == 'A' && tt.reject == 'A':
					return commandOutcome{status: scsi.StatusCheckCondition}
				case cdb[0] == scsi.OpVendor && cdb[1] == 0 && tt.reject == 0xFF:
					return commandOutcome{status: scsi.StatusCheckCondition}
				default:
					return ready(cdb, dir, length)
				}
			})
			dev := newDevice(fake, clockwork.NewRealClock(), testOptions())

			err := dev.Handshake(context.Background())
			require.ErrorIs(t, err, ErrHandshakeFailed)
			// A stage-2 rejection aborts immediately: nothing after the
			// rejected command goes out.
			assert.Empty(t, fake.payloads, "no splash echo after a rejection")
		})
	}
}
