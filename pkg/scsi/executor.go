// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package scsi

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Result is the outcome of a single command exchange. OK is true only when a
// valid status wrapper reported Good status. A transport failure while
// sending the command wrapper leaves Status at zero, so callers cannot tell
// it apart from a Good status with OK false; this matches the vendor driver
// and is deliberately preserved.
type Result struct {
	Data   []byte
	OK     bool
	Status byte
}

// Timeouts carries the per-phase deadlines of one exchange.
type Timeouts struct {
	// Command applies to the command wrapper write and the status
	// wrapper read.
	Command time.Duration
	// Data applies to the data phase in either direction.
	Data time.Duration
}

// DefaultTimeouts matches the timings of the Windows vendor driver.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Command: 1 * time.Second,
		Data:    2 * time.Second,
	}
}

// Executor runs command/data/status exchanges over a bulk transport. It owns
// the monotonic tag counter but has no other state and no locking of its own:
// callers must serialize exchanges against a given device.
type Executor struct {
	tr       Transport
	timeouts Timeouts
	tag      atomic.Uint32
	debug    bool
}

// NewExecutor returns an executor over tr. When debug is set every exchange
// is traced to the debug log; tracing never influences results.
func NewExecutor(tr Transport, timeouts Timeouts, debug bool) *Executor {
	return &Executor{tr: tr, timeouts: timeouts, debug: debug}
}

// nextTag returns the next wire tag. Wraps naturally at 2^32.
func (e *Executor) nextTag() uint32 {
	return e.tag.Add(1)
}

// Exchange performs one full exchange: command wrapper out, optional data
// phase, status wrapper in. At most one of dataOut or dataInLen may be set.
// A zero tag asks for an auto-assigned one from the monotonic counter.
//
// Every failure mode is folded into the returned Result; Exchange never
// returns an error value.
func (e *Executor) Exchange(ctx context.Context, cdb, dataOut []byte, dataInLen int, tag uint32) Result {
	if tag == 0 {
		tag = e.nextTag()
	}

	direction := DirOut
	length := uint32(len(dataOut))
	if dataInLen > 0 {
		direction = DirIn
		length = uint32(dataInLen)
	}

	cbw, err := CommandBlock{
		CDB:            cdb,
		Tag:            tag,
		TransferLength: length,
		Direction:      direction,
	}.Encode()
	if err != nil {
		e.trace(cdb, Result{}, err)
		return Result{}
	}

	// Command phase. A failure here carries no status byte at all.
	cmdCtx, cancel := context.WithTimeout(ctx, e.timeouts.Command)
	n, err := e.tr.BulkOut(cmdCtx, cbw)
	cancel()
	if err != nil || n != len(cbw) {
		e.trace(cdb, Result{}, err)
		return Result{}
	}

	// Data phase. A transport failure here is reported as a phase error and
	// the status phase is skipped.
	var data []byte
	switch {
	case dataInLen > 0:
		buf := make([]byte, dataInLen)
		dataCtx, cancel := context.WithTimeout(ctx, e.timeouts.Data)
		n, err = e.tr.BulkIn(dataCtx, buf)
		cancel()
		if err != nil {
			res := Result{Status: StatusPhaseError}
			e.trace(cdb, res, err)
			return res
		}
		data = buf[:n]
	case len(dataOut) > 0:
		dataCtx, cancel := context.WithTimeout(ctx, e.timeouts.Data)
		n, err = e.tr.BulkOut(dataCtx, dataOut)
		cancel()
		if err != nil || n != len(dataOut) {
			res := Result{Status: StatusPhaseError}
			e.trace(cdb, res, err)
			return res
		}
	}

	// Status phase.
	cswBuf := make([]byte, cswLength)
	statusCtx, cancel := context.WithTimeout(ctx, e.timeouts.Command)
	n, err = e.tr.BulkIn(statusCtx, cswBuf)
	cancel()
	if err != nil {
		res := Result{Data: data, Status: StatusPhaseError}
		e.trace(cdb, res, err)
		return res
	}

	csw, err := DecodeStatus(cswBuf[:n])
	if err != nil {
		res := Result{Data: data, Status: StatusPhaseError}
		e.trace(cdb, res, err)
		return res
	}

	res := Result{
		Data:   data,
		Status: csw.Status,
		OK:     csw.Status == StatusGood,
	}
	e.trace(cdb, res, nil)
	return res
}

// trace emits a debug log event for one exchange. Sense payloads get their
// key fields decoded inline.
func (e *Executor) trace(cdb []byte, res Result, err error) {
	if !e.debug {
		return
	}

	ev := log.Debug().
		Hex("cdb", cdb).
		Bool("ok", res.OK).
		Uint8("status", res.Status).
		Int("data_len", len(res.Data))
	if err != nil {
		ev = ev.Err(err)
	}
	if len(cdb) > 0 && cdb[0] == OpRequestSense {
		if info, ok := DecodeSense(res.Data); ok {
			ev = ev.Str("sense", info.String())
		}
	}
	ev.Msg("scsi exchange")
}
