// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package usblcd

import (
	"context"
	"encoding/binary"
	"errors"
)

// commandOutcome is what a scripted device answers to one command.
type commandOutcome struct {
	data   []byte
	status byte
}

// fakeDevice emulates the panel's bulk-only transport. It decodes command
// block wrappers off the OUT endpoint, asks the script for the outcome, and
// serves the data and status phases on the IN endpoint, so driver code runs
// against the same phase sequencing as real hardware.
type fakeDevice struct {
	script func(cdb []byte, dir byte, length uint32) commandOutcome

	// captured traffic
	cdbs     [][]byte
	tags     []uint32
	payloads map[int][]byte // data-out payloads keyed by command index
	resets   int

	// per-exchange state
	dataPhase   bool
	pendingData []byte
	pendingCSW  []byte
	awaitingOut uint32
}

func newFakeDevice(script func(cdb []byte, dir byte, length uint32) commandOutcome) *fakeDevice {
	return &fakeDevice{script: script, payloads: make(map[int][]byte)}
}

func (f *fakeDevice) BulkOut(_ context.Context, p []byte) (int, error) {
	if f.awaitingOut > 0 {
		// Data phase of a host-to-device command.
		cp := make([]byte, len(p))
		copy(cp, p)
		f.payloads[len(f.cdbs)-1] = cp
		f.awaitingOut = 0
		return len(p), nil
	}

	if len(p) != 31 || string(p[0:4]) != "USBC" {
		return 0, errors.New("unexpected OUT transfer outside a command")
	}

	tag := binary.LittleEndian.Uint32(p[4:8])
	length := binary.LittleEndian.Uint32(p[8:12])
	dir := p[12]
	cdbLen := int(p[14])
	cdb := make([]byte, cdbLen)
	copy(cdb, p[15:15+cdbLen])

	f.cdbs = append(f.cdbs, cdb)
	f.tags = append(f.tags, tag)

	out := f.script(cdb, dir, length)

	if dir == 0x80 {
		data := out.data
		if uint32(len(data)) > length {
			data = data[:length]
		}
		// A failed command may move no data, but the host still runs its
		// data phase; answer it with a zero-length transfer.
		f.dataPhase = true
		f.pendingData = data
	} else if length > 0 {
		f.awaitingOut = length
	}

	csw := make([]byte, 13)
	copy(csw, "USBS")
	binary.LittleEndian.PutUint32(csw[4:8], tag)
	csw[12] = out.status
	f.pendingCSW = csw

	return len(p), nil
}

func (f *fakeDevice) BulkIn(_ context.Context, p []byte) (int, error) {
	if f.dataPhase {
		n := copy(p, f.pendingData)
		f.dataPhase = false
		f.pendingData = nil
		return n, nil
	}
	if f.pendingCSW != nil {
		n := copy(p, f.pendingCSW)
		f.pendingCSW = nil
		return n, nil
	}
	return 0, errors.New("unexpected IN transfer")
}

func (f *fakeDevice) Reset(context.Context) error {
	f.resets++
	// A reset abandons any half-finished exchange.
	f.dataPhase = false
	f.pendingData = nil
	f.pendingCSW = nil
	f.awaitingOut = 0
	return nil
}

// countCDBs returns how many captured commands have the given opcode.
func (f *fakeDevice) countCDBs(opcode byte) int {
	n := 0
	for _, cdb := range f.cdbs {
		if len(cdb) > 0 && cdb[0] == opcode {
			n++
		}
	}
	return n
}
