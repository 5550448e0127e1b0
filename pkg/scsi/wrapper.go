// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

// Package scsi implements the SCSI Bulk-Only Transport framing the panel
// speaks: fixed 31-byte command wrappers, 13-byte status wrappers, the small
// CDB repertoire the device understands, and a command executor that runs one
// full command/data/status exchange over a bulk transport.
package scsi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire signatures and sizes of the Bulk-Only Transport wrappers.
const (
	cbwSignature = "USBC"
	cswSignature = "USBS"

	cbwLength = 31
	cswLength = 13

	maxCDBLength = 16
)

// CBW direction flag values.
const (
	DirOut byte = 0x00 // host to device
	DirIn  byte = 0x80 // device to host
)

// Status byte values carried in a command status wrapper.
const (
	StatusGood           byte = 0x00
	StatusCheckCondition byte = 0x01
	StatusPhaseError     byte = 0x02
)

var (
	// ErrCDBTooLong is returned when a CDB exceeds the 16-byte wrapper field.
	ErrCDBTooLong = errors.New("cdb exceeds 16 bytes")
	// ErrEmptyCDB is returned when a command block carries no CDB at all.
	ErrEmptyCDB = errors.New("cdb is empty")
	// ErrBadStatusWrapper is returned when a status wrapper has the wrong
	// length or signature.
	ErrBadStatusWrapper = errors.New("invalid command status wrapper")
)

// CommandBlock describes one 31-byte command block wrapper. All multi-byte
// fields are little-endian on the wire.
type CommandBlock struct {
	CDB            []byte
	Tag            uint32
	TransferLength uint32
	Direction      byte
	LUN            byte
}

// Encode serializes the command block into its 31-byte wire form.
func (c CommandBlock) Encode() ([]byte, error) {
	if len(c.CDB) == 0 {
		return nil, ErrEmptyCDB
	}
	if len(c.CDB) > maxCDBLength {
		return nil, fmt.Errorf("%w: got %d bytes", ErrCDBTooLong, len(c.CDB))
	}

	buf := make([]byte, cbwLength)
	copy(buf[0:4], cbwSignature)
	binary.LittleEndian.PutUint32(buf[4:8], c.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], c.TransferLength)
	buf[12] = c.Direction
	buf[13] = c.LUN
	buf[14] = byte(len(c.CDB))
	copy(buf[15:], c.CDB)

	return buf, nil
}

// CommandStatus is the decoded form of a 13-byte command status wrapper.
type CommandStatus struct {
	Tag     uint32
	Residue uint32
	Status  byte
}

// DecodeStatus parses a command status wrapper. Any buffer that is not
// exactly 13 bytes or does not start with the "USBS" signature is rejected
// with ErrBadStatusWrapper.
//
// The returned tag is not validated against the command block it answers;
// the device family has been observed to echo stale tags after recovery and
// the Windows vendor driver ignores them too.
func DecodeStatus(buf []byte) (CommandStatus, error) {
	if len(buf) != cswLength {
		return CommandStatus{}, fmt.Errorf("%w: length %d", ErrBadStatusWrapper, len(buf))
	}
	if string(buf[0:4]) != cswSignature {
		return CommandStatus{}, fmt.Errorf("%w: bad signature", ErrBadStatusWrapper)
	}

	return CommandStatus{
		Tag:     binary.LittleEndian.Uint32(buf[4:8]),
		Residue: binary.LittleEndian.Uint32(buf[8:12]),
		Status:  buf[12],
	}, nil
}
