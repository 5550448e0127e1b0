// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package scsi

import "encoding/binary"

// SCSI opcodes used by this device family.
const (
	OpTestUnitReady byte = 0x00
	OpRequestSense  byte = 0x03
	OpInquiry       byte = 0x12
	OpModeSense6    byte = 0x1A
	OpVendor        byte = 0xF5
)

// Allocation lengths for the data-in commands.
const (
	SenseAllocLength     = 18
	InquiryAllocLength   = 36
	ModeSenseAllocLength = 192

	// VendorProbeAllocLength is the response size of the APIX probe.
	VendorProbeAllocLength = 12
)

// TestUnitReadyCDB builds the 6-byte TEST UNIT READY descriptor block.
func TestUnitReadyCDB() []byte {
	return make([]byte, 6)
}

// RequestSenseCDB builds a REQUEST SENSE descriptor block asking for the
// standard 18-byte fixed-format sense payload.
func RequestSenseCDB() []byte {
	return []byte{OpRequestSense, 0, 0, 0, SenseAllocLength, 0}
}

// ModeSense6CDB builds a MODE SENSE(6) descriptor block with the 192-byte
// allocation the vendor driver uses during preconditioning.
func ModeSense6CDB() []byte {
	return []byte{OpModeSense6, 0, 0, 0, ModeSenseAllocLength, 0}
}

// InquiryCDB builds a standard INQUIRY descriptor block (36-byte allocation).
func InquiryCDB() []byte {
	return []byte{OpInquiry, 0, 0, 0, InquiryAllocLength, 0}
}

// VendorProbeCDB builds the 16-byte 0xF5 "APIX" probe. The parameter bytes
// after the ASCII marker were captured from the Windows driver's traffic.
func VendorProbeCDB() []byte {
	return []byte{
		OpVendor,
		'A', 'P', 'I', 'X',
		0xB3, 0x0C, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00,
	}
}

// VendorTransferCDB builds the zero-padded 0xF5 descriptor block used both to
// read the full splash payload and to echo it back.
func VendorTransferCDB() []byte {
	cdb := make([]byte, maxCDBLength)
	cdb[0] = OpVendor
	return cdb
}

// VendorImageCDB builds the 0xF5 image-upload descriptor block for one column
// band. The payload length lands little-endian in bytes 12-15.
func VendorImageCDB(band byte, length uint32) []byte {
	cdb := make([]byte, maxCDBLength)
	cdb[0] = OpVendor
	cdb[1] = 0x01
	cdb[2] = 0x01
	cdb[3] = band
	binary.LittleEndian.PutUint32(cdb[12:16], length)
	return cdb
}
