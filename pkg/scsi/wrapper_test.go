// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package scsi

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBlockEncodeLayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cdb        []byte
		tag        uint32
		length     uint32
		direction  byte
		wantDirB12 byte
	}{
		{
			name:       "test unit ready out",
			cdb:        TestUnitReadyCDB(),
			tag:        1,
			length:     0,
			direction:  DirOut,
			wantDirB12: 0x00,
		},
		{
			name:       "inquiry in",
			cdb:        InquiryCDB(),
			tag:        0x628bf560,
			length:     InquiryAllocLength,
			direction:  DirIn,
			wantDirB12: 0x80,
		},
		{
			name:       "vendor image band write",
			cdb:        VendorImageCDB(2, 38400),
			tag:        0xFFFFFFFF,
			length:     38400,
			direction:  DirOut,
			wantDirB12: 0x00,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf, err := CommandBlock{
				CDB:            tt.cdb,
				Tag:            tt.tag,
				TransferLength: tt.length,
				Direction:      tt.direction,
			}.Encode()
			require.NoError(t, err)
			require.Len(t, buf, 31)

			assert.Equal(t, []byte("USBC"), buf[0:4])
			assert.Equal(t, tt.tag, binary.LittleEndian.Uint32(buf[4:8]))
			assert.Equal(t, tt.length, binary.LittleEndian.Uint32(buf[8:12]))
			assert.Equal(t, tt.wantDirB12, buf[12])
			assert.Equal(t, byte(0), buf[13], "LUN is always zero")
			assert.Equal(t, byte(len(tt.cdb)), buf[14])
			assert.Equal(t, tt.cdb, buf[15:15+len(tt.cdb)])

			// Remainder of the CDB field stays zero padded.
			rest := buf[15+len(tt.cdb):]
			assert.True(t, bytes.Equal(rest, make([]byte, len(rest))))
		})
	}
}

func TestCommandBlockEncodeRejectsBadCDB(t *testing.T) {
	t.Parallel()

	_, err := CommandBlock{CDB: nil}.Encode()
	require.ErrorIs(t, err, ErrEmptyCDB)

	_, err = CommandBlock{CDB: make([]byte, 17)}.Encode()
	require.ErrorIs(t, err, ErrCDBTooLong)
}

func TestDecodeStatus(t *testing.T) {
	t.Parallel()

	good := make([]byte, 13)
	copy(good, "USBS")
	binary.LittleEndian.PutUint32(good[4:8], 42)
	binary.LittleEndian.PutUint32(good[8:12], 7)
	good[12] = StatusGood

	csw, err := DecodeStatus(good)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), csw.Tag)
	assert.Equal(t, uint32(7), csw.Residue)
	assert.Equal(t, StatusGood, csw.Status)

	check := make([]byte, 13)
	copy(check, "USBS")
	check[12] = StatusCheckCondition
	csw, err = DecodeStatus(check)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckCondition, csw.Status)
}

func TestDecodeStatusRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		buf  []byte
	}{
		{"short buffer", []byte("USBS")},
		{"long buffer", make([]byte, 14)},
		{"bad signature", append([]byte("USBC"), make([]byte, 9)...)},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeStatus(tt.buf)
			require.ErrorIs(t, err, ErrBadStatusWrapper)
		})
	}
}

func TestDecodeSense(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 18)
	payload[2] = 0xF6 // key lives in the low nibble
	payload[12] = 0x3A
	payload[13] = 0x01

	info, ok := DecodeSense(payload)
	require.True(t, ok)
	assert.Equal(t, byte(0x06), info.Key)
	assert.Equal(t, byte(0x3A), info.ASC)
	assert.Equal(t, byte(0x01), info.ASCQ)

	_, ok = DecodeSense(make([]byte, 13))
	assert.False(t, ok, "responses under 14 bytes are malformed")

	_, ok = DecodeSense(nil)
	assert.False(t, ok)
}
