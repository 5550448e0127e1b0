// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package scsi

import "fmt"

// SenseInfo holds the key fields of a fixed-format REQUEST SENSE response.
type SenseInfo struct {
	Key  byte
	ASC  byte
	ASCQ byte
}

// DecodeSense extracts the sense key and additional sense codes from a
// REQUEST SENSE payload. It reports false for payloads shorter than the
// 14 bytes needed to reach the ASCQ field; the handshake treats such
// responses as a sign the transport needs resetting.
func DecodeSense(data []byte) (SenseInfo, bool) {
	if len(data) < 14 {
		return SenseInfo{}, false
	}
	return SenseInfo{
		Key:  data[2] & 0x0F,
		ASC:  data[12],
		ASCQ: data[13],
	}, true
}

func (s SenseInfo) String() string {
	return fmt.Sprintf("key=%d asc=0x%02x ascq=0x%02x", s.Key, s.ASC, s.ASCQ)
}
