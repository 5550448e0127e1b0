// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package scsi

import "context"

// Transport is the bulk half of a mass-storage style USB link. Implementations
// are not required to be safe for concurrent use; the protocol is strictly
// request/response and callers must serialize exchanges per device.
type Transport interface {
	// BulkOut writes p on the OUT endpoint and returns the byte count
	// actually transferred.
	BulkOut(ctx context.Context, p []byte) (int, error)

	// BulkIn reads up to len(p) bytes from the IN endpoint and returns the
	// byte count actually transferred.
	BulkIn(ctx context.Context, p []byte) (int, error)

	// Reset performs the Bulk-Only Mass Storage Reset control transfer and
	// clears the halt condition on both bulk endpoints.
	Reset(ctx context.Context) error
}
