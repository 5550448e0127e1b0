// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

//go:build !deadlock

// Package syncutil provides mutex primitives with optional deadlock
// detection. Build with -tags=deadlock to enable the detector during
// development; the protocol layer serializes on a single device lock, which
// is exactly where lock-ordering mistakes would hide.
package syncutil

import "sync"

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = false

// A Mutex is a mutual exclusion lock.
type Mutex struct {
	sync.Mutex
}

// An RWMutex is a reader/writer mutual exclusion lock.
type RWMutex struct {
	sync.RWMutex
}
