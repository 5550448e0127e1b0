// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package helpers

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const LogFile = "usblcd.log"

// InitLogging routes the global logger to a size-rotated file in logDir plus
// any extra writers (typically a console writer when running in the
// foreground).
func InitLogging(logDir string, writers []io.Writer) error {
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return err
	}

	logWriters := []io.Writer{&lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFile),
		MaxSize:    1,
		MaxBackups: 2,
	}}

	if len(writers) > 0 {
		logWriters = append(logWriters, writers...)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	log.Logger = log.Output(io.MultiWriter(logWriters...)).
		With().Timestamp().Caller().Logger()

	return nil
}
