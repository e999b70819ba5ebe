// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package logging is a thin structured-logging façade over
// go.uber.org/zap, standing in for the teacher's
// erigon-lib/log/v3 (SPEC_FULL.md §0 "Logging"). Every subsystem logs
// through the package-level functions rather than holding its own
// *zap.Logger, so cmd/forensiccorpus can swap the sink (meta-folder
// file vs stderr) once at startup.
package logging

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = zap.NewNop().Sugar()

// Init points the logger at <metaFolder>/logs/YYYY-MM-DD_log.txt
// through a lumberjack.Logger sink (spec.md §6's meta-folder layout),
// with size-based rotation so a long --carve_* run can't fill a disk.
func Init(metaFolder string) (func(), error) {
	logsDir := filepath.Join(metaFolder, "logs")
	name := time.Now().UTC().Format("2006-01-02") + "_log.txt"

	sink := &lumberjack.Logger{
		Filename:   filepath.Join(logsDir, name),
		MaxSize:    100, // MiB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(sink),
		zapcore.InfoLevel,
	)
	logger := zap.New(core)
	log = logger.Sugar()

	return func() {
		_ = logger.Sync()
		_ = sink.Close()
	}, nil
}

// InitForTests points logging at an in-memory no-op sink, for package
// tests that exercise logging-adjacent code paths without touching disk.
func InitForTests() {
	log = zap.NewNop().Sugar()
}

// Info logs an informational structured event, kv alternating key/value
// pairs the way the teacher's log.Info(msg, "key", val, ...) does.
func Info(msg string, kv ...any) { log.Infow(msg, kv...) }

// Warn logs a recoverable-skip event (spec.md §7 "local skip, optional
// warning log, continue").
func Warn(msg string, kv ...any) { log.Warnw(msg, kv...) }

// Error logs a hard failure that the caller is about to propagate.
func Error(msg string, kv ...any) { log.Errorw(msg, kv...) }

// Errorf is a convenience for the common "wrap and log" pattern,
// returning the formatted error so call sites can `return
// logging.Errorf(...)` in one line.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	log.Errorw(err.Error())
	return err
}
