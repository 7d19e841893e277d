/* ipp-print - IPP print submission tool with transport fallback
 *
 * Copyright (C) 2020 and up by Alexander Pevzner (pzz@apevzner.com)
 * See LICENSE for license terms and conditions
 *
 * Logging
 */

package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global program logger. Until LogInit is called it
// discards everything, so early failures in configuration loading
// can still be reported through the same interface
var Log = zap.NewNop().Sugar()

// LogInit initializes the global logger. Messages always go to the
// console; if file is not "", they are duplicated into the log file
func LogInit(level zapcore.Level, file string) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true

	cfg.OutputPaths = []string{"stderr"}
	if file != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, file)
	}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	Log = logger.Sugar()
	return nil
}

// LogLevelByName maps a configuration string to a zap level.
// Unknown names default to info
func LogLevelByName(name string) zapcore.Level {
	switch name {
	case "error":
		return zapcore.ErrorLevel
	case "warn":
		return zapcore.WarnLevel
	case "debug":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
