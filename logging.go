package main

import (
	"fmt"
	"io"
	"log/slog"
)

var logLevel = new(slog.LevelVar)

func newLogger(w io.Writer, verbose, json bool) *slog.Logger {
	logLevel.Set(slog.LevelInfo)
	if verbose {
		logLevel.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// driverLog adapts a logger to the printf style LogFunc of spiflash.Device.
func driverLog(logger *slog.Logger) func(format string, params ...any) {
	logger = logger.With("component", "spiflash")
	return func(format string, params ...any) {
		logger.Debug(fmt.Sprintf(format, params...))
	}
}
