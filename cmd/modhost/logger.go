// logger.go: charmbracelet/log adapter for the host logger
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	modhost "github.com/agilira/go-modhost"
)

type charmLogger struct {
	l *log.Logger
}

var _ modhost.Logger = charmLogger{}

func newLogger(w io.Writer, level string) (charmLogger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return charmLogger{}, err
	}
	l := log.NewWithOptions(w, log.Options{
		Prefix:          "modhost",
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	return charmLogger{l: l}, nil
}

func (c charmLogger) Debug(msg string, args ...any) { c.l.Debug(msg, args...) }
func (c charmLogger) Info(msg string, args ...any)  { c.l.Info(msg, args...) }
func (c charmLogger) Warn(msg string, args ...any)  { c.l.Warn(msg, args...) }
func (c charmLogger) Error(msg string, args ...any) { c.l.Error(msg, args...) }

func (c charmLogger) With(args ...any) modhost.Logger {
	return charmLogger{l: c.l.With(args...)}
}
