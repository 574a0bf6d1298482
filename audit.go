// audit.go: lifecycle audit trail backed by the Argus audit logger
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"os"
	"path/filepath"
	"time"

	"github.com/agilira/argus"
)

// AuditOptions configures the audit trail.
type AuditOptions struct {
	// OutputFile is the JSONL file receiving audit records.
	OutputFile string `json:"output_file" yaml:"output_file"`

	// BufferSize and FlushInterval tune the Argus writer.
	BufferSize    int           `json:"buffer_size" yaml:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// AuditTrail records lifecycle events as Argus security events.
type AuditTrail struct {
	auditor *argus.AuditLogger
	logger  Logger
	detach  func()
}

// NewAuditTrail opens the audit file, creating its directory.
func NewAuditTrail(options AuditOptions, logger any) (*AuditTrail, error) {
	if options.OutputFile == "" {
		return nil, NewConfigValidationError("audit output file is required", nil)
	}
	if options.BufferSize <= 0 {
		options.BufferSize = 1000
	}
	if options.FlushInterval <= 0 {
		options.FlushInterval = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(options.OutputFile), 0750); err != nil {
		return nil, NewConfigFileError(options.OutputFile, "failed to create audit directory", err)
	}

	auditor, err := argus.NewAuditLogger(argus.AuditConfig{
		Enabled:       true,
		OutputFile:    options.OutputFile,
		MinLevel:      argus.AuditInfo,
		BufferSize:    options.BufferSize,
		FlushInterval: options.FlushInterval,
	})
	if err != nil {
		return nil, NewConfigFileError(options.OutputFile, "failed to create audit logger", err)
	}
	return &AuditTrail{auditor: auditor, logger: NewLogger(logger)}, nil
}

// Attach subscribes the trail to m's lifecycle events.
func (a *AuditTrail) Attach(m *Manager) {
	a.detach = m.Subscribe(a.Record)
	a.logger.Info("Module audit trail attached")
}

// Record writes one event.
func (a *AuditTrail) Record(event LifecycleEvent) {
	context := map[string]interface{}{
		"event_id":  event.ID,
		"module_id": event.ModuleID,
		"timestamp": event.Timestamp,
	}
	for k, v := range event.Details {
		context[k] = v
	}
	if event.Error != nil {
		context["error"] = event.Error.Error()
		if code := ErrorCodeOf(event.Error); code != "" {
			context["error_code"] = string(code)
		}
	}
	a.auditor.LogSecurityEvent(string(event.Type), "Module lifecycle event", context)
}

// Close detaches the trail and flushes the audit file.
func (a *AuditTrail) Close() error {
	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
	return a.auditor.Close()
}
