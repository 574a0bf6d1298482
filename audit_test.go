// audit_test.go: lifecycle audit trail tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuditTrail_RequiresFile(t *testing.T) {
	_, err := NewAuditTrail(AuditOptions{}, nil)
	assert.True(t, HasErrorCode(err, ErrCodeConfigValidationError))
}

func TestAuditTrail_Record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "modules.jsonl")
	trail, err := NewAuditTrail(AuditOptions{OutputFile: path, BufferSize: 1, FlushInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)

	trail.Record(LifecycleEvent{
		ID:        "evt-1",
		Type:      EventModuleEnableFailed,
		ModuleID:  "core",
		Timestamp: time.Now(),
		Error:     NewHookFailedError("core", "enable", nil),
		Details:   map[string]any{"cascade": false},
	})
	require.NoError(t, trail.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, string(EventModuleEnableFailed))
	assert.Contains(t, content, "core")
}

func TestAuditTrail_AttachDetach(t *testing.T) {
	h := newTestHost(t)
	trail, err := NewAuditTrail(AuditOptions{OutputFile: filepath.Join(t.TempDir(), "a.jsonl")}, h.logger)
	require.NoError(t, err)

	trail.Attach(h.manager)
	assert.True(t, h.logger.HasMessage("INFO", "Module audit trail attached"))
	require.NoError(t, trail.Close())
	assert.Nil(t, trail.detach)
}
