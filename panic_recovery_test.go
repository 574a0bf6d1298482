// panic_recovery_test.go: hook panic recovery tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallHook(t *testing.T) {
	assert.NoError(t, callHook(func() error { return nil }))

	want := errors.New("failed")
	assert.Same(t, want, callHook(func() error { return want }))

	err := callHook(func() error { panic("boom") })
	var p *PanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "boom", p.Value)
	assert.Equal(t, "panic: boom", p.Error())
	assert.NotEmpty(t, p.Stack)
}

func TestWithStackRecover(t *testing.T) {
	logger := NewTestLogger()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer withStackRecover(logger)()
		panic("listener exploded")
	}()
	wg.Wait()

	messages := logger.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "Panic recovered in goroutine", messages[0].Message)
	assert.Equal(t, "panic", messages[0].Args[0])
	assert.Equal(t, "listener exploded", messages[0].Args[1])
}
