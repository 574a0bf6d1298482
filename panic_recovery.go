// panic_recovery.go: panic recovery for module hooks and async handlers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modhost

import (
	"fmt"
	"runtime"
)

// withStackRecover returns a recovery function that logs the panic and its
// stack. Use it with defer at the top of goroutines that run foreign code.
//
//	go func() {
//	    defer withStackRecover(logger)()
//	    handler(event)
//	}()
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)

			logger.Error("Panic recovered in goroutine",
				"panic", r,
				"stack", string(buf[:n]))
		}
	}
}

// PanicError is returned by callHook when a module hook panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// callHook runs fn synchronously and converts a panic into a *PanicError,
// so a misbehaving module cannot take the host down with it.
func callHook(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			n := runtime.Stack(buf, false)
			err = &PanicError{Value: r, Stack: buf[:n]}
		}
	}()
	return fn()
}

// CallRecovered runs fn like a module hook: a panic comes back as a
// *PanicError. Host service adapters wrap module handlers with it.
func CallRecovered(fn func() error) error {
	return callHook(fn)
}
