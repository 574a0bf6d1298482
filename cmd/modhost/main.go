// main.go: modhost command entry point
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Command modhost runs a module host and talks to a running one.
package main

func main() {
	Execute()
}
