// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors
//
// Niimctl - Niimbot Label Printer Control
//
// A CLI tool for printing to, monitoring and debugging Niimbot thermal
// label printers over BLE, serial or WebSocket bridges.

package main

import (
	"os"

	"github.com/open-niim/niimctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
