// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// BLE connection flags
	bleAddress string
	bleName    string
	bleService string
	bleChar    string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Global behavior flags
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "niimctl",
	Short: "Niimbot Label Printer Controller",
	Long: `Niimctl - A CLI tool for driving and debugging Niimbot BLE label printers.

Provides commands for printing labels, probing printer state, watching the
frame stream, and running a small REST daemon for print automation.

Connection modes:
  BLE (default): scans for a printer advertising the configured name prefix,
                 or dials a fixed address with --ble-address AA:BB:CC:DD:EE:FF
  Serial:        --port /dev/ttyUSB0 [--baud 115200]
  WebSocket:     --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the NIIMCTL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell
history.

Settings may also come from a TOML config file (default ~/.niimctl/config.toml,
override with --config). Flags given on the command line win over file values.`,
	Version:      "0.4.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	// BLE connection flags
	rootCmd.PersistentFlags().StringVar(&bleAddress, "ble-address", "", "Printer BLE address (skips scanning)")
	rootCmd.PersistentFlags().StringVar(&bleName, "ble-name", "B1", "BLE name prefix to scan for")
	rootCmd.PersistentFlags().StringVar(&bleService, "ble-service", defaultServiceUUID, "Printer GATT service UUID")
	rootCmd.PersistentFlags().StringVar(&bleChar, "ble-characteristic", defaultCharUUID, "Printer GATT characteristic UUID")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.niimctl/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// newLogger builds the console logger commands hand to the protocol session.
// Debug level tracks --verbose.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
