// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/spf13/cobra"
)

var (
	scanTimeout int
	scanAll     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Niimbot printers over BLE",
	Long: `Scan for BLE advertisements and list printers in range.

By default only devices whose name starts with the configured printer name
prefix (--ble-name, default "B1") are listed. Use --all to dump every
advertiser, which helps when a printer announces under an unexpected name.

The printed address can be passed to other commands via --ble-address to
skip the scan phase when connecting.

Exit codes:
  0 - At least one device found
  1 - No devices found
  2 - BLE adapter error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Scan duration in seconds")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List every advertiser, not just printers")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := initBLEDevice(); err != nil {
		fmt.Fprintf(os.Stderr, "BLE error: %v\n", err)
		os.Exit(2)
	}

	filter := fmt.Sprintf("name prefix %q", bleName)
	if scanAll {
		filter = "none (all advertisers)"
	}

	fmt.Printf("Niimctl - BLE Scan\n")
	fmt.Printf("Filter: %s\n", filter)
	fmt.Printf("Timeout: %d seconds\n\n", scanTimeout)
	fmt.Printf("%-18s %-9s %s\n", "ADDRESS", "RSSI", "NAME")

	// A device often advertises namelessly first and delivers its name in
	// the scan response, so mark it seen only once something printed.
	seen := make(map[string]bool)
	found := 0

	handler := func(a ble.Advertisement) {
		addr := a.Addr().String()
		if seen[addr] {
			return
		}

		name := a.LocalName()
		if !scanAll && !strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(bleName)) {
			return
		}
		seen[addr] = true

		if name == "" {
			name = "(no name)"
		}
		found++
		fmt.Printf("%-18s %4d dBm  %s\n", addr, a.RSSI(), name)
	}

	ctx := ble.WithSigHandler(context.WithTimeout(context.Background(),
		time.Duration(scanTimeout)*time.Second))
	err := ble.Scan(ctx, false, handler, nil)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Scan failed: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("\n--- Scan summary ---\n")
	fmt.Printf("Devices found: %d\n", found)

	if found == 0 {
		fmt.Printf("No printers discovered. Check the printer is powered on and not paired elsewhere.\n")
		os.Exit(1)
	}
	return nil
}
