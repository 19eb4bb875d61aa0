// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/open-niim/niimctl/pkg/niimbot"
)

var calibrateWait int

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Run gap calibration on the loaded label roll",
	Long: `Run gap calibration on the loaded label roll.

The printer feeds a few labels to measure the gap spacing between them.
Run this after loading a new roll size, otherwise pages may start mid-label.
The command watches the link for the wait window and reports anything the
printer sends back; most firmware finishes silently.

Exit codes:
  0 - Calibration command accepted
  1 - Printer reported an error
  2 - Connection error`,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
	calibrateCmd.Flags().IntVar(&calibrateWait, "wait", 10, "Seconds to watch for replies before exiting")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Niimctl - Gap Calibration\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	reader := newReplyReader(conn)

	if _, err := conn.Write(niimbot.MustEncodePacket(niimbot.NewCalibrateGap())); err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("Calibration started, the printer will feed a few labels...\n")

	deadline := time.Now().Add(time.Duration(calibrateWait) * time.Second)
	for time.Now().Before(deadline) {
		pkt, err := reader.awaitAny(time.Until(deadline))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read failed: %v\n", err)
			os.Exit(1)
		}
		if pkt == nil {
			break
		}
		if pkt.IsError() {
			fmt.Fprintf(os.Stderr, "Printer error: body %s\n", niimbot.FormatBytes(pkt.Body()))
			os.Exit(1)
		}
		fmt.Print(niimbot.FormatPacket(pkt))
	}

	fmt.Printf("Done.\n")
	return nil
}
