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

var statusTimeout int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query printer status and heartbeat state",
	Long: `Query the printer for its current status.

Sends a heartbeat probe followed by a status request and prints the decoded
replies: power level, paper state, RFID read state, plus the page number and
progress counters reported by the print engine.

Exit codes:
  0 - Status received
  1 - Timed out waiting for a reply
  2 - Connection error`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusTimeout, "timeout", 5, "Timeout in seconds for each reply")
}

func runStatus(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Niimctl - Printer Status\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	reader := newReplyReader(conn)
	timeout := time.Duration(statusTimeout) * time.Second

	// Heartbeat first, it carries the consumable state
	if _, err := conn.Write(niimbot.MustEncodePacket(niimbot.NewHeartbeat())); err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		os.Exit(2)
	}
	hb, err := reader.await(niimbot.ReplyHeartbeat, timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Heartbeat: %v\n", err)
		os.Exit(1)
	}
	beat, err := niimbot.DecodeHeartbeatReply(hb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Heartbeat decode failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Power level:   %s\n", formatByteField(beat.PowerLevel))
	fmt.Printf("Paper state:   %s\n", formatByteField(beat.PaperState))
	fmt.Printf("RFID state:    %s\n", formatByteField(beat.RFIDReadState))
	fmt.Printf("Lid state:     %s\n", formatByteField(beat.ClosingState))

	// Then the print-engine status
	if _, err := conn.Write(niimbot.MustEncodePacket(niimbot.NewGetStatus())); err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		os.Exit(2)
	}
	st, err := reader.await(niimbot.ReplyStatus, timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status: %v\n", err)
		os.Exit(1)
	}
	status, err := niimbot.DecodeStatusReply(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status decode failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Page:          %d\n", status.Page)
	fmt.Printf("Progress:      %d%% / %d%%\n", status.Progress1, status.Progress2)
	return nil
}

// formatByteField renders optional heartbeat fields; short reply variants
// omit some of them.
func formatByteField(v *uint8) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *v)
}
