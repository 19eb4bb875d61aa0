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

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by sending heartbeat probes",
	Long: `Send heartbeat packets to the printer and wait for replies.

This is useful for verifying:
  - The connection is established (BLE, serial or WebSocket bridge)
  - Frames survive the transport intact
  - The printer firmware is responsive

Each reply is decoded and the round-trip time reported.

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Niimctl - Heartbeat Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	reader := newReplyReader(conn)
	wire := niimbot.MustEncodePacket(niimbot.NewHeartbeat())

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		if _, err := conn.Write(wire); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		pkt, err := reader.await(niimbot.ReplyHeartbeat, time.Duration(pingTimeout)*time.Second)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
			continue
		}

		rtt := time.Since(startTime)
		beat, err := niimbot.DecodeHeartbeatReply(pkt)
		if err != nil {
			fmt.Printf("reply %d bytes (undecoded variant), rtt=%v\n",
				pkt.Len(), rtt.Round(time.Millisecond))
			successCount++
			continue
		}

		fmt.Printf("reply power=%s paper=%s, rtt=%v\n",
			formatByteField(beat.PowerLevel), formatByteField(beat.PaperState),
			rtt.Round(time.Millisecond))
		successCount++

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d replies received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
