// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/open-niim/niimctl/pkg/niimbot"
)

var sniffCapturePath string

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Display decoded printer traffic in human-readable format",
	Long: `Continuously decode and display printer frames as they arrive.

Each frame is shown with timestamp, opcode name, and decoded reply fields.
Frames that fail shape validation get an anomaly line, so firmware quirks
stand out. With --capture the raw traffic is also written to a CBOR trace
file for later inspection with the replay command.

Supports BLE, serial and WebSocket connections.`,
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
	sniffCmd.Flags().StringVar(&sniffCapturePath, "capture", "", "Write raw traffic to a CBOR trace file")
}

func runSniff(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	var trace *niimbot.TraceWriter
	if sniffCapturePath != "" {
		f, err := os.Create(sniffCapturePath)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %v", err)
		}
		defer f.Close()
		trace = niimbot.NewTraceWriter(f)
	}

	fmt.Printf("Niimctl - Link Sniffer\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if sniffCapturePath != "" {
		fmt.Printf("Capture: %s\n", sniffCapturePath)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := niimbot.NewDecoder()
	stats := niimbot.NewStatistics()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// A read error usually means the connection is permanently
			// closed - print the tally and exit gracefully
			if err == ErrConnectionClosed {
				log.Printf("Connection closed")
				fmt.Printf("\n%s", stats.String())
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		if trace != nil {
			if err := trace.Record(niimbot.DirIn, buf[:n]); err != nil {
				log.Printf("Capture write failed: %v", err)
			}
		}

		for i := 0; i < n; i++ {
			packet, err := decoder.DecodeByte(buf[i])
			if err != nil {
				stats.Update(nil, err, nil)
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if packet != nil {
				verrs := niimbot.ValidatePacket(packet)
				stats.Update(packet, nil, verrs)
				fmt.Print(niimbot.FormatPacket(packet))
				for _, v := range verrs {
					fmt.Printf("  [ANOMALY] %s\n", v.Message)
				}
			}
		}
	}
}
