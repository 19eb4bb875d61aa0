// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/open-niim/niimctl/pkg/niimbot"
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Decode and display a captured traffic trace",
	Long: `Decode a CBOR trace file captured with sniff --capture or a serving
session and display the traffic in human-readable form.

Each record is replayed through the frame decoder in capture order, with
outbound and inbound traffic kept on separate decoders so interleaved
chunks cannot corrupt each other. This is the main tool for post-mortem
analysis of a misbehaving print run.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open trace: %v", err)
	}
	defer f.Close()

	records, err := niimbot.ReadTrace(f)
	if err != nil {
		// A truncated tail is common when a capture was cut short;
		// show what decoded before the error
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("trace contains no records")
	}

	fmt.Printf("Niimctl - Trace Replay\n")
	fmt.Printf("File: %s (%d records)\n\n", args[0], len(records))

	// One decoder per direction, interleaved chunks stay consistent
	outDec := niimbot.NewDecoder()
	inDec := niimbot.NewDecoder()
	stats := niimbot.NewStatistics()

	for _, rec := range records {
		arrow := "<-"
		decoder := inDec
		if rec.Dir == niimbot.DirOut {
			arrow = "->"
			decoder = outDec
		}

		fmt.Printf("%s %s %s\n", rec.Time().Format("15:04:05.000000"), arrow,
			niimbot.FormatBytes(rec.Data))

		for _, b := range rec.Data {
			packet, err := decoder.DecodeByte(b)
			if err != nil {
				if rec.Dir == niimbot.DirIn {
					stats.Update(nil, err, nil)
				}
				fmt.Printf("   [ERROR] %v\n", err)
				continue
			}
			if packet == nil {
				continue
			}

			if rec.Dir == niimbot.DirIn {
				verrs := niimbot.ValidatePacket(packet)
				stats.Update(packet, nil, verrs)
				for _, v := range verrs {
					fmt.Printf("   [ANOMALY] %s\n", v.Message)
				}
			} else {
				stats.RecordSend(len(rec.Data))
			}
			fmt.Printf("   %s (0x%02X) len=%d\n",
				niimbot.FormatOpcode(packet.Opcode()), packet.Opcode(), packet.Len())
		}
	}

	fmt.Printf("\n%s", stats.String())
	return nil
}
