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

var rfidTimeout int

var rfidCmd = &cobra.Command{
	Use:   "rfid",
	Short: "Read the RFID tag of the loaded label roll",
	Long: `Read the RFID tag embedded in the loaded label roll.

Genuine Niimbot rolls carry a tag describing the consumable: a UUID, the
printed barcode, a serial number, and the total/used tape length in
millimeters. Third-party rolls usually have no tag, which the printer
reports as an all-zero reply.

Exit codes:
  0 - Tag read (or no tag present)
  1 - Timed out waiting for a reply
  2 - Connection error`,
	RunE: runRFID,
}

func init() {
	rootCmd.AddCommand(rfidCmd)
	rfidCmd.Flags().IntVar(&rfidTimeout, "timeout", 5, "Timeout in seconds for the reply")
}

func runRFID(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Niimctl - RFID Tag\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	reader := newReplyReader(conn)

	if _, err := conn.Write(niimbot.MustEncodePacket(niimbot.NewGetRFID())); err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		os.Exit(2)
	}

	pkt, err := reader.await(niimbot.ReplyRFID, time.Duration(rfidTimeout)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "RFID: %v\n", err)
		os.Exit(1)
	}

	tag, err := niimbot.DecodeRFIDReply(pkt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "RFID decode failed: %v\n", err)
		os.Exit(1)
	}
	if tag == nil {
		fmt.Printf("No RFID tag present (third-party roll?)\n")
		return nil
	}

	fmt.Printf("UUID:         %s\n", tag.UUID)
	fmt.Printf("Barcode:      %s\n", tag.Barcode)
	fmt.Printf("Serial:       %s\n", tag.Serial)
	fmt.Printf("Total length: %d mm\n", tag.TotalLength)
	fmt.Printf("Used length:  %d mm\n", tag.UsedLength)
	fmt.Printf("Tag type:     %d\n", tag.Type)
	return nil
}
