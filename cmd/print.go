// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/open-niim/niimctl/pkg/niimbot"
)

var (
	printImagePath string
	printTest      bool
	printCopies    int
	printCapture   string
)

var printCmd = &cobra.Command{
	Use:   "print",
	Short: "Print a PNG image or a test pattern",
	Long: `Print a PNG image or a built-in test pattern.

The image must be a PNG matching the label width in dots (one image pixel
per print dot). Black, fully opaque pixels print; everything else stays
white. Consecutive identical rows are sent once with a repeat count, so
flat regions cost almost nothing on the wire.

The job is transferred through the paced transmission queue and the command
waits for the printer to report the page complete before exiting (or moving
on to the next copy).

Exit codes:
  0 - Print completed
  1 - Print failed or was rejected
  2 - Connection error`,
	RunE: runPrint,
}

func init() {
	rootCmd.AddCommand(printCmd)
	printCmd.Flags().StringVarP(&printImagePath, "image", "i", "", "PNG file to print")
	printCmd.Flags().BoolVar(&printTest, "test", false, "Print the built-in test pattern")
	printCmd.Flags().IntVar(&printCopies, "copies", 1, "Number of copies to print")
	printCmd.Flags().StringVar(&printCapture, "capture", "", "Write a CBOR trace of the transfer to a file (inspect with replay)")
	registerSessionFlags(printCmd)
}

func runPrint(cmd *cobra.Command, args []string) error {
	if printImagePath == "" && !printTest {
		return fmt.Errorf("either --image or --test is required")
	}
	if printImagePath != "" && printTest {
		return fmt.Errorf("--image and --test are mutually exclusive")
	}
	if printCopies < 1 {
		return fmt.Errorf("--copies must be at least 1")
	}

	cfg, err := sessionConfig()
	if err != nil {
		return err
	}

	if printCapture != "" {
		f, err := os.Create(printCapture)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %v", err)
		}
		defer f.Close()
		cfg.Trace = niimbot.NewTraceWriter(f)
	}

	// Build the page before touching the printer
	var rows []niimbot.Row
	pageHeight := labelHeight
	if printTest {
		rows = testPattern(labelWidth, labelHeight)
	} else {
		rows, pageHeight, err = loadLabelImage(printImagePath, labelWidth)
		if err != nil {
			return err
		}
	}
	job := niimbot.Job{Width: uint8(labelWidth), Height: uint8(pageHeight), Rows: rows}

	states := make(chan niimbot.State, 8)
	cfg.OnState = func(st niimbot.State) {
		select {
		case states <- st:
		default:
		}
	}
	cfg.OnStatus = func(st niimbot.StatusReply) {
		fmt.Printf("  page %d, progress %d%%/%d%%\n", st.Page, st.Progress1, st.Progress2)
	}

	fmt.Printf("Niimctl - Print\n")
	fmt.Printf("Page: %dx%d dots, %d rows, %d copies, density %d\n\n",
		labelWidth, pageHeight, len(rows), printCopies, printDensity)

	var sess *niimbot.Session
	dial := func(ctx context.Context) (niimbot.Transport, error) {
		conn, info, err := OpenConnection()
		if err != nil {
			return nil, err
		}
		fmt.Printf("Connection: %s\n", info)
		return newSessionTransport(conn, func(data []byte) {
			sess.HandleInbound(data)
		}), nil
	}
	sess = niimbot.NewSession(dial, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer sess.Close()

	if err := sess.Configure(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Configure failed: %v\n", err)
		os.Exit(1)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	for i := 1; i <= printCopies; i++ {
		fmt.Printf("Printing copy %d/%d\n", i, printCopies)
		if err := sess.Submit(job); err != nil {
			fmt.Fprintf(os.Stderr, "Submit failed: %v\n", err)
			os.Exit(1)
		}
		if err := waitIdle(states, runErr); err != nil {
			fmt.Fprintf(os.Stderr, "Print failed: %v\n", err)
			os.Exit(1)
		}
	}

	cancel()
	<-runErr

	stats := sess.Stats()
	fmt.Printf("\n--- Transfer statistics ---\n")
	fmt.Printf("%d frames sent (%d bytes), %d send failures, %d replies decoded\n",
		stats.FramesSent, stats.BytesSent, stats.SendFailures, stats.RepliesDecoded)
	return nil
}

// waitIdle blocks until the session settles back to idle, meaning the
// submitted page finished its teardown handshake.
func waitIdle(states <-chan niimbot.State, runErr <-chan error) error {
	for {
		select {
		case st := <-states:
			if st == niimbot.StateIdle {
				return nil
			}
		case err := <-runErr:
			if err != nil {
				return err
			}
			return fmt.Errorf("control loop exited before the job finished")
		}
	}
}
