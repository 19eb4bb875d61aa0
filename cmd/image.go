// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/open-niim/niimctl/pkg/niimbot"
)

// inkAt reports whether a pixel prints black. Transparent pixels stay white
// so alpha-masked PNGs come out as expected.
func inkAt(img image.Image, x, y int) bool {
	r, g, b, a := img.At(x, y).RGBA()
	return a >= 0x8000 && r < 0x8000 && g < 0x8000 && b < 0x8000
}

// packImage converts an image to one packed line per dot row, MSB first.
// The image must match the label width exactly; scaling and dithering are
// better done by whatever produced the PNG.
func packImage(img image.Image, width int) ([][]byte, error) {
	bounds := img.Bounds()
	if bounds.Dx() != width {
		return nil, fmt.Errorf("image is %d dots wide, label takes %d", bounds.Dx(), width)
	}
	if bounds.Dy() == 0 {
		return nil, fmt.Errorf("image has no rows")
	}
	if bounds.Dy() > 255 {
		return nil, fmt.Errorf("image is %d rows tall, the protocol addresses at most 255", bounds.Dy())
	}

	stride := (width + 7) / 8
	lines := make([][]byte, bounds.Dy())
	for y := 0; y < bounds.Dy(); y++ {
		line := make([]byte, stride)
		for x := 0; x < width; x++ {
			if inkAt(img, bounds.Min.X+x, bounds.Min.Y+y) {
				line[x/8] |= 0x80 >> (x % 8)
			}
		}
		lines[y] = line
	}
	return lines, nil
}

func isBlank(line []byte) bool {
	for _, b := range line {
		if b != 0 {
			return false
		}
	}
	return true
}

// buildRows collapses consecutive identical lines into one row with a
// thickness, and blank runs into whitespace rows carrying no bitmap. This is
// what keeps simple labels well under the pacing budget.
func buildRows(lines [][]byte) []niimbot.Row {
	rows := make([]niimbot.Row, 0, len(lines))
	for y := 0; y < len(lines); {
		run := 1
		for y+run < len(lines) && run < 255 && bytes.Equal(lines[y+run], lines[y]) {
			run++
		}

		row := niimbot.Row{Offset: uint8(y), Thickness: uint8(run)}
		if !isBlank(lines[y]) {
			row.Bitmap = lines[y]
		}
		rows = append(rows, row)
		y += run
	}
	return rows
}

// loadLabelImage reads a PNG and converts it to print rows. Returns the rows
// and the image height in dot rows.
func loadLabelImage(path string, width int) ([]niimbot.Row, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open image: %v", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode PNG: %v", err)
	}

	lines, err := packImage(img, width)
	if err != nil {
		return nil, 0, err
	}
	return buildRows(lines), len(lines), nil
}

// testPattern builds a bordered diagonal-stripe page, handy for checking
// alignment and density without preparing an image.
func testPattern(width, height int) []niimbot.Row {
	stride := (width + 7) / 8
	lines := make([][]byte, height)
	for y := 0; y < height; y++ {
		line := make([]byte, stride)
		for x := 0; x < width; x++ {
			border := x < 2 || x >= width-2 || y < 2 || y >= height-2
			stripe := (x+y)%16 < 2
			if border || stripe {
				line[x/8] |= 0x80 >> (x % 8)
			}
		}
		lines[y] = line
	}
	return buildRows(lines)
}
