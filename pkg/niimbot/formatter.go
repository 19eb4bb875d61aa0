// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import (
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string, one line of
// header plus decoded detail lines for known replies.
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	name := FormatOpcode(p.Opcode())

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, name, p.Opcode(), p.Len())
	if p.Len() > 0 {
		result += fmt.Sprintf("  Body: %s\n", FormatBytes(p.Body()))
	}
	if detail := formatReplyDetail(p); detail != "" {
		result += detail
	}
	return result
}

// FormatOpcode returns the human-readable name for an opcode.
func FormatOpcode(opcode uint8) string {
	switch opcode {
	// Commands (host → printer)
	case CmdStartExchange:
		return "START_EXCHANGE"
	case CmdSetDimensions:
		return "SET_DIMENSIONS"
	case CmdSetDensity:
		return "SET_DENSITY"
	case CmdSetLabelType:
		return "SET_LABEL_TYPE"
	case CmdPrintWhitespace:
		return "PRINT_WHITESPACE"
	case CmdPrintLine:
		return "PRINT_LINE"
	case CmdCalibrateGap:
		return "CALIBRATE_GAP"
	case CmdGetStatus:
		return "GET_STATUS"
	case CmdEndExchange:
		return "END_EXCHANGE"
	case CmdEndPrint:
		return "END_PRINT"

	// Shared request/reply opcodes
	case CmdHeartbeat:
		return "HEARTBEAT"
	case CmdGetRFID:
		return "RFID"

	// Replies (printer → host)
	case ReplyStatus:
		return "STATUS_REPLY"
	case ReplySetDensity:
		return "SET_DENSITY_ACK"
	case ReplySetLabelType:
		return "SET_LABEL_TYPE_ACK"
	case ReplyError:
		return "DEVICE_ERROR"
	case ReplyNotSupported:
		return "NOT_SUPPORTED"

	default:
		return "UNKNOWN"
	}
}

// FormatBytes renders a byte slice as space-separated hex pairs.
func FormatBytes(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// formatReplyDetail renders decoded fields for known reply packets.
func formatReplyDetail(p *Packet) string {
	switch p.Opcode() {
	case ReplyStatus:
		status, err := DecodeStatusReply(p)
		if err != nil {
			return fmt.Sprintf("  (undecodable: %v)\n", err)
		}
		return fmt.Sprintf("  Page: %d, Progress: %d/%d\n", status.Page, status.Progress1, status.Progress2)

	case ReplyHeartbeat:
		hb, err := DecodeHeartbeatReply(p)
		if err != nil {
			return fmt.Sprintf("  (undecodable: %v)\n", err)
		}
		var fields []string
		if hb.ClosingState != nil {
			fields = append(fields, fmt.Sprintf("lid=%d", *hb.ClosingState))
		}
		if hb.PowerLevel != nil {
			fields = append(fields, fmt.Sprintf("power=%d", *hb.PowerLevel))
		}
		if hb.PaperState != nil {
			fields = append(fields, fmt.Sprintf("paper=%d", *hb.PaperState))
		}
		if hb.RFIDReadState != nil {
			fields = append(fields, fmt.Sprintf("rfid=%d", *hb.RFIDReadState))
		}
		if len(fields) == 0 {
			return ""
		}
		return "  " + strings.Join(fields, ", ") + "\n"

	case ReplyRFID:
		tag, err := DecodeRFIDReply(p)
		if err != nil {
			return fmt.Sprintf("  (undecodable: %v)\n", err)
		}
		if tag == nil {
			return "  (no tag)\n"
		}
		return fmt.Sprintf("  UUID: %s, Barcode: %s, Serial: %s, Used: %d/%dmm, Type: %d\n",
			tag.UUID, tag.Barcode, tag.Serial, tag.UsedLength, tag.TotalLength, tag.Type)

	case ReplyError:
		return "  Device rejected the last command\n"

	default:
		return ""
	}
}
