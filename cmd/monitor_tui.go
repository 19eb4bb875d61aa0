// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/open-niim/niimctl/pkg/niimbot"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	heartbeatIntervalSeconds = 2 // Keepalive probe cadence while monitoring
)

// Focus states
const (
	focusReplyList = iota
	focusDensityInput
	focusApplyButton
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// replyItem is one opcode tally in the reply list
type replyItem struct {
	opcode   uint8
	count    uint64
	lastSeen time.Time
}

// Implement list.Item interface
func (r replyItem) Title() string {
	return fmt.Sprintf("%s (0x%02X)", niimbot.FormatOpcode(r.opcode), r.opcode)
}
func (r replyItem) Description() string {
	return fmt.Sprintf("%d seen, last %s", r.count, r.lastSeen.Format("15:04:05"))
}
func (r replyItem) FilterValue() string { return niimbot.FormatOpcode(r.opcode) }

// printerSnapshot is the latest decoded view of the printer
type printerSnapshot struct {
	power     *uint8
	paper     *uint8
	rfidState *uint8
	lid       *uint8
	page      uint16
	progress1 uint8
	progress2 uint8
	hasStatus bool
	tag       *niimbot.RFIDTag
	lastSeen  time.Time
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	// Connection manager (for sending probes and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Printer tracking
	stats    *niimbot.Statistics
	snapshot printerSnapshot

	// Reply tally
	replyCounts map[uint8]*replyItem
	replyOrder  []uint8
	replyList   list.Model

	// Control
	densityInput textinput.Model
	focusedField int

	// Event log
	errorLog      []errorLogEntry
	maxLogEntries int

	// UI state
	width          int
	height         int
	synchronized   bool
	connectionLost bool
	quitting       bool

	// Keepalive state
	lastHeartbeat time.Time
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type monitorDataMsg struct {
	packet           *niimbot.Packet
	decodeErr        error
	validationErrors []niimbot.ValidationError
}

type monitorSyncMsg struct {
	invalidBytes int
}

type monitorBatchMsg struct {
	messages []monitorDataMsg
	syncMsg  *monitorSyncMsg
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(connMgr *connectionManager, connInfo string) monitorModel {
	// Initialize text input for density
	ti := textinput.New()
	ti.Placeholder = strconv.Itoa(niimbot.DefaultDensity)
	ti.CharLimit = 1
	ti.Width = 4

	// Initialize reply list with empty items
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	replyList := list.New([]list.Item{}, delegate, 30, 10)
	replyList.Title = "Replies"
	replyList.SetShowStatusBar(false)
	replyList.SetShowHelp(false)
	replyList.SetFilteringEnabled(false)

	return monitorModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		stats:         niimbot.NewStatistics(),
		replyCounts:   make(map[uint8]*replyItem),
		replyOrder:    make([]uint8, 0),
		replyList:     replyList,
		densityInput:  ti,
		focusedField:  focusReplyList,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		synchronized:  false,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case monitorTickMsg:
		m.stats.CalculateRates()
		// Keep the heartbeat running so the snapshot stays fresh
		if !m.connectionLost && time.Since(m.lastHeartbeat) >= heartbeatIntervalSeconds*time.Second {
			m.lastHeartbeat = time.Now()
			m.sendHeartbeat()
		}
		return m, monitorTickCmd()

	case monitorBatchMsg:
		if msg.syncMsg != nil {
			m.handleSync(*msg.syncMsg)
		}
		for _, data := range msg.messages {
			m.processMonitorData(data)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.synchronized = false
		m.addLogEntry("Reconnected", false)
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusDensityInput {
		m.densityInput, cmd = m.densityInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.focusedField == focusReplyList {
		m.replyList, cmd = m.replyList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusDensityInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		if m.focusedField == focusDensityInput || m.focusedField == focusApplyButton {
			return m.sendDensityCommand()
		}

	case "h":
		if m.focusedField != focusDensityInput {
			m.sendProbe(niimbot.NewHeartbeat(), "heartbeat")
			return m, nil
		}

	case "s":
		if m.focusedField != focusDensityInput {
			m.sendProbe(niimbot.NewGetStatus(), "status")
			return m, nil
		}

	case "r":
		if m.focusedField != focusDensityInput {
			m.sendProbe(niimbot.NewGetRFID(), "rfid")
			return m, nil
		}

	case "c":
		if m.focusedField != focusDensityInput {
			m.sendProbe(niimbot.NewCalibrateGap(), "calibrate")
			return m, nil
		}

	case "up", "k":
		if m.focusedField == focusReplyList {
			m.replyList, _ = m.replyList.Update(msg)
		}

	case "down", "j":
		if m.focusedField == focusReplyList {
			m.replyList, _ = m.replyList.Update(msg)
		}
	}

	// Pass through to focused component
	if m.focusedField == focusDensityInput {
		var cmd tea.Cmd
		m.densityInput, cmd = m.densityInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *monitorModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	// For now, pass mouse events to the list
	m.replyList, _ = m.replyList.Update(msg)

	return m, nil
}

func (m *monitorModel) cycleFocus(delta int) *monitorModel {
	maxFocus := focusApplyButton
	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	// Update focus state
	if m.focusedField == focusDensityInput {
		m.densityInput.Focus()
	} else {
		m.densityInput.Blur()
	}

	return m
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	helpText := "q=quit Tab=switch h/s/r/c=probe"
	s.WriteString(titleStyle.Render("NIIMCTL MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", connStatus, helpText)))
	s.WriteString("\n")

	// Last reply age (below header)
	if !m.snapshot.lastSeen.IsZero() {
		s.WriteString(fmt.Sprintf(" %s %s",
			statsLabelStyle.Render("Last reply:"),
			statsValueStyle.Render(fmt.Sprintf("%.0fs ago", time.Since(m.snapshot.lastSeen).Seconds()))))
	}
	s.WriteString("\n\n")

	if !m.synchronized {
		// Waiting mode view
		s.WriteString(warningStyle.Render("Waiting for printer traffic..."))
		s.WriteString("\n\n")
		s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))
	} else {
		// Normal monitor view
		s.WriteString(m.renderMonitorView(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, headerStyle, boxStyle, focusedBoxStyle, buttonStyle, focusedButtonStyle))
	}

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderMonitorView(statsLabelStyle, statsValueStyle, errorStyle, warningStyle, headerStyle, boxStyle, focusedBoxStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	// Layout: left panel (reply tally) | right panel (printer)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	// Reply list panel
	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusReplyList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	replyPanel := listStyle.Render(m.replyList.View())

	// Printer panel
	printerContent := m.renderPrinterPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle)
	printerStyle := boxStyle.Width(rightWidth)
	printerPanel := printerStyle.Render(printerContent)

	// Join panels horizontally
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, replyPanel, " ", printerPanel))
	s.WriteString("\n\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

func (m monitorModel) renderPrinterPanel(statsLabelStyle, statsValueStyle, headerStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	if m.snapshot.lastSeen.IsZero() {
		s.WriteString(headerStyle.Render("Waiting for first heartbeat..."))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Power:"), statsValueStyle.Render(formatByteField(m.snapshot.power))))
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Paper:"), statsValueStyle.Render(formatByteField(m.snapshot.paper))))
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("RFID:"), statsValueStyle.Render(formatByteField(m.snapshot.rfidState))))
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Lid:"), statsValueStyle.Render(formatByteField(m.snapshot.lid))))

	if m.snapshot.hasStatus {
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Page:"),
			statsValueStyle.Render(fmt.Sprintf("%d (%d%%/%d%%)", m.snapshot.page, m.snapshot.progress1, m.snapshot.progress2))))
	}
	if m.snapshot.tag != nil {
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Roll:"),
			statsValueStyle.Render(fmt.Sprintf("%s %d/%d mm", m.snapshot.tag.Barcode, m.snapshot.tag.UsedLength, m.snapshot.tag.TotalLength))))
	}
	s.WriteString("\n")

	// Density control
	s.WriteString(statsLabelStyle.Render("Density: "))
	if m.focusedField == focusDensityInput {
		s.WriteString(m.densityInput.View())
	} else {
		// Show as plain text when not focused
		val := m.densityInput.Value()
		if val == "" {
			val = m.densityInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("\n\n")

	// Apply button
	btnText := "[ Apply Density ]"
	if m.focusedField == focusApplyButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}

	return s.String()
}

func (m monitorModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	m.stats.CalculateRates()
	var validPercent, errorPercent float64
	if m.stats.RepliesDecoded > 0 {
		validPercent = float64(m.stats.ValidReplies) * 100.0 / float64(m.stats.RepliesDecoded)
		totalErrors := m.stats.ChecksumErrors + m.stats.DecodeErrors + m.stats.MalformedReplies + m.stats.DeviceErrors + m.stats.UnknownReplies
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.RepliesDecoded)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Replies:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.RepliesDecoded)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		statsLabelStyle.Render("Errors:"), func() string {
			if errorPercent > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
			}
			return statsValueStyle.Render("0.0%")
		}(),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkt/s", m.stats.ReplyRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m monitorModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	// Calculate available height for log
	logHeight := 8
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}

	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) handleSync(sync monitorSyncMsg) {
	m.synchronized = true
	if sync.invalidBytes > 0 {
		m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", sync.invalidBytes), false)
	} else {
		m.addLogEntry("Synchronized", false)
	}
}

func (m *monitorModel) processMonitorData(msg monitorDataMsg) {
	if msg.decodeErr != nil {
		if m.synchronized {
			m.stats.Update(nil, msg.decodeErr, nil)
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		}
		return
	}

	if msg.packet == nil {
		return
	}

	m.stats.Update(msg.packet, nil, msg.validationErrors)
	m.recordReply(msg.packet.Opcode())

	// Process packet based on opcode
	switch msg.packet.Opcode() {
	case niimbot.ReplyHeartbeat:
		m.handleHeartbeatReply(msg.packet)

	case niimbot.ReplyStatus:
		m.handleStatusReply(msg.packet)

	case niimbot.ReplyRFID:
		m.handleRFIDReply(msg.packet)

	case niimbot.ReplySetDensity:
		m.addLogEntry("Density change acknowledged", false)

	case niimbot.ReplySetLabelType:
		m.addLogEntry("Label type change acknowledged", false)

	case niimbot.ReplyError:
		m.addLogEntry(fmt.Sprintf("Printer error: %s", niimbot.FormatBytes(msg.packet.Body())), true)

	case niimbot.ReplyNotSupported:
		m.addLogEntry("Printer rejected the last command (not supported)", true)

	default:
		// Other opcodes - just log if there are validation errors
		if len(msg.validationErrors) > 0 {
			for _, err := range msg.validationErrors {
				m.addLogEntry(fmt.Sprintf("%s: %s", niimbot.FormatOpcode(msg.packet.Opcode()), err.Message), true)
			}
		}
	}
}

func (m *monitorModel) handleHeartbeatReply(packet *niimbot.Packet) {
	beat, err := niimbot.DecodeHeartbeatReply(packet)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Heartbeat decode failed: %v", err), true)
		return
	}

	// Log paper state transitions, they flag out-of-media and lid events
	if beat.PaperState != nil && m.snapshot.paper != nil && *beat.PaperState != *m.snapshot.paper {
		m.addLogEntry(fmt.Sprintf("Paper state: %d -> %d", *m.snapshot.paper, *beat.PaperState), false)
	}

	m.snapshot.power = beat.PowerLevel
	m.snapshot.paper = beat.PaperState
	m.snapshot.rfidState = beat.RFIDReadState
	m.snapshot.lid = beat.ClosingState
	m.snapshot.lastSeen = time.Now()
}

func (m *monitorModel) handleStatusReply(packet *niimbot.Packet) {
	status, err := niimbot.DecodeStatusReply(packet)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Status decode failed: %v", err), true)
		return
	}

	if !m.snapshot.hasStatus || m.snapshot.page != status.Page {
		m.addLogEntry(fmt.Sprintf("Print engine on page %d", status.Page), false)
	}

	m.snapshot.hasStatus = true
	m.snapshot.page = status.Page
	m.snapshot.progress1 = status.Progress1
	m.snapshot.progress2 = status.Progress2
	m.snapshot.lastSeen = time.Now()
}

func (m *monitorModel) handleRFIDReply(packet *niimbot.Packet) {
	tag, err := niimbot.DecodeRFIDReply(packet)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("RFID decode failed: %v", err), true)
		return
	}
	if tag == nil {
		m.snapshot.tag = nil
		m.addLogEntry("No RFID tag present", false)
		return
	}

	m.snapshot.tag = tag
	m.addLogEntry(fmt.Sprintf("RFID tag: %s (%d of %d mm used)", tag.Barcode, tag.UsedLength, tag.TotalLength), false)
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// sendProbe sends a one-off command frame and logs the outcome
func (m *monitorModel) sendProbe(pkt *niimbot.Packet, name string) {
	if m.connectionLost {
		m.addLogEntry("Cannot send probe: connection lost", true)
		return
	}

	conn := m.connMgr.getConn()
	if conn == nil {
		m.addLogEntry("Cannot send probe: connection lost", true)
		return
	}

	wireBytes := niimbot.MustEncodePacket(pkt)
	if _, err := conn.Write(wireBytes); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to send %s: %v", name, err), true)
		return
	}

	m.stats.RecordSend(len(wireBytes))
	m.addLogEntry(fmt.Sprintf("Sent %s probe", name), false)
}

// sendHeartbeat fires the periodic keepalive without logging, the reply
// tally already shows liveness
func (m *monitorModel) sendHeartbeat() {
	conn := m.connMgr.getConn()
	if conn == nil {
		return // Silently fail - connection loss is handled elsewhere
	}

	wireBytes := niimbot.MustEncodePacket(niimbot.NewHeartbeat())
	if _, err := conn.Write(wireBytes); err != nil {
		return // Silently fail - next tick will retry
	}
	m.stats.RecordSend(len(wireBytes))
}

func (m *monitorModel) sendDensityCommand() (tea.Model, tea.Cmd) {
	// Don't allow control commands while connection is lost
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	// Parse density from input
	densityStr := m.densityInput.Value()
	if densityStr == "" {
		densityStr = m.densityInput.Placeholder
	}

	level, err := strconv.ParseUint(densityStr, 10, 8)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid density value: %s", densityStr), true)
		return m, nil
	}

	if level < niimbot.MinDensity || level > niimbot.MaxDensity {
		m.addLogEntry(fmt.Sprintf("Density must be between %d and %d", niimbot.MinDensity, niimbot.MaxDensity), true)
		return m, nil
	}

	conn := m.connMgr.getConn()
	if conn == nil {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	wireBytes := niimbot.MustEncodePacket(niimbot.NewSetDensity(uint8(level)))
	if _, err := conn.Write(wireBytes); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to send command: %v", err), true)
		return m, nil
	}

	m.stats.RecordSend(len(wireBytes))
	m.addLogEntry(fmt.Sprintf("Sent SET_DENSITY (level=%d)", level), false)
	return m, nil
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *monitorModel) recordReply(opcode uint8) {
	item, exists := m.replyCounts[opcode]
	if !exists {
		item = &replyItem{opcode: opcode}
		m.replyCounts[opcode] = item
		m.replyOrder = append(m.replyOrder, opcode)
	}
	item.count++
	item.lastSeen = time.Now()
	m.updateReplyList()
}

func (m *monitorModel) updateReplyList() {
	items := make([]list.Item, len(m.replyOrder))
	for i, op := range m.replyOrder {
		items[i] = *m.replyCounts[op]
	}
	m.replyList.SetItems(items)
}

func (m *monitorModel) updateListSize() {
	// Adjust list size based on terminal size
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.replyList.SetSize(28, listHeight)
}
