// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The open-niim authors

package niimbot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// State identifies the session lifecycle phase.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateConfigured
	StatePrinting
	StateFinishing
	StateIdle
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateConfigured:
		return "configured"
	case StatePrinting:
		return "printing"
	case StateFinishing:
		return "finishing"
	case StateIdle:
		return "idle"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Transport is the boundary to the physical link. The engine only ever asks
// it to transmit a fully framed command; inbound bytes are pushed back by the
// transport owner through Session.HandleInbound.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// DialFunc establishes a transport to the printer. Implementations should
// return an error wrapping ErrEndpointNotFound when the peer is reachable but
// lacks the expected service endpoint, so the session can fail fast instead
// of retrying a printer that will never work.
type DialFunc func(ctx context.Context) (Transport, error)

// Row is one horizontal slice of a label image. An empty Bitmap prints
// whitespace for the covered rows instead of pixel data.
type Row struct {
	Offset    uint8
	Thickness uint8
	Bitmap    []byte
}

// Job is a complete print request. Rows are transmitted in slice order,
// top to bottom, exactly as supplied. Zero Width or Height fall back to the
// configured label dimensions.
type Job struct {
	Width  uint8
	Height uint8
	Rows   []Row
}

// queuedJob is a Job with every row already framed, so the control loop can
// bulk-enqueue without a failure path.
type queuedJob struct {
	width  uint8
	height uint8
	frames [][]byte
}

// Config carries the adjustable session parameters. Zero values are replaced
// with the corresponding defaults by NewSession; start from DefaultConfig and
// override fields as needed.
type Config struct {
	Density     uint8
	LabelWidth  uint8
	LabelHeight uint8

	SendInterval      time.Duration
	SettleDelay       time.Duration
	HeartbeatInterval time.Duration

	ConnectAttempts   int
	ConnectBackoff    time.Duration
	ConnectBackoffMax time.Duration
	MaxSendRetries    int
	InboundBuffer     int

	Logger zerolog.Logger
	Trace  *TraceWriter

	// Optional observation hooks, invoked from the control goroutine.
	// They must not call back into the session.
	OnStatus    func(StatusReply)
	OnHeartbeat func(HeartbeatReply)
	OnPacket    func(*Packet)
	OnState     func(State)
}

// DefaultConfig returns the stock parameter set.
func DefaultConfig() Config {
	return Config{
		Density:           DefaultDensity,
		LabelWidth:        DefaultLabelWidth,
		LabelHeight:       DefaultLabelHeight,
		SendInterval:      DefaultSendInterval,
		SettleDelay:       DefaultSettleDelay,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ConnectAttempts:   DefaultConnectAttempts,
		ConnectBackoff:    DefaultConnectBackoff,
		ConnectBackoffMax: DefaultConnectBackoffMax,
		MaxSendRetries:    DefaultMaxSendRetries,
		InboundBuffer:     DefaultInboundBuffer,
		Logger:            zerolog.Nop(),
	}
}

// Session drives one printer link through its lifecycle: connect, configure,
// paced line-by-line transfer, teardown, then a heartbeat loop that keeps the
// link warm until the next job.
//
// All session state is owned by a single control context: Connect, Configure
// and Run must be called sequentially from one goroutine, and Run must be the
// only caller once it starts. Submit, SendCommand, HandleInbound, State and
// Stats are safe from any goroutine; they hand data to the control loop
// through channels and atomics rather than touching its state.
//
// Sends are fire-and-forget: the protocol carries no acknowledgment the
// engine could gate on, so pacing intervals stand in for flow control and
// decoded replies are surfaced through the observation hooks only.
type Session struct {
	cfg  Config
	dial DialFunc
	log  zerolog.Logger

	state     atomic.Int32
	transport Transport

	queue   *TxQueue
	decoder *Decoder
	backoff *Backoff

	jobs     chan queuedJob
	controls chan *Packet
	inbound  chan []byte

	// Control-loop state. Touched only by Connect/Configure/Run/Close.
	pendingJob     *queuedJob
	pendingControl *Packet
	exchangeOpened bool
	inflight       []byte
	sendFailures   int

	stats   *Statistics
	statsMu sync.Mutex
}

// NewSession creates a session that will reach the printer through dial.
func NewSession(dial DialFunc, cfg Config) *Session {
	def := DefaultConfig()
	if cfg.Density == 0 {
		cfg.Density = def.Density
	}
	if cfg.LabelWidth == 0 {
		cfg.LabelWidth = def.LabelWidth
	}
	if cfg.LabelHeight == 0 {
		cfg.LabelHeight = def.LabelHeight
	}
	if cfg.SendInterval == 0 {
		cfg.SendInterval = def.SendInterval
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = def.ConnectAttempts
	}
	if cfg.ConnectBackoff == 0 {
		cfg.ConnectBackoff = def.ConnectBackoff
	}
	if cfg.ConnectBackoffMax == 0 {
		cfg.ConnectBackoffMax = def.ConnectBackoffMax
	}
	if cfg.MaxSendRetries == 0 {
		cfg.MaxSendRetries = def.MaxSendRetries
	}
	if cfg.InboundBuffer == 0 {
		cfg.InboundBuffer = def.InboundBuffer
	}

	s := &Session{
		cfg:      cfg,
		dial:     dial,
		log:      cfg.Logger,
		queue:    NewTxQueue(),
		decoder:  NewDecoder(),
		backoff:  NewBackoff(cfg.SendInterval, cfg.ConnectBackoffMax),
		jobs:     make(chan queuedJob, 1),
		controls: make(chan *Packet, 1),
		inbound:  make(chan []byte, cfg.InboundBuffer),
		stats:    NewStatistics(),
	}
	s.state.Store(int32(StateDisconnected))
	return s
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the link statistics with rates computed.
func (s *Session) Stats() Statistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	snap := *s.stats
	snap.CalculateRates()
	return snap
}

// Connect dials the printer with bounded retry and exponential backoff.
// An ErrEndpointNotFound from the dialer aborts immediately: the peer exists
// but is not the printer we expect, so retrying cannot help.
func (s *Session) Connect(ctx context.Context) error {
	if st := s.State(); st != StateDisconnected {
		return fmt.Errorf("%w: connect from %s", ErrBadState, st)
	}

	retry := NewBackoff(s.cfg.ConnectBackoff, s.cfg.ConnectBackoffMax)
	var lastErr error
	for attempt := 1; attempt <= s.cfg.ConnectAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := s.dial(ctx)
		if err == nil {
			s.transport = t
			s.decoder.Reset()
			s.setState(StateConnected)
			s.log.Info().Int("attempt", attempt).Msg("connected")
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrEndpointNotFound) {
			s.log.Error().Err(err).Msg("endpoint lookup failed")
			return err
		}
		s.log.Warn().Err(err).
			Int("attempt", attempt).
			Int("max", s.cfg.ConnectAttempts).
			Msg("connect failed")
		if attempt < s.cfg.ConnectAttempts {
			if err := retry.Sleep(ctx); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("connect: %d attempts exhausted: %w", s.cfg.ConnectAttempts, lastErr)
}

// Configure issues the control sequence that gates printing: set-label-type,
// set-density, get-print-status, in that order, each paced by the configured
// send interval.
func (s *Session) Configure(ctx context.Context) error {
	if st := s.State(); st != StateConnected {
		return fmt.Errorf("%w: configure from %s", ErrBadState, st)
	}

	steps := []*Packet{
		NewSetLabelType(),
		NewSetDensity(s.cfg.Density),
		NewGetStatus(),
	}
	for _, pkt := range steps {
		if err := s.sendPacket(pkt); err != nil {
			return fmt.Errorf("configure %s: %w", FormatOpcode(pkt.Opcode()), err)
		}
		if err := sleepCtx(ctx, s.cfg.SendInterval); err != nil {
			return err
		}
	}
	s.setState(StateConfigured)
	return nil
}

// Submit hands a print job to the control loop. Rows are framed here so
// oversize bitmaps surface to the caller as ErrFramingViolation instead of
// failing mid-transfer. At most one job may be pending at a time; a second
// submission before pickup returns ErrJobPending.
func (s *Session) Submit(job Job) error {
	width, height := job.Width, job.Height
	if width == 0 {
		width = s.cfg.LabelWidth
	}
	if height == 0 {
		height = s.cfg.LabelHeight
	}

	frames := make([][]byte, 0, len(job.Rows))
	for i, row := range job.Rows {
		var pkt *Packet
		if len(row.Bitmap) == 0 {
			pkt = NewPrintWhitespace(row.Offset, row.Thickness)
		} else {
			pkt = NewPrintLine(row.Offset, row.Thickness, row.Bitmap)
		}
		frame, err := EncodePacket(pkt)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		frames = append(frames, frame)
	}

	select {
	case s.jobs <- queuedJob{width: width, height: height, frames: frames}:
		return nil
	default:
		return ErrJobPending
	}
}

// SendCommand hands a one-shot control command (calibration, a status poll)
// to the control loop, which transmits it on the next paced tick once no job
// transfer is in progress. At most one command may be pending at a time; a
// second submission before pickup returns ErrCommandPending.
func (s *Session) SendCommand(pkt *Packet) error {
	select {
	case s.controls <- pkt:
		return nil
	default:
		return ErrCommandPending
	}
}

// HandleInbound is the transport receive callback. It copies the chunk and
// hands it to the control loop; when the loop is too far behind the chunk is
// dropped and counted rather than blocking the transport reader.
func (s *Session) HandleInbound(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case s.inbound <- buf:
	default:
		s.statsMu.Lock()
		s.stats.RecordInboundDrop()
		s.statsMu.Unlock()
		s.log.Warn().Int("len", len(data)).Msg("inbound buffer full, chunk dropped")
	}
}

// Run is the control loop. It pumps the transmission queue one frame per
// tick, advances the session through print teardown when the queue drains,
// heartbeats while idle, and picks up submitted jobs. It returns nil when ctx
// is cancelled and an error when the link is declared lost after repeated
// send failures.
func (s *Session) Run(ctx context.Context) error {
	if st := s.State(); st != StateConfigured && st != StateIdle {
		return fmt.Errorf("%w: run from %s", ErrBadState, st)
	}

	timer := time.NewTimer(s.cfg.SendInterval)
	defer timer.Stop()
	for {
		// Leave a pending job or command parked until the loop has
		// consumed the current one; a nil channel never selects.
		jobs := s.jobs
		if s.pendingJob != nil {
			jobs = nil
		}
		controls := s.controls
		if s.pendingControl != nil {
			controls = nil
		}

		select {
		case <-ctx.Done():
			return nil
		case data := <-s.inbound:
			s.processInbound(data)
		case job := <-jobs:
			s.pendingJob = &job
			timer.Reset(0)
		case pkt := <-controls:
			s.pendingControl = pkt
			timer.Reset(0)
		case <-timer.C:
			delay, err := s.tick()
			if err != nil {
				return err
			}
			timer.Reset(delay)
		}
	}
}

// Close tears down the transport and resets the session to Disconnected.
// It must not race Run; cancel the Run context first.
func (s *Session) Close() error {
	s.teardown()
	return nil
}

// tick performs at most one send and returns the delay before the next one.
func (s *Session) tick() (time.Duration, error) {
	switch s.State() {
	case StateConfigured, StateIdle:
		if s.pendingControl != nil {
			pkt := s.pendingControl
			if err := s.sendPacket(pkt); err != nil {
				return s.failDelay(err)
			}
			s.pendingControl = nil
			return s.cfg.SendInterval, nil
		}
		if s.pendingJob != nil {
			return s.advanceJobStart()
		}
		if s.State() == StateIdle {
			if err := s.sendPacket(NewHeartbeat()); err != nil {
				return s.failDelay(err)
			}
		}
		return s.cfg.HeartbeatInterval, nil
	case StatePrinting:
		return s.pumpQueue()
	case StateFinishing:
		if err := s.sendPacket(NewEndPrint()); err != nil {
			return s.failDelay(err)
		}
		s.setState(StateIdle)
		return s.cfg.HeartbeatInterval, nil
	default:
		return 0, fmt.Errorf("%w: tick in %s", ErrBadState, s.State())
	}
}

// advanceJobStart walks the two-step exchange opening: start-print-data-
// exchange on one tick, set-dimensions on the next, then the whole job is
// enqueued and the session enters Printing. A failed step is retried on the
// following tick without repeating the steps already sent.
func (s *Session) advanceJobStart() (time.Duration, error) {
	if !s.exchangeOpened {
		if err := s.sendPacket(NewStartExchange()); err != nil {
			return s.failDelay(err)
		}
		s.exchangeOpened = true
		return s.cfg.SendInterval, nil
	}

	job := s.pendingJob
	if err := s.sendPacket(NewSetDimensions(job.width, job.height)); err != nil {
		return s.failDelay(err)
	}
	for _, frame := range job.frames {
		s.queue.Enqueue(frame)
	}
	s.statsMu.Lock()
	s.stats.RecordEnqueue(len(job.frames))
	s.statsMu.Unlock()
	s.log.Info().
		Int("rows", len(job.frames)).
		Uint8("width", job.width).
		Uint8("height", job.height).
		Msg("print job started")

	s.pendingJob = nil
	s.exchangeOpened = false
	s.setState(StatePrinting)
	return s.cfg.SendInterval, nil
}

// pumpQueue sends the next queued frame, retrying the in-flight frame first
// if the previous tick failed. A drained queue triggers the Finishing
// transition: end-print-data-exchange now, end-print after the settle delay.
func (s *Session) pumpQueue() (time.Duration, error) {
	frame := s.inflight
	if frame == nil {
		var ok bool
		frame, ok = s.queue.Next()
		if !ok {
			if err := s.sendPacket(NewEndExchange()); err != nil {
				return s.failDelay(err)
			}
			s.setState(StateFinishing)
			return s.cfg.SettleDelay, nil
		}
	}

	if err := s.sendFrame(frame); err != nil {
		s.inflight = frame
		return s.failDelay(err)
	}
	s.inflight = nil
	return s.cfg.SendInterval, nil
}

// failDelay records a send failure and picks the retry delay. Once the
// consecutive failure count reaches the limit the link is declared lost, the
// session is torn down and the error is returned to stop the control loop.
func (s *Session) failDelay(err error) (time.Duration, error) {
	s.sendFailures++
	if s.sendFailures >= s.cfg.MaxSendRetries {
		s.log.Error().Err(err).Int("failures", s.sendFailures).Msg("link lost")
		s.teardown()
		return 0, fmt.Errorf("link lost after %d send failures: %w", s.sendFailures, err)
	}
	delay := s.backoff.Next()
	s.log.Warn().Err(err).
		Int("failures", s.sendFailures).
		Dur("retry_in", delay).
		Msg("send failed, backing off")
	return delay, nil
}

func (s *Session) teardown() {
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.log.Debug().Err(err).Msg("transport close")
		}
		s.transport = nil
	}
	s.queue.Reset()
	s.pendingJob = nil
	s.pendingControl = nil
	s.exchangeOpened = false
	s.inflight = nil
	s.sendFailures = 0
	s.backoff.Reset()
	s.setState(StateDisconnected)
}

// processInbound feeds one received chunk through the frame decoder and
// dispatches every completed reply.
func (s *Session) processInbound(data []byte) {
	if s.cfg.Trace != nil {
		if err := s.cfg.Trace.Record(DirIn, data); err != nil {
			s.log.Debug().Err(err).Msg("trace write")
		}
	}
	for _, b := range data {
		pkt, err := s.decoder.DecodeByte(b)
		if err != nil {
			s.statsMu.Lock()
			s.stats.Update(nil, err, nil)
			s.statsMu.Unlock()
			s.log.Debug().Err(err).Msg("decode error")
			continue
		}
		if pkt == nil {
			continue
		}
		s.handleReply(pkt)
	}
}

func (s *Session) handleReply(pkt *Packet) {
	verrs := ValidatePacket(pkt)
	s.statsMu.Lock()
	s.stats.Update(pkt, nil, verrs)
	s.statsMu.Unlock()
	for i := range verrs {
		s.log.Warn().
			Str("packet", FormatOpcode(pkt.Opcode())).
			Msg(verrs[i].Error())
	}

	if s.cfg.OnPacket != nil {
		s.cfg.OnPacket(pkt)
	}

	switch pkt.Opcode() {
	case ReplyStatus:
		status, err := DecodeStatusReply(pkt)
		if err != nil {
			s.log.Debug().Err(err).Msg("status decode")
			return
		}
		s.log.Debug().
			Uint16("page", status.Page).
			Uint8("progress1", status.Progress1).
			Uint8("progress2", status.Progress2).
			Msg("print status")
		if s.cfg.OnStatus != nil {
			s.cfg.OnStatus(status)
		}
	case ReplyHeartbeat:
		hb, err := DecodeHeartbeatReply(pkt)
		if err != nil {
			s.log.Debug().Err(err).Msg("heartbeat decode")
			return
		}
		if s.cfg.OnHeartbeat != nil {
			s.cfg.OnHeartbeat(hb)
		}
	default:
		s.log.Debug().Str("packet", FormatPacket(pkt)).Msg("reply")
	}
}

func (s *Session) sendPacket(pkt *Packet) error {
	frame, err := EncodePacket(pkt)
	if err != nil {
		return err
	}
	return s.sendFrame(frame)
}

// sendFrame transmits one frame and keeps the failure bookkeeping: any
// success resets the consecutive failure count and the retry backoff.
func (s *Session) sendFrame(frame []byte) error {
	if s.transport == nil {
		return ErrNotConnected
	}
	if err := s.transport.Send(frame); err != nil {
		s.statsMu.Lock()
		s.stats.RecordSendFailure()
		s.statsMu.Unlock()
		return fmt.Errorf("transport send: %w", err)
	}
	if s.cfg.Trace != nil {
		if err := s.cfg.Trace.Record(DirOut, frame); err != nil {
			s.log.Debug().Err(err).Msg("trace write")
		}
	}
	s.statsMu.Lock()
	s.stats.RecordSend(len(frame))
	s.statsMu.Unlock()
	s.sendFailures = 0
	s.backoff.Reset()
	s.log.Debug().Hex("frame", frame).Msg("sent")
	return nil
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev == next {
		return
	}
	s.log.Info().Stringer("from", prev).Stringer("to", next).Msg("session state")
	if s.cfg.OnState != nil {
		s.cfg.OnState(next)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
