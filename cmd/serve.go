// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The open-niim authors

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/open-niim/niimctl/pkg/niimbot"
)

const maxUploadBytes = 4 << 20 // PNG uploads larger than this are rejected

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an HTTP print server in front of the printer",
	Long: `Run a small HTTP print server in front of the printer.

The server keeps a session open to the printer, reconnecting with backoff
when the link drops, and exposes a JSON API:

  GET  /healthz          - liveness probe
  GET  /api/v1/status    - printer state (power, paper, RFID, page progress)
  GET  /api/v1/stats     - link statistics for the current session
  POST /api/v1/print     - print a PNG (raw image bytes as request body)
  POST /api/v1/calibrate - run label-gap calibration

A print request is accepted as soon as it is queued; watch /api/v1/status
for progress. Only one job may be queued at a time, a second submission
gets HTTP 409.

When the config file changes on disk the print defaults are reloaded and
take effect on the next reconnect cycle; command-line flags keep
precedence over reloaded values.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8080", "HTTP listen address")
	registerSessionFlags(serveCmd)
}

// printServer owns the long-running session and the HTTP-facing snapshot of
// printer state. The mutex also guards the shared print defaults against
// config reloads.
type printServer struct {
	log zerolog.Logger

	mu       sync.RWMutex
	sess     *niimbot.Session
	state    niimbot.State
	beat     *niimbot.HeartbeatReply
	status   *niimbot.StatusReply
	lastSeen time.Time
}

func runServe(cmd *cobra.Command, args []string) error {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	srv := &printServer{log: logger}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Flags set on the command line keep winning over reloaded file values
	changed := make(map[string]bool)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = true
	})
	watchPath := configPath
	if watchPath == "" {
		watchPath = defaultConfigPath()
	}
	if watchPath != "" {
		go srv.watchConfig(ctx, watchPath, changed)
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", srv.handleHealthz).Methods("GET")
	router.HandleFunc("/api/v1/status", srv.handleStatus).Methods("GET")
	router.HandleFunc("/api/v1/stats", srv.handleStats).Methods("GET")
	router.HandleFunc("/api/v1/print", srv.handlePrint).Methods("POST")
	router.HandleFunc("/api/v1/calibrate", srv.handleCalibrate).Methods("POST")

	httpSrv := &http.Server{Addr: serveListen, Handler: router}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		srv.sessionLoop(ctx)
	}()

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutCtx)
	}()

	logger.Info().Str("listen", serveListen).Msg("starting print server")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		<-loopDone
		return err
	}

	<-loopDone
	logger.Info().Msg("shutdown complete")
	return nil
}

// sessionLoop keeps a printer session alive until ctx is cancelled. A link
// that makes it through configuration resets the reconnect backoff.
func (s *printServer) sessionLoop(ctx context.Context) {
	backoff := niimbot.NewBackoff(time.Second, 30*time.Second)
	for {
		err := s.runSession(ctx, backoff)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("session ended")
		}
		if err := backoff.Sleep(ctx); err != nil {
			return
		}
	}
}

func (s *printServer) runSession(ctx context.Context, backoff *niimbot.Backoff) error {
	s.mu.RLock()
	cfg, err := sessionConfig()
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	cfg.Logger = s.log.With().Str("component", "session").Logger()
	cfg.OnState = func(st niimbot.State) {
		s.mu.Lock()
		s.state = st
		s.mu.Unlock()
	}
	cfg.OnHeartbeat = func(beat niimbot.HeartbeatReply) {
		s.mu.Lock()
		s.beat = &beat
		s.lastSeen = time.Now()
		s.mu.Unlock()
	}
	cfg.OnStatus = func(status niimbot.StatusReply) {
		s.mu.Lock()
		s.status = &status
		s.lastSeen = time.Now()
		s.mu.Unlock()
	}

	var sess *niimbot.Session
	dial := func(ctx context.Context) (niimbot.Transport, error) {
		conn, info, err := OpenConnection()
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("connection", info).Msg("transport open")
		return newSessionTransport(conn, func(data []byte) {
			sess.HandleInbound(data)
		}), nil
	}
	sess = niimbot.NewSession(dial, cfg)

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Configure(ctx); err != nil {
		return err
	}
	backoff.Reset()

	// Only a configured session takes print requests
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()

	err = sess.Run(ctx)

	s.mu.Lock()
	s.sess = nil
	s.mu.Unlock()
	return err
}

func (s *printServer) currentSession() *niimbot.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess
}

//
// Handlers
//

type statusResponse struct {
	State      string     `json:"state"`
	PowerLevel *uint8     `json:"power_level,omitempty"`
	PaperState *uint8     `json:"paper_state,omitempty"`
	RFIDState  *uint8     `json:"rfid_state,omitempty"`
	LidState   *uint8     `json:"lid_state,omitempty"`
	Page       *uint16    `json:"page,omitempty"`
	Progress1  *uint8     `json:"progress1,omitempty"`
	Progress2  *uint8     `json:"progress2,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
}

type statsResponse struct {
	FramesSent     uint64  `json:"frames_sent"`
	BytesSent      uint64  `json:"bytes_sent"`
	FramesEnqueued uint64  `json:"frames_enqueued"`
	SendFailures   uint64  `json:"send_failures"`
	RepliesDecoded uint64  `json:"replies_decoded"`
	ValidReplies   uint64  `json:"valid_replies"`
	DecodeErrors   uint64  `json:"decode_errors"`
	ChecksumErrors uint64  `json:"checksum_errors"`
	DeviceErrors   uint64  `json:"device_errors"`
	InboundDropped uint64  `json:"inbound_dropped"`
	SendRate       float64 `json:"send_rate"`
	ReplyRate      float64 `json:"reply_rate"`
}

func (s *printServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *printServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := statusResponse{State: s.state.String()}
	if s.beat != nil {
		resp.PowerLevel = s.beat.PowerLevel
		resp.PaperState = s.beat.PaperState
		resp.RFIDState = s.beat.RFIDReadState
		resp.LidState = s.beat.ClosingState
	}
	if s.status != nil {
		page := s.status.Page
		p1, p2 := s.status.Progress1, s.status.Progress2
		resp.Page = &page
		resp.Progress1 = &p1
		resp.Progress2 = &p2
	}
	if !s.lastSeen.IsZero() {
		t := s.lastSeen
		resp.LastSeen = &t
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	e := json.NewEncoder(w)
	e.SetIndent("", "    ")
	e.Encode(resp)
}

func (s *printServer) handleStats(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession()
	if sess == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "printer not connected")
		return
	}

	stats := sess.Stats()
	resp := statsResponse{
		FramesSent:     stats.FramesSent,
		BytesSent:      stats.BytesSent,
		FramesEnqueued: stats.FramesEnqueued,
		SendFailures:   stats.SendFailures,
		RepliesDecoded: stats.RepliesDecoded,
		ValidReplies:   stats.ValidReplies,
		DecodeErrors:   stats.DecodeErrors,
		ChecksumErrors: stats.ChecksumErrors,
		DeviceErrors:   stats.DeviceErrors,
		InboundDropped: stats.InboundDropped,
		SendRate:       stats.SendRate,
		ReplyRate:      stats.ReplyRate,
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	e := json.NewEncoder(w)
	e.SetIndent("", "    ")
	e.Encode(resp)
}

func (s *printServer) handlePrint(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession()
	if sess == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "printer not connected")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxUploadBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}

	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "body is not a valid PNG")
		return
	}

	s.mu.RLock()
	width := labelWidth
	s.mu.RUnlock()

	lines, err := packImage(img, width)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows := buildRows(lines)

	job := niimbot.Job{Width: uint8(width), Height: uint8(len(lines)), Rows: rows}
	if err := sess.Submit(job); err != nil {
		if errors.Is(err, niimbot.ErrJobPending) {
			writeJSONError(w, http.StatusConflict, "a job is already queued")
			return
		}
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Info().Int("rows", len(rows)).Int("height", len(lines)).Msg("print job accepted")

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted": true,
		"rows":     len(rows),
		"height":   len(lines),
	})
}

func (s *printServer) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession()
	if sess == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "printer not connected")
		return
	}

	if err := sess.SendCommand(niimbot.NewCalibrateGap()); err != nil {
		if errors.Is(err, niimbot.ErrCommandPending) {
			writeJSONError(w, http.StatusConflict, "a command is already queued")
			return
		}
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Info().Msg("calibration requested")

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{"accepted": true})
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

//
// Config reload
//

// watchConfig reloads print defaults when the config file changes on disk.
// Editors fire several events per save, so reloads are debounced.
func (s *printServer) watchConfig(ctx context.Context, path string, changed map[string]bool) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn().Err(err).Msg("config watcher unavailable")
		return
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		s.log.Warn().Err(err).Str("dir", dir).Msg("cannot watch config directory")
		return
	}

	var mu sync.Mutex
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				s.reloadConfig(path, changed)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (s *printServer) reloadConfig(path string, changed map[string]bool) {
	fc, err := loadFileConfig(path)
	if err != nil {
		s.log.Warn().Err(err).Msg("config reload failed")
		return
	}

	s.mu.Lock()
	err = applyFileConfig(fc, changed)
	s.mu.Unlock()
	if err != nil {
		s.log.Warn().Err(err).Msg("config reload rejected")
		return
	}

	s.log.Info().Str("path", path).Msg("configuration reloaded, applies on next reconnect")
}
