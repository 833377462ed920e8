// Command api is the generalization of the teacher's single-session HTTP
// server to the Manager's full multi-session surface (SPEC_FULL.md "HTTP/
// WebSocket front end"): REST for session lifecycle, SSE for lifecycle
// events, a websocket for raw terminal attach, and a Prometheus /metrics
// endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seamus/ptysup/internal/adapter"
	"github.com/seamus/ptysup/internal/apperr"
	"github.com/seamus/ptysup/internal/config"
	"github.com/seamus/ptysup/internal/core"
	"github.com/seamus/ptysup/internal/manager"
	"github.com/seamus/ptysup/internal/metrics"
)

const sseClientBufferSize = 100

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "api",
		Short: "Run the PTY session supervisor behind an HTTP/WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(cmd.Flags(), configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(v)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "optional config file (yaml/toml/json)")
	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().Int("cols", config.DefaultCols, "default PTY columns")
	cmd.Flags().Int("rows", config.DefaultRows, "default PTY rows")
	cmd.Flags().Int("log-ring-size", config.DefaultLogRingSize, "lines retained per session log ring")
	cmd.Flags().Bool("stall-enabled", true, "enable stall detection by default")
	cmd.Flags().Int64("stall-timeout-ms", config.DefaultStallTimeoutMs, "default stall timeout in milliseconds")
	cmd.Flags().String("log-format", "text", "log output format: text or json")
	cmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")

	return cmd
}

func run(v *viper.Viper) error {
	cfg := config.LoadAPIConfig(v)
	logger := newLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	reg := adapter.NewRegistry()
	reg.RegisterBuiltins()

	mgr := manager.New(manager.Config{
		Registry:       reg,
		Logger:         logger,
		LogRingSize:    cfg.LogRingSize,
		StallEnabled:   cfg.StallEnabled,
		StallTimeoutMs: cfg.StallTimeoutMs,
	})

	exporter := metrics.New(metrics.Config{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			exporter.Refresh(mgr)
		}
	}()

	srv := newServer(mgr, exporter, cfg.Cols, cfg.Rows)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.mux,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		logger.Info("api server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sig := <-sigChan
	logger.Info("received shutdown signal", "signal", sig)

	mgr.Shutdown(3000)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}
	logger.Info("server shutdown complete")
	return nil
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// server bundles the Manager and its HTTP surface (spec "HTTP/WebSocket
// front end").
type server struct {
	mgr      *manager.Manager
	exporter *metrics.Exporter
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	cols     int
	rows     int
}

func newServer(mgr *manager.Manager, exporter *metrics.Exporter, cols, rows int) *server {
	s := &server{
		mgr:      mgr,
		exporter: exporter,
		cols:     cols,
		rows:     rows,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sessions", s.handleList)
	mux.HandleFunc("POST /sessions", s.handleSpawn)
	mux.HandleFunc("POST /sessions/{id}/message", s.handleMessage)
	mux.HandleFunc("GET /sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /sessions/{id}/attach", s.handleAttach)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleStop)
	mux.Handle("GET /metrics", exporter.Handler())
	s.mux = mux
	return s
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func statusForErr(err error) int {
	switch {
	case errors.Is(err, apperr.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrAdapterNotFound), errors.Is(err, apperr.ErrDuplicateID):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrSessionTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	statusFilter := core.SessionStatus(r.URL.Query().Get("status"))
	typeFilter := r.URL.Query().Get("type")
	respondJSON(w, http.StatusOK, map[string]any{"sessions": s.mgr.List(statusFilter, typeFilter)})
}

type spawnRequest struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	WorkDir    string            `json:"workDir"`
	Env        map[string]string `json:"env"`
	Cols       int               `json:"cols"`
	Rows       int               `json:"rows"`
	MinVersion string            `json:"minVersion"`
}

func (s *server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	cfg := core.SpawnConfig{
		ID:         req.ID,
		Name:       req.Name,
		Type:       req.Type,
		WorkDir:    req.WorkDir,
		Env:        req.Env,
		Cols:       req.Cols,
		Rows:       req.Rows,
		MinVersion: req.MinVersion,
	}
	if cfg.Cols == 0 {
		cfg.Cols = s.cols
	}
	if cfg.Rows == 0 {
		cfg.Rows = s.rows
	}
	handle, err := s.mgr.Spawn(cfg)
	if err != nil {
		respondError(w, statusForErr(err), err)
		return
	}
	respondJSON(w, http.StatusCreated, handle)
}

type messageRequest struct {
	Content string `json:"content"`
}

func (s *server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	msg, err := s.mgr.Send(id, req.Content)
	if err != nil {
		respondError(w, statusForErr(err), err)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

func (s *server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	force := r.URL.Query().Get("force") == "true"
	if err := s.mgr.Stop(id, force, 0); err != nil {
		respondError(w, statusForErr(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

// handleEvents streams a session's lifecycle events as Server-Sent Events,
// generalizing the teacher's single global /stream to a per-id subscription.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.mgr.GetSession(id)
	if err != nil {
		respondError(w, statusForErr(err), err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsub := sess.Subscribe(sseClientBufferSize)
	defer unsub()

	flusher, _ := w.(http.Flusher)
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// handleAttach upgrades to a websocket and pipes the session's raw output
// stream and keyboard input bidirectionally (spec "HTTP/WebSocket front
// end", and the DOMAIN STACK's note on giving gorilla/websocket a job).
func (s *server) handleAttach(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.mgr.GetSession(id)
	if err != nil {
		respondError(w, statusForErr(err), err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()

	events, unsub := sess.Subscribe(256)
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Kind != core.EventOutput {
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, ev.Data); err != nil {
				return
			}
		}
	}()

	type resizeMsg struct {
		Cols int `json:"cols"`
		Rows int `json:"rows"`
	}
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		switch msgType {
		case websocket.BinaryMessage:
			sess.WriteRaw(string(data))
		case websocket.TextMessage:
			var rm resizeMsg
			if json.Unmarshal(data, &rm) == nil && rm.Cols > 0 && rm.Rows > 0 {
				_ = sess.Resize(rm.Cols, rm.Rows)
			}
		}
	}
	<-done
}
