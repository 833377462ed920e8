// Package manager owns a named set of sessions and the adapter registry
// (spec §4.3): it is the cross-session supervisor the worker and HTTP
// front ends drive.
package manager

import (
	"log/slog"
	"sync"
	"time"

	"github.com/seamus/ptysup/internal/adapter"
	"github.com/seamus/ptysup/internal/apperr"
	"github.com/seamus/ptysup/internal/clock"
	"github.com/seamus/ptysup/internal/core"
	"github.com/seamus/ptysup/internal/session"
)

const (
	defaultLogRingSize    = 1000
	defaultStopTimeoutMs  = 5000
	defaultShutdownMs     = 3000
)

// ClassifyFunc is the caller-supplied stall classifier hook (spec §4.4).
type ClassifyFunc func(sessionID, recentOutput string, stallDurationMs int64) core.StallClassification

// Config configures defaults a Manager applies to every session it spawns.
type Config struct {
	Registry       *adapter.Registry
	Clock          clock.Clock
	Logger         *slog.Logger
	LogRingSize    int
	StallEnabled   bool
	StallTimeoutMs int64
	ClassifyHook   ClassifyFunc
}

type entry struct {
	sess    *session.Session
	logRing *logRing
	unsub   func()
}

// Manager is the single-process, in-memory supervisor spec §4.3 describes.
// Every exported method takes its own lock; the session engine underneath
// still does all its own mutation on its private goroutine (spec §5), so
// Manager's lock protects only the Manager's own fields: the id->entry map
// and the stall, log-ring-size and classify-hook defaults.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	registry *adapter.Registry
	clk      clock.Clock
	log      *slog.Logger

	logRingSize    int
	stallEnabled   bool
	stallTimeoutMs int64
	classifyHook   ClassifyFunc

	metricsMu sync.Mutex
	metrics   Metrics
}

// Metrics is the subset of counters cmd/api's Prometheus collectors read
// (spec §4.3 Manager.Metrics, extended by SPEC_FULL.md).
type Metrics struct {
	StallEmissions      int64
	AutoResponseFirings int64
}

// New constructs a Manager. A nil Registry gets the built-in adapters.
func New(cfg Config) *Manager {
	reg := cfg.Registry
	if reg == nil {
		reg = adapter.NewRegistry()
		reg.RegisterBuiltins()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ringSize := cfg.LogRingSize
	if ringSize <= 0 {
		ringSize = defaultLogRingSize
	}
	return &Manager{
		sessions:       make(map[string]*entry),
		registry:       reg,
		clk:            clk,
		log:            logger,
		logRingSize:    ringSize,
		stallEnabled:   cfg.StallEnabled,
		stallTimeoutMs: cfg.StallTimeoutMs,
		classifyHook:   cfg.ClassifyHook,
	}
}

// RegisterAdapter adds a single adapter to the registry.
func (m *Manager) RegisterAdapter(a adapter.Adapter) {
	m.registry.Register(a)
}

// ConfigureStallDetection updates the defaults applied to future sessions.
func (m *Manager) ConfigureStallDetection(enabled bool, timeoutMs int64, hook ClassifyFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stallEnabled = enabled
	if timeoutMs > 0 {
		m.stallTimeoutMs = timeoutMs
	}
	if hook != nil {
		m.classifyHook = hook
	}
}

// Spawn creates and starts a new session (spec §4.3).
func (m *Manager) Spawn(cfg core.SpawnConfig) (core.SessionHandle, error) {
	m.mu.Lock()
	if cfg.ID != "" {
		if _, exists := m.sessions[cfg.ID]; exists {
			m.mu.Unlock()
			return core.SessionHandle{}, apperr.ErrDuplicateID
		}
	}
	a, ok := m.registry.Get(cfg.Type)
	if !ok {
		m.mu.Unlock()
		return core.SessionHandle{}, apperr.ErrAdapterNotFound
	}
	stallEnabled := m.stallEnabled
	stallTimeoutMs := m.stallTimeoutMs
	ringSize := m.logRingSize
	m.mu.Unlock()

	sess := session.New(cfg, a, session.Options{
		Clock:          m.clk,
		Logger:         m.log,
		StallEnabled:   stallEnabled,
		StallTimeoutMs: stallTimeoutMs,
	})

	ring := newLogRing(ringSize)
	events, unsub := sess.Subscribe(256)
	e := &entry{sess: sess, logRing: ring, unsub: unsub}

	m.mu.Lock()
	if _, exists := m.sessions[sess.ID()]; exists {
		m.mu.Unlock()
		unsub()
		return core.SessionHandle{}, apperr.ErrDuplicateID
	}
	m.sessions[sess.ID()] = e
	m.mu.Unlock()

	go m.bridge(sess.ID(), events)

	if err := sess.Start(); err != nil {
		return sess.ToHandle(), err
	}
	return sess.ToHandle(), nil
}

// bridge drains a session's event stream for as long as the session lives:
// it feeds the log ring, tallies metrics, and forwards stall_detected
// events through the configured classify hook (spec §4.4, §5 "classify
// hook awaited by the Manager between stall emissions").
func (m *Manager) bridge(id string, events <-chan core.Event) {
	for ev := range events {
		switch ev.Kind {
		case core.EventOutput:
			m.appendLog(id, ev.Data)
		case core.EventStallDetected:
			m.metricsMu.Lock()
			m.metrics.StallEmissions++
			m.metricsMu.Unlock()
			m.dispatchClassify(id, ev)
		case core.EventBlockingPrompt:
			if ev.AutoResponded {
				m.metricsMu.Lock()
				m.metrics.AutoResponseFirings++
				m.metricsMu.Unlock()
			}
		case core.EventExit:
			m.log.Info("session exited", "session_id", id, "reason", ev.Reason)
		}
	}
}

func (m *Manager) dispatchClassify(id string, ev core.Event) {
	m.mu.RLock()
	hook := m.classifyHook
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if hook == nil {
		e.sess.HandleStallClassification(nil)
		return
	}
	go func() {
		result := hook(id, ev.RecentOutput, ev.StallDurationMs)
		e.sess.HandleStallClassification(&result)
	}()
}

func (m *Manager) appendLog(id string, data []byte) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	e.logRing.Append(data)
}

// Stop races SIGTERM (or SIGKILL when forced) against timeoutMs, escalating
// to SIGKILL on timeout, and resolves only once the session emits exit
// (spec §4.3 "Shutdown semantics").
func (m *Manager) Stop(id string, force bool, timeoutMs int) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	if timeoutMs <= 0 {
		timeoutMs = defaultStopTimeoutMs
	}

	// Subscribe before Kill: publish has no replay for late subscribers, so
	// subscribing after the kill signal risks missing an EventExit that
	// fires (or already fired) before this goroutine ever registers,
	// leaving exited stuck open forever below.
	exited := make(chan struct{})
	var exitOnce sync.Once
	closeExited := func() { exitOnce.Do(func() { close(exited) }) }
	events, unsub := e.sess.Subscribe(8)
	go func() {
		defer unsub()
		for ev := range events {
			if ev.Kind == core.EventExit {
				closeExited()
				return
			}
		}
	}()

	signal := "SIGTERM"
	if force {
		signal = "SIGKILL"
	}
	if err := e.sess.Kill(signal); err != nil {
		m.log.Warn("kill failed", "session_id", id, "error", err)
	}

	// The session may already have exited before Subscribe ran (a
	// concurrent Stop, or the process dying on its own right as this one
	// started) — in that case no further EventExit will ever be published,
	// so short-circuit instead of waiting on a channel that can't close.
	if e.sess.ToHandle().Status == core.StatusStopped {
		closeExited()
	}

	timedOut := make(chan struct{})
	timer := m.clk.AfterFunc(msDuration(timeoutMs), func() { close(timedOut) })

	select {
	case <-exited:
		timer.Stop()
	case <-timedOut:
		if !force {
			_ = e.sess.Kill("SIGKILL")
		}
		<-exited
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	e.unsub()
	return nil
}

// StopAll stops every session with the default timeout.
func (m *Manager) StopAll() {
	for _, id := range m.ids() {
		_ = m.Stop(id, false, defaultStopTimeoutMs)
	}
}

// Shutdown stops every session within timeoutMs, force-killing stragglers.
func (m *Manager) Shutdown(timeoutMs int) {
	if timeoutMs <= 0 {
		timeoutMs = defaultShutdownMs
	}
	var wg sync.WaitGroup
	for _, id := range m.ids() {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Stop(id, false, timeoutMs)
		}()
	}
	wg.Wait()
}

func (m *Manager) ids() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, apperr.ErrSessionNotFound
	}
	return e, nil
}

// Get returns a session's handle snapshot.
func (m *Manager) Get(id string) (core.SessionHandle, error) {
	e, err := m.lookup(id)
	if err != nil {
		return core.SessionHandle{}, err
	}
	return e.sess.ToHandle(), nil
}

// Has reports whether a session id is currently registered.
func (m *Manager) Has(id string) bool {
	_, err := m.lookup(id)
	return err == nil
}

// GetSession returns raw access to the underlying session engine.
func (m *Manager) GetSession(id string) (*session.Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.sess, nil
}

// List returns handles matching the optional status/type filters.
func (m *Manager) List(statusFilter core.SessionStatus, typeFilter string) []core.SessionHandle {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]core.SessionHandle, 0, len(entries))
	for _, e := range entries {
		h := e.sess.ToHandle()
		if statusFilter != "" && h.Status != statusFilter {
			continue
		}
		if typeFilter != "" && h.Type != typeFilter {
			continue
		}
		out = append(out, h)
	}
	return out
}

// GetStatusCounts tallies sessions by status, for the Prometheus GaugeVec
// that metrics.Exporter.Refresh fills.
func (m *Manager) GetStatusCounts() map[core.SessionStatus]int {
	counts := make(map[core.SessionStatus]int)
	for _, h := range m.List("", "") {
		counts[h.Status]++
	}
	return counts
}

// Send delivers a task message to a session (spec §4.3).
func (m *Manager) Send(id, message string) (core.SessionMessage, error) {
	e, err := m.lookup(id)
	if err != nil {
		return core.SessionMessage{}, err
	}
	return e.sess.Send(message)
}

// Logs tails the last n lines of a session's captured output.
func (m *Manager) Logs(id string, tail int) ([]string, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.logRing.Tail(tail), nil
}

// SessionMetrics is the per-session reply to Manager.Metrics(id).
type SessionMetrics struct {
	UptimeSeconds *float64
}

// MetricsFor computes spec §4.3's `metrics(id) -> {uptimeSeconds?}`.
func (m *Manager) MetricsFor(id string) (SessionMetrics, error) {
	h, err := m.Get(id)
	if err != nil {
		return SessionMetrics{}, err
	}
	if h.StartedAt == nil {
		return SessionMetrics{}, nil
	}
	secs := time.Since(*h.StartedAt).Seconds()
	return SessionMetrics{UptimeSeconds: &secs}, nil
}

// Metrics returns the process-wide counters the Prometheus collectors read.
func (m *Manager) Metrics() Metrics {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	return m.metrics
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// --- rule CRUD delegations (spec §4.3) ---

func (m *Manager) AddAutoResponseRule(id string, r core.AutoResponseRule) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.sess.AddAutoResponseRule(r)
	return nil
}

func (m *Manager) RemoveAutoResponseRule(id, patternSrc string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.sess.RemoveAutoResponseRule(patternSrc)
	return nil
}

func (m *Manager) SetAutoResponseRules(id string, rules []core.AutoResponseRule) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.sess.SetAutoResponseRules(rules)
	return nil
}

func (m *Manager) GetAutoResponseRules(id string) ([]core.AutoResponseRule, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.sess.GetAutoResponseRules(), nil
}

func (m *Manager) ClearAutoResponseRules(id string) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.sess.ClearAutoResponseRules()
	return nil
}

// Terminal is the handle spec §4.3's attachTerminal(id) returns: a
// subscription to raw output plus write/resize, shared without copying
// bytes beyond the one fan-out already in Session.Subscribe (spec §5
// "Terminal attachments share the session's output emission path").
type Terminal struct {
	sess   *session.Session
	events <-chan core.Event
	unsub  func()
}

// OnData registers cb for every raw output chunk until unsubscribe is
// called or the returned func is invoked.
func (t *Terminal) OnData(cb func([]byte)) func() {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-t.events:
				if !ok {
					return
				}
				if ev.Kind == core.EventOutput {
					cb(ev.Data)
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// Write sends raw bytes to the underlying PTY.
func (t *Terminal) Write(data []byte) { t.sess.WriteRaw(string(data)) }

// Resize forwards to the session's PTY.
func (t *Terminal) Resize(cols, rows int) error { return t.sess.Resize(cols, rows) }

// Close unsubscribes from the session's event stream.
func (t *Terminal) Close() { t.unsub() }

// AttachTerminal returns nil, nil when the session doesn't exist — spec
// §4.3 describes this as returning null rather than an error, since
// "attach to a terminal that doesn't exist yet" is a normal race in UIs.
func (m *Manager) AttachTerminal(id string) (*Terminal, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, nil
	}
	events, unsub := e.sess.Subscribe(256)
	return &Terminal{sess: e.sess, events: events, unsub: unsub}, nil
}
