// Package session implements the per-CLI PTY session engine: the status
// state machine, the output-processing pipeline, the auto-response rule
// engine, and the three debounced timers (spec §4.1). It is the core of
// this module.
package session

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seamus/ptysup/internal/adapter"
	"github.com/seamus/ptysup/internal/apperr"
	"github.com/seamus/ptysup/internal/clock"
	"github.com/seamus/ptysup/internal/core"
	"github.com/seamus/ptysup/internal/ptyproc"
)

const (
	outputBufferCap           = 100 * 1024
	defaultReadySettleMs      = 100
	defaultTaskCompleteMs     = 1500
	defaultStallBackoffCapMs  = 30_000
	defaultStallEmissionCap   = 5
	keyStaggerDelay           = 50 * time.Millisecond
	sendEnterDelay            = 50 * time.Millisecond
	recentOutputClassifyBytes = 2000
	stallHashTailBytes        = 500
)

// Spawner creates the PTY primitive for a session. Production code uses
// ptyproc.Spawn; tests substitute an in-memory fake.
type Spawner func(command string, args []string, workDir string, env []string, cols, rows int) (ptyproc.Primitive, error)

// Session owns exactly one PTY process end to end (spec §4.1).
type Session struct {
	id      string
	name    string
	cfgType string
	adapter adapter.Adapter
	cfg     core.SpawnConfig
	spawner Spawner
	clk     clock.Clock
	log     *slog.Logger

	pty ptyproc.Primitive

	actions chan func()
	chunks  chan []byte
	exited  chan struct{}

	subsMu    sync.Mutex
	subs      map[int]chan core.Event
	nextSubID int

	// --- mutable state; touched only from the actions/chunks loop goroutine ---
	status         core.SessionStatus
	startedAt      *time.Time
	lastActivityAt *time.Time
	exitCode       *int
	errMsg         string
	pid            *int

	outputBuffer []byte
	scheduled    bool

	lastBlockingPromptHash string
	lastStallHash          uint32
	lastContentHash        uint32
	firedOnceRules         map[string]bool
	ruleOverrides          map[string]core.RuleOverride
	sessionRules           []core.AutoResponseRule

	readySettleTimer    clock.Timer
	readySettleGen      int
	taskCompleteTimer   clock.Timer
	taskCompleteGen     int
	versionChecked      bool

	stallEnabled       bool
	stallTimeoutMs     int64
	stallBackoffMs     int64
	stallEmissionCount int
	stallStartedAt     time.Time
	stallTimer         clock.Timer
	stallGen           int

	closed bool
}

// Options bundles the dependencies New needs beyond the adapter/config.
type Options struct {
	Spawner            Spawner
	Clock              clock.Clock
	Logger             *slog.Logger
	StallEnabled       bool
	StallTimeoutMs     int64
}

// New constructs a Session in StatusPending. Start must be called to spawn
// the underlying process.
func New(cfg core.SpawnConfig, a adapter.Adapter, opts Options) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Cols == 0 {
		cfg.Cols = 120
	}
	if cfg.Rows == 0 {
		cfg.Rows = 40
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	spawner := opts.Spawner
	if spawner == nil {
		spawner = ptyproc.Spawn
	}

	s := &Session{
		id:             cfg.ID,
		name:           cfg.Name,
		cfgType:        cfg.Type,
		adapter:        a,
		cfg:            cfg,
		spawner:        spawner,
		clk:            clk,
		log:            logger.With("session_id", cfg.ID, "adapter", a.AdapterType()),
		actions:        make(chan func(), 64),
		chunks:         make(chan []byte, 256),
		exited:         make(chan struct{}),
		subs:           make(map[int]chan core.Event),
		status:         core.StatusPending,
		firedOnceRules: make(map[string]bool),
		ruleOverrides:  cfg.RuleOverrides,
		stallEnabled:   opts.StallEnabled,
		stallTimeoutMs: opts.StallTimeoutMs,
	}
	if cfg.StallTimeoutMs != nil {
		s.stallTimeoutMs = int64(*cfg.StallTimeoutMs)
	}
	s.stallBackoffMs = s.stallTimeoutMs
	go s.loop()
	return s
}

// ID, Name, Type are simple immutable accessors.
func (s *Session) ID() string   { return s.id }
func (s *Session) Name() string { return s.name }
func (s *Session) Type() string { return s.cfgType }

// loop is the single goroutine that owns every mutation of Session state
// (spec §5: "all state mutations stay on that goroutine"). It drains
// chunks from the PTY reader and queued action closures (public API calls,
// timer fires, classifier results), each channel in its own arrival order;
// when both have work ready, select picks between them at random.
func (s *Session) loop() {
	for {
		select {
		case data, ok := <-s.chunks:
			if !ok {
				return
			}
			s.onChunk(data)
		case fn, ok := <-s.actions:
			if !ok {
				return
			}
			fn()
		case <-s.exited:
			return
		}
	}
}

// do synchronously runs fn on the loop goroutine and waits for it to
// finish, giving the public API call/return semantics spec §4.1 describes
// while keeping every mutation serialized.
func (s *Session) do(fn func()) {
	done := make(chan struct{})
	select {
	case s.actions <- func() { fn(); close(done) }:
		<-done
	case <-s.exited:
	}
}

// Start spawns the PTY using the adapter's command/args/env merged with
// forced TERM/COLORTERM and the process env (spec §4.1, §6).
func (s *Session) Start() error {
	var startErr error
	s.do(func() {
		if s.status != core.StatusPending {
			startErr = apperr.ErrAlreadyStarted
			return
		}
		s.setStatus(core.StatusStarting)

		env := s.buildEnv()
		pid, err := s.spawnLocked(env)
		if err != nil {
			s.errMsg = err.Error()
			s.setStatus(core.StatusError)
			startErr = err
			s.publish(core.Event{Kind: core.EventError, SessionID: s.id, Err: err})
			return
		}
		s.pid = &pid
		now := s.clk.Now()
		s.startedAt = &now
		s.lastActivityAt = &now

		go s.readLoop()
		go s.waitLoop()
	})
	return startErr
}

func (s *Session) buildEnv() []string {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	merged["TERM"] = "xterm-256color"
	merged["COLORTERM"] = "truecolor"
	for k, v := range s.adapter.GetEnv(s.cfg) {
		merged[k] = v
	}
	for k, v := range s.cfg.Env {
		merged[k] = v
	}
	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	return env
}

func (s *Session) spawnLocked(env []string) (int, error) {
	command := s.adapter.GetCommand(s.cfg)
	args := s.adapter.GetArgs(s.cfg)
	p, err := s.spawner(command, args, s.cfg.WorkDir, env, s.cfg.Cols, s.cfg.Rows)
	if err != nil {
		return 0, fmt.Errorf("spawn %s: %w", command, err)
	}
	s.pty = p
	return p.Pid(), nil
}

func (s *Session) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-s.exited:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) waitLoop() {
	_ = s.pty.Wait()
	s.do(func() {
		s.handleExit()
	})
}

func (s *Session) handleExit() {
	if s.closed {
		return
	}
	s.cancelAllTimers()
	s.setStatus(core.StatusStopped)
	var code *int
	if s.exitCode != nil {
		code = s.exitCode
	}
	s.publish(core.Event{Kind: core.EventExit, SessionID: s.id, ExitCode: code})
	s.closed = true
	close(s.exited)
}

// setStatus records a status change, logs it at debug level and publishes
// status_changed. It does not check the change against the transition
// table in spec §3; which transitions happen is decided by its callers.
func (s *Session) setStatus(next core.SessionStatus) {
	if s.status == next {
		return
	}
	prev := s.status
	s.status = next
	s.log.Debug("status transition", "from", prev, "to", next)
	s.publish(core.Event{Kind: core.EventStatusChanged, SessionID: s.id, NewStatus: next})
}

// ToHandle returns an immutable value-copy snapshot (spec §3 SessionHandle).
func (s *Session) ToHandle() core.SessionHandle {
	var h core.SessionHandle
	s.do(func() {
		h = core.SessionHandle{
			ID:             s.id,
			Name:           s.name,
			Type:           s.cfgType,
			Adapter:        s.adapter.DisplayName(),
			Status:         s.status,
			PID:            s.pid,
			StartedAt:      s.startedAt,
			LastActivityAt: s.lastActivityAt,
			Error:          s.errMsg,
			ExitCode:       s.exitCode,
		}
	})
	return h
}

// Subscribe registers a new event listener. The returned function
// unsubscribes. The channel is buffered; a slow subscriber that falls
// behind has events dropped rather than blocking the session loop.
func (s *Session) Subscribe(buffer int) (<-chan core.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan core.Event, buffer)
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	s.subsMu.Unlock()
	return ch, func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
		close(ch)
	}
}

func (s *Session) publish(ev core.Event) {
	ev.SessionID = s.id
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.log.Warn("subscriber buffer full, dropping event", "kind", ev.Kind)
		}
	}
}

// GetOutputBuffer returns a copy of the accumulated output buffer.
func (s *Session) GetOutputBuffer() []byte {
	var out []byte
	s.do(func() {
		out = append([]byte(nil), s.outputBuffer...)
	})
	return out
}

// ClearOutputBuffer empties the buffer immediately.
func (s *Session) ClearOutputBuffer() {
	s.do(func() { s.outputBuffer = s.outputBuffer[:0] })
}

// Resize forwards to the PTY primitive.
func (s *Session) Resize(cols, rows int) error {
	var err error
	s.do(func() {
		if s.pty != nil {
			err = s.pty.Resize(cols, rows)
		}
	})
	return err
}

// Kill stops the process via the named signal (default SIGTERM).
func (s *Session) Kill(signal string) error {
	var err error
	s.do(func() {
		if s.status == core.StatusStopped {
			return
		}
		s.setStatus(core.StatusStopping)
		if s.pty != nil {
			err = s.pty.Kill(signal)
		}
	})
	return err
}

func (s *Session) appendOutput(chunk []byte) {
	s.outputBuffer = append(s.outputBuffer, chunk...)
	if len(s.outputBuffer) > outputBufferCap {
		s.outputBuffer = append([]byte(nil), s.outputBuffer[len(s.outputBuffer)-outputBufferCap:]...)
	}
}

func (s *Session) bufferString() string {
	return string(s.outputBuffer)
}
