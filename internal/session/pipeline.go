package session

import (
	"time"

	"github.com/seamus/ptysup/internal/core"
)

// onChunk implements spec §4.1's "Each byte chunk from the PTY triggers"
// steps 1-4: update activity, append+cap the buffer, emit raw output
// immediately, and schedule exactly one processOutputBuffer pass per tick.
//
// The deferral matters for the reasons spec §5 gives: running regex-heavy
// detection inline on the same goroutine that drains chunks would still be
// "inline" here in the sense that nothing else preempts it, but scheduling
// it as a distinct queued action keeps timer-fire and command actions
// interleaved fairly with bursts of chunks instead of one huge chunk
// starving everything queued behind it.
func (s *Session) onChunk(data []byte) {
	now := s.clk.Now()
	s.lastActivityAt = &now

	s.appendOutput(data)
	s.publish(core.Event{Kind: core.EventOutput, SessionID: s.id, Data: data})

	if !s.scheduled {
		s.scheduled = true
		select {
		case s.actions <- s.processOutputBuffer:
		default:
			// action queue briefly full under heavy burst; the next
			// chunk's scheduling attempt will retry.
			s.scheduled = false
		}
	}
}

// processOutputBuffer runs the strict-order detection pipeline of spec
// §4.1 steps (a)-(h).
func (s *Session) processOutputBuffer() {
	s.scheduled = false
	buf := s.bufferString()

	// (a) stall-timer maintenance
	if (s.status == core.StatusBusy || s.status == core.StatusAuthenticating) && s.stallEnabled {
		s.resetStallTimer(buf)
	}

	// (b) ready-settle resilience
	if s.readySettleTimer != nil {
		if s.adapter.DetectReady(buf) {
			s.armReadySettle()
			return
		}
		s.cancelReadySettle()
		return
	}

	// (c) ready detection
	if s.status == core.StatusStarting || s.status == core.StatusAuthenticating {
		if s.adapter.DetectReady(buf) {
			s.armReadySettle()
			return
		}
	}

	// (d) task-completion detection
	if s.status == core.StatusBusy {
		complete, ok := s.adapter.DetectTaskComplete(buf)
		if !ok {
			complete = s.adapter.DetectReady(buf)
		}
		if complete {
			s.armTaskComplete()
		}
	}

	// (e) blocking-prompt detection + auto-response
	if s.runAutoResponsePipeline(buf) {
		return
	}

	// (f) login detection
	if s.status != core.StatusReady && s.status != core.StatusBusy {
		login := s.adapter.DetectLogin(buf)
		if login.Required {
			s.setStatus(core.StatusAuthenticating)
			s.publish(core.Event{Kind: core.EventAuthRequired, SessionID: s.id, Login: login})
		}
	}

	// (g) exit detection
	if exit := s.adapter.DetectExit(buf); exit.Exited {
		s.exitCode = exit.Code
		s.setStatus(core.StatusStopped)
		s.publish(core.Event{Kind: core.EventExit, SessionID: s.id, ExitCode: exit.Code, Reason: exit.Error})
	}

	// (h) parse
	if s.status == core.StatusReady {
		s.parseOutputAndClear(buf)
	}
}

// parseOutputAndClear implements spec §4.1 step (h): run the adapter parser
// over buf and, on a complete parse, clear the output buffer and emit
// message (and question). Shared by the per-chunk pipeline pass and the
// ready/task-complete transition points below, since the content that
// triggers either transition must be parsed before it is otherwise
// discarded by that transition's buffer clear.
func (s *Session) parseOutputAndClear(buf string) {
	parsed, ok := s.adapter.ParseOutput(buf)
	if !ok || parsed == nil {
		return
	}
	s.outputBuffer = s.outputBuffer[:0]
	msg := core.SessionMessage{
		SessionID: s.id,
		Direction: core.DirectionOutbound,
		Type:      parsed.Type,
		Content:   parsed.Content,
		Metadata:  parsed.Metadata,
		Timestamp: s.clk.Now(),
	}
	s.publish(core.Event{Kind: core.EventMessage, SessionID: s.id, Message: msg})
	if parsed.IsQuestion {
		s.publish(core.Event{Kind: core.EventQuestion, SessionID: s.id, Message: msg})
	}
}

func (s *Session) armReadySettle() {
	ms := defaultReadySettleMs
	if v, ok := s.adapter.ReadySettleMs(); ok {
		ms = v
	}
	if s.cfg.ReadySettleMs != nil {
		ms = *s.cfg.ReadySettleMs
	}
	s.readySettleGen++
	gen := s.readySettleGen
	if s.readySettleTimer != nil {
		s.readySettleTimer.Stop()
	}
	s.readySettleTimer = s.clk.AfterFunc(msDuration(ms), func() {
		s.do(func() { s.fireReadySettle(gen) })
	})
}

func (s *Session) cancelReadySettle() {
	if s.readySettleTimer != nil {
		s.readySettleTimer.Stop()
		s.readySettleTimer = nil
	}
}

func (s *Session) fireReadySettle(gen int) {
	if gen != s.readySettleGen || s.readySettleTimer == nil {
		return
	}
	s.readySettleTimer = nil
	if s.status != core.StatusStarting && s.status != core.StatusAuthenticating {
		return
	}
	buf := s.bufferString()
	if !s.adapter.DetectReady(buf) {
		return
	}
	// The version gate runs before the ready transition is committed: on a
	// mismatch it intercepts the transition into a blocking_prompt instead
	// of publishing ready and bouncing back out of it, since ready→
	// authenticating is not a valid edge once subscribers have already seen
	// status_changed(ready).
	if s.checkVersionGate(buf) {
		return
	}
	s.cancelStallTimer()
	s.setStatus(core.StatusReady)
	s.publish(core.Event{Kind: core.EventReady, SessionID: s.id})
	s.parseOutputAndClear(buf)
	s.outputBuffer = s.outputBuffer[:0]
}

func (s *Session) armTaskComplete() {
	s.taskCompleteGen++
	gen := s.taskCompleteGen
	if s.taskCompleteTimer != nil {
		s.taskCompleteTimer.Stop()
	}
	s.taskCompleteTimer = s.clk.AfterFunc(msDuration(defaultTaskCompleteMs), func() {
		s.do(func() { s.fireTaskComplete(gen) })
	})
}

func (s *Session) fireTaskComplete(gen int) {
	if gen != s.taskCompleteGen || s.taskCompleteTimer == nil {
		return
	}
	s.taskCompleteTimer = nil
	if s.status != core.StatusBusy {
		return
	}
	buf := s.bufferString()
	complete, ok := s.adapter.DetectTaskComplete(buf)
	if !ok {
		complete = s.adapter.DetectReady(buf)
	}
	if !complete {
		return
	}
	s.cancelStallTimer()
	s.setStatus(core.StatusReady)
	s.publish(core.Event{Kind: core.EventTaskComplete, SessionID: s.id})
	s.parseOutputAndClear(buf)
	s.outputBuffer = s.outputBuffer[:0]
}

func (s *Session) cancelAllTimers() {
	s.cancelReadySettle()
	if s.taskCompleteTimer != nil {
		s.taskCompleteTimer.Stop()
		s.taskCompleteTimer = nil
	}
	s.cancelStallTimer()
}

// checkVersionGate runs at most once per session, right before a ready
// transition is committed. It returns true when the transition must be
// suppressed: the adapter reported a version that fails cfg.MinVersion, so
// the session is held in (or returned to) authenticating with a
// blocking_prompt describing the mismatch. Because the check runs only
// once, a later ready-settle that detects ready commits the ready
// transition without consulting the version again.
func (s *Session) checkVersionGate(buf string) bool {
	if s.versionChecked {
		return false
	}
	s.versionChecked = true
	if s.cfg.MinVersion == "" {
		return false
	}
	version, ok := s.adapter.DetectVersion(buf)
	if !ok {
		return false
	}
	if versionSatisfies(version, s.cfg.MinVersion) {
		return false
	}
	s.setStatus(core.StatusAuthenticating)
	s.publish(core.Event{
		Kind:      core.EventBlockingPrompt,
		SessionID: s.id,
		Prompt: core.BlockingPromptInfo{
			Detected: true,
			Type:     core.PromptConfig,
			Prompt:   "detected version " + version + " does not satisfy " + s.cfg.MinVersion,
		},
	})
	return true
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
