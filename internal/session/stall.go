package session

import (
	"strings"

	"github.com/seamus/ptysup/internal/ansiutil"
	"github.com/seamus/ptysup/internal/core"
)

// resetStallTimerForNewTask is called from Send: a new task starts the
// stall backoff fresh at the configured timeout.
func (s *Session) resetStallTimerForNewTask() {
	s.stallBackoffMs = s.stallTimeoutMs
	s.stallEmissionCount = 0
	s.lastContentHash = 0
	s.lastStallHash = 0
	s.cancelStallTimer()
}

func (s *Session) cancelStallTimer() {
	if s.stallTimer != nil {
		s.stallTimer.Stop()
		s.stallTimer = nil
	}
}

// resetStallTimer is spec §4.4's content-based timer: it hashes the
// normalized, trimmed tail of the buffer and only restarts the timer when
// that hash differs from the last one seen — so a TUI spinner's escape-
// sequence churn never defers stall detection, only genuinely new visible
// content does.
func (s *Session) resetStallTimer(rawBuf string) {
	if !s.stallEnabled || s.stallTimeoutMs <= 0 {
		return
	}
	normalized := strings.TrimSpace(ansiutil.StripForMatching(rawBuf))
	tail := ansiutil.Tail(normalized, stallHashTailBytes)
	h := ansiutil.ContentHash(tail)
	if h == s.lastContentHash && s.stallTimer != nil {
		return
	}
	s.lastContentHash = h

	if s.stallStartedAt.IsZero() {
		s.stallStartedAt = s.clk.Now()
	}
	s.armStallTimer()
}

func (s *Session) armStallTimer() {
	s.stallGen++
	gen := s.stallGen
	if s.stallTimer != nil {
		s.stallTimer.Stop()
	}
	s.stallTimer = s.clk.AfterFunc(msDuration(int(s.stallBackoffMs)), func() {
		s.do(func() { s.fireStall(gen) })
	})
}

// fireStall implements the "Firing" half of spec §4.4.
func (s *Session) fireStall(gen int) {
	if gen != s.stallGen || s.stallTimer == nil {
		return
	}
	s.stallTimer = nil

	if s.status != core.StatusBusy && s.status != core.StatusAuthenticating {
		return
	}

	rawBuf := s.bufferString()

	if loading, ok := s.adapter.DetectLoading(rawBuf); ok && loading {
		s.armStallTimer()
		return
	}

	rawTail := ansiutil.Tail(rawBuf, stallHashTailBytes)
	rawHash := ansiutil.ContentHash(rawTail)
	if rawHash == s.lastStallHash {
		s.armStallTimer()
		return
	}
	s.lastStallHash = rawHash

	if complete, ok := s.adapter.DetectTaskComplete(rawBuf); ok && complete {
		s.outputBuffer = s.outputBuffer[:0]
		s.cancelStallTimer()
		s.setStatus(core.StatusReady)
		s.publish(core.Event{Kind: core.EventReady, SessionID: s.id})
		return
	}

	if s.stallEmissionCount >= defaultStallEmissionCap {
		s.log.Warn("stall emission cap reached, suspending detection for this task", "count", s.stallEmissionCount)
		return
	}
	s.stallEmissionCount++

	recentOutput := strings.TrimSpace(ansiutil.StripForClassifier(ansiutil.Tail(rawBuf, recentOutputClassifyBytes)))
	durationMs := s.clk.Now().Sub(s.stallStartedAt).Milliseconds()

	s.publish(core.Event{
		Kind:            core.EventStallDetected,
		SessionID:       s.id,
		RecentOutput:    recentOutput,
		StallDurationMs: durationMs,
	})
}

// HandleStallClassification applies the external classifier's verdict
// (spec §4.4 "Handling classifier results").
func (s *Session) HandleStallClassification(c *core.StallClassification) {
	s.do(func() {
		if s.status != core.StatusBusy && s.status != core.StatusAuthenticating {
			return // async race; ignore
		}

		if c == nil || c.State == core.StallStillWorking {
			s.stallBackoffMs *= 2
			if s.stallBackoffMs > defaultStallBackoffCapMs {
				s.stallBackoffMs = defaultStallBackoffCapMs
			}
			s.lastContentHash = 0
			s.lastStallHash = 0
			s.armStallTimer()
			return
		}

		switch c.State {
		case core.StallWaitingForInput:
			if c.SuggestedResponse != "" {
				s.deliverSuggestedResponse(c.SuggestedResponse)
			} else {
				s.writeRawLocked("\r")
			}
			s.outputBuffer = s.outputBuffer[:0]
			s.publish(core.Event{
				Kind:          core.EventBlockingPrompt,
				SessionID:     s.id,
				Prompt:        core.BlockingPromptInfo{Detected: true, Type: core.PromptStallClassified, Prompt: c.Prompt},
				AutoResponded: true,
			})

		case core.StallTaskComplete:
			s.outputBuffer = s.outputBuffer[:0]
			s.cancelStallTimer()
			s.setStatus(core.StatusReady)
			s.publish(core.Event{Kind: core.EventReady, SessionID: s.id})

		case core.StallError:
			s.cancelStallTimer()
			s.publish(core.Event{Kind: core.EventError, SessionID: s.id, Reason: c.Prompt})
		}
	})
}
