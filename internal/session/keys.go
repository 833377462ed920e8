package session

import (
	"time"

	"github.com/seamus/ptysup/internal/apperr"
	"github.com/seamus/ptysup/internal/core"
	"github.com/seamus/ptysup/internal/keytable"
)

// writeRawLocked writes bytes to the PTY exactly as given. Must only be
// called from the session's own goroutine (via do/action closures).
func (s *Session) writeRawLocked(data string) {
	if s.pty == nil {
		return
	}
	if _, err := s.pty.Write([]byte(data)); err != nil {
		s.log.Warn("pty write failed", "error", err)
	}
}

// WriteRaw sends bytes exactly as given, bypassing FormatInput/CR append.
func (s *Session) WriteRaw(data string) {
	s.do(func() { s.writeRawLocked(data) })
}

// Write applies adapter.FormatInput and appends CR.
func (s *Session) Write(data string) {
	s.do(func() { s.writeRawLocked(s.adapter.FormatInput(data) + "\r") })
}

// Send transitions the session to busy, clears the buffer, resets the
// stall timer, writes the formatted message, then 50ms later writes Enter
// as a separate write — TUI CLIs drop a trailing CR that arrives in the
// same render tick (spec §4.1).
func (s *Session) Send(content string) (core.SessionMessage, error) {
	var msg core.SessionMessage
	var sendErr error
	s.do(func() {
		if s.status == core.StatusStopped || s.status == core.StatusStopping || s.status == core.StatusError {
			sendErr = apperr.ErrSessionTerminal
			return
		}
		s.setStatus(core.StatusBusy)
		s.outputBuffer = s.outputBuffer[:0]
		s.resetStallTimerForNewTask()

		formatted := s.adapter.FormatInput(content)
		s.writeRawLocked(formatted)

		msg = core.SessionMessage{
			SessionID: s.id,
			Direction: core.DirectionInbound,
			Type:      core.MessageTask,
			Content:   content,
			Timestamp: s.clk.Now(),
		}

		s.clk.AfterFunc(sendEnterDelay, func() {
			s.do(func() {
				if s.pty != nil {
					s.writeRawLocked("\r")
				}
			})
		})
	})
	return msg, sendErr
}

// sendKeySequence staggers writes by 50ms per key, mapping each name
// through keytable.Lookup; unknown names are sent as literal characters
// with a warning (spec §4.1 sendKeys).
func (s *Session) sendKeySequence(keys []string) {
	for i, name := range keys {
		seq, ok := keytable.Lookup(name)
		if !ok {
			s.log.Warn("unknown key name, sending literally", "key", name)
			seq = name
		}
		if i == 0 {
			s.writeRawLocked(seq)
			continue
		}
		delay := keyStaggerDelay * time.Duration(i)
		k := seq
		s.clk.AfterFunc(delay, func() {
			s.do(func() {
				if s.pty != nil {
					s.writeRawLocked(k)
				}
			})
		})
	}
}

// SendKeys sends a sequence of named keys staggered 50ms apart.
func (s *Session) SendKeys(keys []string) {
	s.do(func() { s.sendKeySequence(keys) })
}

// SelectMenuOption sends Down n times with 50ms between each, then Enter.
func (s *Session) SelectMenuOption(n int) {
	keys := make([]string, 0, n+1)
	for i := 0; i < n; i++ {
		keys = append(keys, "down")
	}
	keys = append(keys, "enter")
	s.do(func() { s.sendKeySequence(keys) })
}

// Paste wraps text in the bracketed-paste escape sequence unless bracketed
// is false, in which case it writes the raw text (spec §4.1, §6).
func (s *Session) Paste(text string, bracketed bool) {
	s.do(func() {
		if bracketed {
			s.writeRawLocked("\x1b[200~" + text + "\x1b[201~")
			return
		}
		s.writeRawLocked(text)
	})
}
