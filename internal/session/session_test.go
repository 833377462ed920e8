package session

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamus/ptysup/internal/adapter"
	"github.com/seamus/ptysup/internal/clock"
	"github.com/seamus/ptysup/internal/core"
)

func intPtr(v int) *int { return &v }

func newTestSession(t *testing.T, a *fakeAdapter, pty *fakePTY) *Session {
	t.Helper()
	s := New(core.SpawnConfig{Type: "fake", ReadySettleMs: intPtr(5)}, a, Options{
		Spawner: newFakeSpawner(pty),
		Clock:   clock.Real{},
	})
	t.Cleanup(func() {
		_ = s.Kill("SIGKILL")
	})
	return s
}

func TestSession_StartReachesReadyOnDetectReady(t *testing.T) {
	pty := newFakePTY()
	a := &fakeAdapter{readyFn: func(buf string) bool { return strings.Contains(buf, "READY") }}
	s := newTestSession(t, a, pty)

	require.NoError(t, s.Start())
	assert.Equal(t, core.StatusStarting, s.ToHandle().Status)

	pty.feed("booting...\nREADY\n")

	assert.Eventually(t, func() bool {
		return s.ToHandle().Status == core.StatusReady
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_SendSetsBusyAndWritesFormattedInput(t *testing.T) {
	pty := newFakePTY()
	a := &fakeAdapter{readyFn: func(buf string) bool { return strings.Contains(buf, "READY") }}
	s := newTestSession(t, a, pty)
	require.NoError(t, s.Start())
	pty.feed("READY\n")
	require.Eventually(t, func() bool {
		return s.ToHandle().Status == core.StatusReady
	}, 2*time.Second, 10*time.Millisecond)

	_, err := s.Send("hello world")
	require.NoError(t, err)
	assert.Equal(t, core.StatusBusy, s.ToHandle().Status)

	writes := pty.writes()
	require.NotEmpty(t, writes)
	assert.Equal(t, "hello world", string(writes[0]))

	// the trailing Enter is written as a separate, slightly delayed write.
	assert.Eventually(t, func() bool {
		for _, w := range pty.writes() {
			if string(w) == "\r" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_SendOnTerminalStatusErrors(t *testing.T) {
	pty := newFakePTY()
	a := &fakeAdapter{}
	s := newTestSession(t, a, pty)
	require.NoError(t, s.Start())
	require.NoError(t, s.Kill("SIGTERM"))

	require.Eventually(t, func() bool {
		return s.ToHandle().Status == core.StatusStopped
	}, 2*time.Second, 10*time.Millisecond)

	_, err := s.Send("anything")
	assert.Error(t, err)
}

func TestSession_OutputBufferCappedAtLimit(t *testing.T) {
	pty := newFakePTY()
	a := &fakeAdapter{}
	s := newTestSession(t, a, pty)
	require.NoError(t, s.Start())

	big := strings.Repeat("x", outputBufferCap+5000)
	pty.feed(big)

	assert.Eventually(t, func() bool {
		return len(s.GetOutputBuffer()) == outputBufferCap
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_OnceRuleFiresExactlyOnce(t *testing.T) {
	pty := newFakePTY()
	rule := core.AutoResponseRule{
		Pattern:      regexp.MustCompile(`(?i)continue\?`),
		PatternSrc:   "continue?",
		Flags:        "i",
		Type:         core.PromptUnknown,
		Response:     "yes",
		ResponseType: core.ResponseText,
		Safe:         true,
		Once:         true,
	}
	a := &fakeAdapter{rules: []core.AutoResponseRule{rule}}
	s := newTestSession(t, a, pty)
	require.NoError(t, s.Start())

	pty.feed("Continue? [y/n]")
	require.Eventually(t, func() bool {
		for _, w := range pty.writes() {
			if string(w) == "yes\r" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	pty.feed("Continue? [y/n]")
	time.Sleep(150 * time.Millisecond)

	count := 0
	for _, w := range pty.writes() {
		if string(w) == "yes\r" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSession_StallDetectedThenClassifiedTaskComplete(t *testing.T) {
	pty := newFakePTY()
	a := &fakeAdapter{readyFn: func(buf string) bool { return strings.Contains(buf, "READY") }}
	s := New(core.SpawnConfig{Type: "fake", ReadySettleMs: intPtr(5)}, a, Options{
		Spawner:        newFakeSpawner(pty),
		Clock:          clock.Real{},
		StallEnabled:   true,
		StallTimeoutMs: 30,
	})
	t.Cleanup(func() { _ = s.Kill("SIGKILL") })

	require.NoError(t, s.Start())
	pty.feed("READY\n")
	require.Eventually(t, func() bool {
		return s.ToHandle().Status == core.StatusReady
	}, 2*time.Second, 10*time.Millisecond)

	events, unsub := s.Subscribe(32)
	defer unsub()

	_, err := s.Send("do the thing")
	require.NoError(t, err)
	pty.feed("working on it...\n")

	var stalled bool
	deadline := time.After(2 * time.Second)
wait:
	for {
		select {
		case ev := <-events:
			if ev.Kind == core.EventStallDetected {
				stalled = true
				break wait
			}
		case <-deadline:
			break wait
		}
	}
	require.True(t, stalled, "expected a stall_detected event")

	s.HandleStallClassification(&core.StallClassification{State: core.StallTaskComplete})

	assert.Eventually(t, func() bool {
		return s.ToHandle().Status == core.StatusReady
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_BlockingPromptHashDedup(t *testing.T) {
	pty := newFakePTY()
	a := &fakeAdapter{
		blockingPromptFn: func(buf string) core.BlockingPromptInfo {
			if buf == "" {
				return core.BlockingPromptInfo{}
			}
			return core.BlockingPromptInfo{Detected: true, Type: core.PromptUnknown, Prompt: "what do you want?"}
		},
	}
	s := newTestSession(t, a, pty)

	events, unsub := s.Subscribe(32)
	defer unsub()

	require.NoError(t, s.Start())
	pty.feed("x")
	pty.feed("y")

	seen := 0
	deadline := time.After(500 * time.Millisecond)
collect:
	for {
		select {
		case ev := <-events:
			if ev.Kind == core.EventBlockingPrompt {
				seen++
			}
		case <-deadline:
			break collect
		}
	}
	assert.Equal(t, 1, seen)
}

// TestSession_ShellSmokeParsesMessageOnTaskComplete reproduces spec §8
// scenario S1 end-to-end through the real shell adapter: the task-complete
// transition must parse the buffer that triggered it (shell.go's ParseFn)
// before clearing it, not just stray output that arrives once already
// ready.
func TestSession_ShellSmokeParsesMessageOnTaskComplete(t *testing.T) {
	pty := newFakePTY()
	a := adapter.NewShellAdapter()
	s := New(core.SpawnConfig{Type: "shell", ReadySettleMs: intPtr(5)}, a, Options{
		Spawner: newFakeSpawner(pty),
		Clock:   clock.Real{},
	})
	t.Cleanup(func() { _ = s.Kill("SIGKILL") })

	events, unsub := s.Subscribe(32)
	defer unsub()

	require.NoError(t, s.Start())
	pty.feed("pty> ")
	require.Eventually(t, func() bool {
		return s.ToHandle().Status == core.StatusReady
	}, 2*time.Second, 10*time.Millisecond)

	_, err := s.Send("echo hi")
	require.NoError(t, err)

	pty.feed("hi\npty> ")

	var gotMessage, gotTaskComplete bool
	var msgContent string
	deadline := time.After(3 * time.Second)
collect:
	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case core.EventMessage:
				gotMessage = true
				msgContent = ev.Message.Content
			case core.EventTaskComplete:
				gotTaskComplete = true
			}
			if gotMessage && gotTaskComplete {
				break collect
			}
		case <-deadline:
			break collect
		}
	}
	assert.True(t, gotMessage, "expected a message event")
	assert.True(t, gotTaskComplete, "expected a task_complete event")
	assert.Equal(t, "hi", msgContent)
}
