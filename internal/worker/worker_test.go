package worker

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamus/ptysup/internal/adapter"
	"github.com/seamus/ptysup/internal/core"
	"github.com/seamus/ptysup/internal/manager"
)

// testAdapter is a minimal adapter.Adapter: the worker protocol tests care
// about command framing, not CLI-specific detection logic.
type testAdapter struct{ kind, command string }

func (a *testAdapter) AdapterType() string { return a.kind }
func (a *testAdapter) DisplayName() string { return a.kind }
func (a *testAdapter) AutoResponseRules() []core.AutoResponseRule { return nil }
func (a *testAdapter) UsesTUIMenus() bool                         { return false }
func (a *testAdapter) ReadySettleMs() (int, bool)                 { return 0, false }
func (a *testAdapter) GetCommand(cfg core.SpawnConfig) string     { return a.command }
func (a *testAdapter) GetArgs(cfg core.SpawnConfig) []string      { return nil }
func (a *testAdapter) GetEnv(cfg core.SpawnConfig) map[string]string { return nil }
func (a *testAdapter) DetectLogin(buffer string) core.LoginInfo   { return core.LoginInfo{} }
func (a *testAdapter) DetectReady(buffer string) bool             { return false }
func (a *testAdapter) DetectTaskComplete(buffer string) (bool, bool) { return false, false }
func (a *testAdapter) DetectLoading(buffer string) (bool, bool)   { return false, false }
func (a *testAdapter) DetectBlockingPrompt(buffer string) core.BlockingPromptInfo {
	return core.BlockingPromptInfo{}
}
func (a *testAdapter) DetectExit(buffer string) core.ExitInfo       { return core.ExitInfo{} }
func (a *testAdapter) DetectVersion(buffer string) (string, bool)   { return "", false }
func (a *testAdapter) ParseOutput(buffer string) (*core.ParsedOutput, bool) { return nil, false }
func (a *testAdapter) FormatInput(message string) string            { return message }
func (a *testAdapter) PromptPattern() string                        { return "" }

// decodedLines parses every line written to buf as a standalone JSON object.
func decodedLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func findEvent(lines []map[string]any, event string) map[string]any {
	for _, l := range lines {
		if l["event"] == event {
			return l
		}
	}
	return nil
}

func newTestWorker(t *testing.T) (*Worker, *manager.Manager, *bytes.Buffer) {
	t.Helper()
	reg := adapter.NewRegistry()
	reg.Register(&testAdapter{kind: "cat", command: "cat"})
	mgr := manager.New(manager.Config{Registry: reg})
	t.Cleanup(mgr.StopAll)

	var out bytes.Buffer
	w := New(mgr, &out, nil)
	return w, mgr, &out
}

func TestWorker_SpawnEmitsAckAndSpawnedEvent(t *testing.T) {
	w, _, out := newTestWorker(t)
	w.dispatch(inbound{Cmd: "spawn", ID: "sess-1", Type: "cat"})

	lines := decodedLines(t, out)
	spawned := findEvent(lines, "spawned")
	require.NotNil(t, spawned)
	assert.Equal(t, "sess-1", spawned["id"])

	ack := findEvent(lines, "ack")
	require.NotNil(t, ack)
	assert.Equal(t, "spawn", ack["cmd"])
	assert.Equal(t, true, ack["success"])
}

func TestWorker_SpawnMissingTypeFailsAck(t *testing.T) {
	w, _, out := newTestWorker(t)
	w.dispatch(inbound{Cmd: "spawn", ID: "sess-2"})

	lines := decodedLines(t, out)
	ack := findEvent(lines, "ack")
	require.NotNil(t, ack)
	assert.Equal(t, false, ack["success"])
	assert.NotEmpty(t, ack["error"])
}

func TestWorker_UnknownCommandEmitsError(t *testing.T) {
	w, _, out := newTestWorker(t)
	w.dispatch(inbound{Cmd: "not-a-real-command"})

	lines := decodedLines(t, out)
	errEv := findEvent(lines, "error")
	require.NotNil(t, errEv)
	assert.Contains(t, errEv["message"], "not-a-real-command")
}

func TestWorker_KillUnknownSessionFailsAck(t *testing.T) {
	w, _, out := newTestWorker(t)
	w.dispatch(inbound{Cmd: "kill", ID: "never-spawned"})

	lines := decodedLines(t, out)
	ack := findEvent(lines, "ack")
	require.NotNil(t, ack)
	assert.Equal(t, "kill", ack["cmd"])
	assert.Equal(t, false, ack["success"])
}

func TestWorker_AddRuleCompilesPatternAndGetRulesReturnsIt(t *testing.T) {
	w, _, out := newTestWorker(t)
	w.dispatch(inbound{Cmd: "spawn", ID: "sess-3", Type: "cat"})
	out.Reset()

	safe := true
	w.dispatch(inbound{Cmd: "addRule", ID: "sess-3", Rule: &ruleDTO{
		Pattern:  "continue\\?",
		Type:     "unknown",
		Response: "yes",
		Safe:     &safe,
	}})
	addAck := findEvent(decodedLines(t, out), "ack")
	require.NotNil(t, addAck)
	assert.Equal(t, true, addAck["success"])

	out.Reset()
	w.dispatch(inbound{Cmd: "getRules", ID: "sess-3"})
	lines := decodedLines(t, out)
	rules := findEvent(lines, "rules")
	require.NotNil(t, rules)
	ruleList, ok := rules["rules"].([]any)
	require.True(t, ok)
	require.Len(t, ruleList, 1)
}

func TestWorker_AddRuleInvalidPatternFailsAck(t *testing.T) {
	w, _, out := newTestWorker(t)
	w.dispatch(inbound{Cmd: "spawn", ID: "sess-4", Type: "cat"})
	out.Reset()

	w.dispatch(inbound{Cmd: "addRule", ID: "sess-4", Rule: &ruleDTO{
		Pattern: "(unterminated",
		Type:    "unknown",
	}})
	ack := findEvent(decodedLines(t, out), "ack")
	require.NotNil(t, ack)
	assert.Equal(t, false, ack["success"])
}

func TestToOutbound_ValidUTF8OutputPassesThroughAsPlainString(t *testing.T) {
	o := toOutbound(core.Event{Kind: core.EventOutput, SessionID: "s1", Data: []byte("hello\n")})
	assert.Equal(t, "hello\n", o.Data)
	assert.Empty(t, o.Encoding)
}

func TestToOutbound_InvalidUTF8OutputIsBase64Encoded(t *testing.T) {
	raw := []byte{0xff, 0xfe, 0x00, 0x01}
	o := toOutbound(core.Event{Kind: core.EventOutput, SessionID: "s1", Data: raw})
	assert.Equal(t, "base64", o.Encoding)
	decoded, err := base64.StdEncoding.DecodeString(o.Data)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestWorker_RunEmitsWorkerReadyAndProcessesCommands(t *testing.T) {
	w, _, out := newTestWorker(t)

	in := strings.NewReader(`{"cmd":"list"}` + "\n")
	done := make(chan error, 1)
	go func() { done <- w.Run(in) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return before deadline")
	}

	lines := decodedLines(t, out)
	require.NotNil(t, findEvent(lines, "worker_ready"))
	require.NotNil(t, findEvent(lines, "list"))
	ack := findEvent(lines, "ack")
	require.NotNil(t, ack)
	assert.Equal(t, "list", ack["cmd"])
}
