package manager

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seamus/ptysup/internal/adapter"
	"github.com/seamus/ptysup/internal/apperr"
	"github.com/seamus/ptysup/internal/core"
)

// testAdapter is a minimal adapter.Adapter for Manager-level tests: it
// spawns a plain shell command and never needs to detect any CLI-specific
// state, since these tests exercise session bookkeeping rather than the
// output pipeline.
type testAdapter struct {
	kind    string
	command string
	args    []string
}

func (a *testAdapter) AdapterType() string { return a.kind }
func (a *testAdapter) DisplayName() string { return a.kind }
func (a *testAdapter) AutoResponseRules() []core.AutoResponseRule { return nil }
func (a *testAdapter) UsesTUIMenus() bool                         { return false }
func (a *testAdapter) ReadySettleMs() (int, bool)                 { return 0, false }
func (a *testAdapter) GetCommand(cfg core.SpawnConfig) string     { return a.command }
func (a *testAdapter) GetArgs(cfg core.SpawnConfig) []string      { return a.args }
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

func newTestManager(t *testing.T, adapters ...adapter.Adapter) *Manager {
	t.Helper()
	reg := adapter.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	mgr := New(Config{Registry: reg})
	t.Cleanup(mgr.StopAll)
	return mgr
}

func TestManager_SpawnUnknownAdapterReturnsNotFound(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.Spawn(core.SpawnConfig{Type: "does-not-exist"})
	assert.ErrorIs(t, err, apperr.ErrAdapterNotFound)
}

func TestManager_SpawnDuplicateIDReturnsError(t *testing.T) {
	mgr := newTestManager(t, &testAdapter{kind: "cat", command: "cat"})

	handle, err := mgr.Spawn(core.SpawnConfig{ID: "dup-1", Type: "cat"})
	require.NoError(t, err)
	require.Equal(t, "dup-1", handle.ID)

	_, err = mgr.Spawn(core.SpawnConfig{ID: "dup-1", Type: "cat"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateID)
}

func TestManager_StopRemovesSession(t *testing.T) {
	mgr := newTestManager(t, &testAdapter{kind: "cat", command: "cat"})

	handle, err := mgr.Spawn(core.SpawnConfig{Type: "cat"})
	require.NoError(t, err)
	require.True(t, mgr.Has(handle.ID))

	require.NoError(t, mgr.Stop(handle.ID, true, 1000))
	assert.False(t, mgr.Has(handle.ID))
}

func TestManager_ListFiltersByType(t *testing.T) {
	mgr := newTestManager(t,
		&testAdapter{kind: "cat-a", command: "cat"},
		&testAdapter{kind: "cat-b", command: "cat"},
	)

	ha, err := mgr.Spawn(core.SpawnConfig{Type: "cat-a"})
	require.NoError(t, err)
	hb, err := mgr.Spawn(core.SpawnConfig{Type: "cat-b"})
	require.NoError(t, err)
	defer func() {
		_ = mgr.Stop(ha.ID, true, 1000)
		_ = mgr.Stop(hb.ID, true, 1000)
	}()

	onlyA := mgr.List("", "cat-a")
	require.Len(t, onlyA, 1)
	assert.Equal(t, ha.ID, onlyA[0].ID)
}

func TestManager_LogsTailsCapturedOutput(t *testing.T) {
	mgr := newTestManager(t, &testAdapter{
		kind:    "echoer",
		command: "sh",
		args:    []string{"-c", "printf 'hello\\nworld\\n'; sleep 5"},
	})

	handle, err := mgr.Spawn(core.SpawnConfig{Type: "echoer"})
	require.NoError(t, err)
	defer func() { _ = mgr.Stop(handle.ID, true, 1000) }()

	require.Eventually(t, func() bool {
		lines, err := mgr.Logs(handle.ID, 10)
		if err != nil {
			return false
		}
		joined := strings.Join(lines, "\n")
		return strings.Contains(joined, "hello") && strings.Contains(joined, "world")
	}, 3*time.Second, 20*time.Millisecond)
}

func TestManager_GetUnknownSessionReturnsNotFound(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.Get("nope")
	assert.ErrorIs(t, err, apperr.ErrSessionNotFound)
}

func TestManager_RuleCRUDDelegatesToSession(t *testing.T) {
	mgr := newTestManager(t, &testAdapter{kind: "cat", command: "cat"})
	handle, err := mgr.Spawn(core.SpawnConfig{Type: "cat"})
	require.NoError(t, err)
	defer func() { _ = mgr.Stop(handle.ID, true, 1000) }()

	rule := core.AutoResponseRule{PatternSrc: "foo", Response: "bar", Safe: true}
	require.NoError(t, mgr.AddAutoResponseRule(handle.ID, rule))

	rules, err := mgr.GetAutoResponseRules(handle.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "foo", rules[0].PatternSrc)

	require.NoError(t, mgr.RemoveAutoResponseRule(handle.ID, "foo"))
	rules, err = mgr.GetAutoResponseRules(handle.ID)
	require.NoError(t, err)
	assert.Empty(t, rules)
}
