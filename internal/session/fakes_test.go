package session

import (
	"io"
	"sync"

	"github.com/seamus/ptysup/internal/core"
	"github.com/seamus/ptysup/internal/ptyproc"
)

// fakePTY is an in-memory ptyproc.Primitive: the test feeds bytes through
// the pipe writer to simulate child output, and captures every Write call
// the session makes so tests can assert on outbound bytes without a real
// pseudo-terminal.
type fakePTY struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written [][]byte

	waitOnce sync.Once
	waitCh   chan struct{}

	resizeCols, resizeRows int
	killSignal             string
}

func newFakePTY() *fakePTY {
	r, w := io.Pipe()
	return &fakePTY{r: r, w: w, waitCh: make(chan struct{})}
}

func (f *fakePTY) Read(b []byte) (int, error) { return f.r.Read(b) }

func (f *fakePTY) Write(b []byte) (int, error) {
	cp := append([]byte(nil), b...)
	f.mu.Lock()
	f.written = append(f.written, cp)
	f.mu.Unlock()
	return len(b), nil
}

func (f *fakePTY) Resize(cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizeCols, f.resizeRows = cols, rows
	return nil
}

func (f *fakePTY) Kill(signal string) error {
	f.mu.Lock()
	f.killSignal = signal
	f.mu.Unlock()
	f.waitOnce.Do(func() { close(f.waitCh) })
	return nil
}

func (f *fakePTY) Pid() int { return 4242 }

func (f *fakePTY) Wait() error {
	<-f.waitCh
	return nil
}

func (f *fakePTY) Close() error { return f.w.Close() }

// feed pushes bytes into the session's read side, as if the child process
// had written them to the PTY master.
func (f *fakePTY) feed(data string) {
	_, _ = f.w.Write([]byte(data))
}

// writes returns a copy of everything written to the fake PTY so far.
func (f *fakePTY) writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

func newFakeSpawner(p *fakePTY) Spawner {
	return func(command string, args []string, workDir string, env []string, cols, rows int) (ptyproc.Primitive, error) {
		return p, nil
	}
}

// fakeAdapter implements adapter.Adapter with overridable hooks; every hook
// defaults to a harmless zero-value response when left nil, so a test only
// has to set the one or two behaviors it exercises.
type fakeAdapter struct {
	rules            []core.AutoResponseRule
	usesTUIMenus     bool
	readySettleMs    int
	readySettleOk    bool
	readyFn          func(string) bool
	taskCompleteFn   func(string) (bool, bool)
	loadingFn        func(string) (bool, bool)
	blockingPromptFn func(string) core.BlockingPromptInfo
	loginFn          func(string) core.LoginInfo
	exitFn           func(string) core.ExitInfo
	versionFn        func(string) (string, bool)
	parseFn          func(string) (*core.ParsedOutput, bool)
}

func (a *fakeAdapter) AdapterType() string  { return "fake" }
func (a *fakeAdapter) DisplayName() string  { return "Fake Adapter" }
func (a *fakeAdapter) AutoResponseRules() []core.AutoResponseRule { return a.rules }
func (a *fakeAdapter) UsesTUIMenus() bool   { return a.usesTUIMenus }

func (a *fakeAdapter) ReadySettleMs() (int, bool) { return a.readySettleMs, a.readySettleOk }

func (a *fakeAdapter) GetCommand(cfg core.SpawnConfig) string    { return "true" }
func (a *fakeAdapter) GetArgs(cfg core.SpawnConfig) []string     { return nil }
func (a *fakeAdapter) GetEnv(cfg core.SpawnConfig) map[string]string { return nil }

func (a *fakeAdapter) DetectLogin(buffer string) core.LoginInfo {
	if a.loginFn != nil {
		return a.loginFn(buffer)
	}
	return core.LoginInfo{}
}

func (a *fakeAdapter) DetectReady(buffer string) bool {
	if a.readyFn != nil {
		return a.readyFn(buffer)
	}
	return false
}

func (a *fakeAdapter) DetectTaskComplete(buffer string) (bool, bool) {
	if a.taskCompleteFn != nil {
		return a.taskCompleteFn(buffer)
	}
	return false, false
}

func (a *fakeAdapter) DetectLoading(buffer string) (bool, bool) {
	if a.loadingFn != nil {
		return a.loadingFn(buffer)
	}
	return false, false
}

func (a *fakeAdapter) DetectBlockingPrompt(buffer string) core.BlockingPromptInfo {
	if a.blockingPromptFn != nil {
		return a.blockingPromptFn(buffer)
	}
	return core.BlockingPromptInfo{}
}

func (a *fakeAdapter) DetectExit(buffer string) core.ExitInfo {
	if a.exitFn != nil {
		return a.exitFn(buffer)
	}
	return core.ExitInfo{}
}

func (a *fakeAdapter) DetectVersion(buffer string) (string, bool) {
	if a.versionFn != nil {
		return a.versionFn(buffer)
	}
	return "", false
}

func (a *fakeAdapter) ParseOutput(buffer string) (*core.ParsedOutput, bool) {
	if a.parseFn != nil {
		return a.parseFn(buffer)
	}
	return nil, false
}

func (a *fakeAdapter) FormatInput(message string) string { return message }
func (a *fakeAdapter) PromptPattern() string              { return "" }
