// Package ptyproc wraps github.com/creack/pty behind the minimal
// spawn/read/write/resize/kill primitive spec §2 assumes as an external
// collaborator ("native PTY bindings"). The rest of the engine talks to
// the Primitive interface so it can be faked in tests without a real
// pseudo-terminal.
package ptyproc

import (
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// Primitive is the PTY process contract Session depends on.
type Primitive interface {
	io.Reader
	io.Writer
	Resize(cols, rows int) error
	Kill(signal string) error
	Pid() int
	Wait() error
	Close() error
}

// process is the creack/pty-backed implementation of Primitive.
type process struct {
	cmd    *exec.Cmd
	master *os.File
}

// Spawn starts command/args under a new PTY of the given size, in workDir,
// with env layered as spec §6 describes: forced TERM/COLORTERM, then
// adapter env, then user env (all already merged into env by the caller).
func Spawn(command string, args []string, workDir string, env []string, cols, rows int) (Primitive, error) {
	cmd := exec.Command(command, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	cmd.Env = env

	master, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return nil, err
	}
	return &process{cmd: cmd, master: master}, nil
}

func (p *process) Read(b []byte) (int, error)  { return p.master.Read(b) }
func (p *process) Write(b []byte) (int, error) { return p.master.Write(b) }

func (p *process) Resize(cols, rows int) error {
	return pty.Setsize(p.master, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

func (p *process) Pid() int { return p.cmd.Process.Pid }

func (p *process) Wait() error { return p.cmd.Wait() }

func (p *process) Close() error { return p.master.Close() }

// namedSignals resolves the extended signal names spec's DOMAIN STACK
// section adds to Session.Kill beyond the default SIGTERM/SIGKILL pair.
var namedSignals = map[string]syscall.Signal{
	"SIGTERM": unix.SIGTERM,
	"SIGKILL": unix.SIGKILL,
	"SIGINT":  unix.SIGINT,
	"SIGHUP":  unix.SIGHUP,
	"SIGUSR1": unix.SIGUSR1,
	"SIGUSR2": unix.SIGUSR2,
	"SIGQUIT": unix.SIGQUIT,
}

// Kill sends the named signal to the child process itself (not its process
// group); an empty or unrecognised name sends SIGTERM.
func (p *process) Kill(signal string) error {
	sig, ok := namedSignals[strings.ToUpper(signal)]
	if !ok {
		sig = unix.SIGTERM
	}
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(sig)
}
