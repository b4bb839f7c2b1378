// Package sandboxvm defines the Controller's dependency boundary on the
// student's sandbox VM and ships one concrete, testable implementation
// backed by a local PTY. The Controller itself only ever talks to the
// Channel interface; swapping in an in-browser WASM VM at the call site is
// an integration concern outside this package.
package sandboxvm

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/creack/pty"

	"github.com/clitutor/controller/internal/sentinel"
)

// checkDrain is how long HasDirWithFile/FindFileContaining wait after
// sending their synthetic find/grep command before reading back its temp
// file; both are simple, fast filesystem scans under the sandbox root.
const checkDrain = 300 * time.Millisecond

// Channel is everything the Driver needs from the sandbox VM: a serial byte
// stream to relay through the Coalescer/Parser, and an out-of-band side
// channel for writing the shell profile and performing filesystem-kind
// validator checks without going through the captured command stream.
type Channel interface {
	// Boot starts the VM and its serial output stream. It does not wait for
	// the shell to become ready; the caller detects that from Output.
	Boot(ctx context.Context) error

	// SendSerial writes raw bytes to the VM's stdin, as if typed at the
	// keyboard.
	SendSerial(data []byte) error

	// Output returns the channel of raw bytes read from the VM's stdout.
	// Closed when the VM exits.
	Output() <-chan []byte

	// WriteFile writes content to a path inside the sandbox filesystem,
	// out of band (never echoed over the serial stream).
	WriteFile(path string, content []byte) error

	// ReadFile reads a path inside the sandbox filesystem out of band.
	ReadFile(path string) ([]byte, error)

	// FileExists reports whether path exists inside the sandbox.
	FileExists(path string) bool

	// HasDirWithFile reports whether root contains at least one
	// subdirectory that itself directly contains at least one regular
	// file (mirrors `find root -mindepth 2 -maxdepth 2 -type f`).
	HasDirWithFile(root string) bool

	// FindFileContaining reports whether any regular file under root
	// (recursive) contains substr.
	FindFileContaining(root, substr string) bool

	// Close tears down the VM.
	Close() error
}

// PTYSession is a Channel backed by a real local bash process run under a
// pseudo-terminal. It is the reference implementation used for development
// and testing: the full sentinel protocol round-trips through an actual
// shell instead of a simulated one.
type PTYSession struct {
	cmd      *exec.Cmd
	ptmx     *os.File
	out      chan []byte
	root     string // absolute path standing in for sentinel.SandboxRoot
	checkSeq uint64 // counter for HasDirWithFile/FindFileContaining scratch files
}

// NewPTYSession constructs a PTYSession rooted at root, which is created if
// it does not already exist. root stands in for the sandbox's filesystem;
// the generated profile still reports sentinel.SandboxRoot as $HOME inside
// the shell, but WriteFile/ReadFile/FileExists address the real host path.
func NewPTYSession(root string) (*PTYSession, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("sandboxvm: create root: %w", err)
	}
	return &PTYSession{
		root: root,
		out:  make(chan []byte, 64),
	}, nil
}

// Boot starts a bash login shell under a PTY and begins pumping its output
// to Output(). It does not itself write the sentinel profile; callers write
// it via WriteFile and source it over SendSerial, mirroring how an
// out-of-band filesystem write precedes an in-band "source" command against
// a real VM.
func (s *PTYSession) Boot(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "bash", "--norc", "--noprofile")
	cmd.Env = append(os.Environ(), "HOME="+s.root)
	cmd.Dir = s.root

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("sandboxvm: start pty: %w", err)
	}
	s.cmd = cmd
	s.ptmx = ptmx

	go s.pump()
	return nil
}

func (s *PTYSession) pump() {
	defer close(s.out)
	buf := make([]byte, 32*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.out <- chunk
		}
		if err != nil {
			return
		}
	}
}

// SendSerial writes bytes to the shell's stdin.
func (s *PTYSession) SendSerial(data []byte) error {
	_, err := s.ptmx.Write(data)
	return err
}

// Output returns the channel of raw bytes read from the shell.
func (s *PTYSession) Output() <-chan []byte {
	return s.out
}

// WriteFile writes path (resolved under root) with content and mode 0o644.
func (s *PTYSession) WriteFile(path string, content []byte) error {
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0o644)
}

// ReadFile reads path (resolved under root).
func (s *PTYSession) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(s.resolve(path))
}

// FileExists reports whether path (resolved under root) exists.
func (s *PTYSession) FileExists(path string) bool {
	_, err := os.Stat(s.resolve(path))
	return err == nil
}

// HasDirWithFile reports whether root has a direct subdirectory that
// itself directly contains at least one regular file, mirroring
// `find root -mindepth 2 -maxdepth 2 -type f`. Per spec.md §4.4 this runs
// as two real serial commands against the shell, not an out-of-band host
// walk, so the Parser's skipCaptures accounting (bumped by the Driver
// before every dir_with_file/any_file_contains check) lines up with two
// real CMD_ENDs.
func (s *PTYSession) HasDirWithFile(root string) bool {
	out, _ := s.runToTempFile(fmt.Sprintf("find %s -mindepth 2 -maxdepth 2 -type f", shellQuote(root)))
	return len(strings.TrimSpace(string(out))) > 0
}

// FindFileContaining reports whether any regular file under root
// (recursive) contains substr, via the same two-serial-command pattern as
// HasDirWithFile.
func (s *PTYSession) FindFileContaining(root, substr string) bool {
	out, _ := s.runToTempFile(fmt.Sprintf("grep -rlF -- %s %s", shellQuote(substr), shellQuote(root)))
	return len(strings.TrimSpace(string(out))) > 0
}

// runToTempFile sends shellCmd redirected into a scratch file as the first
// serial command, reads the file back out of band once the shell has had
// time to finish, then sends a second serial command to delete it. Both
// commands' CMD_ENDs are absorbed by the Driver's matching
// IncrementSkipCaptures(2) call; their content never needs to survive the
// Parser's capture path because it is recovered here via ReadFile instead.
func (s *PTYSession) runToTempFile(shellCmd string) ([]byte, error) {
	tmp := fmt.Sprintf("%s/.clitutor-check-%d", sentinel.SandboxRoot, atomic.AddUint64(&s.checkSeq, 1))

	if err := s.SendSerial([]byte(fmt.Sprintf("%s > %s 2>/dev/null\n", shellCmd, shellQuote(tmp)))); err != nil {
		return nil, err
	}
	time.Sleep(checkDrain)

	content, _ := s.ReadFile(tmp)

	if err := s.SendSerial([]byte(fmt.Sprintf("rm -f %s\n", shellQuote(tmp)))); err != nil {
		return content, err
	}
	return content, nil
}

// shellQuote wraps s in single quotes, escaping any embedded single quote,
// so paths and needles with spaces or shell metacharacters pass through
// the synthetic find/grep commands unchanged.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Close terminates the shell process and its PTY.
func (s *PTYSession) Close() error {
	if s.ptmx != nil {
		s.ptmx.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	return nil
}

// resolve maps a sandbox-relative or sentinel.SandboxRoot-relative path to
// the real host path under root.
func (s *PTYSession) resolve(path string) string {
	if rel, ok := strings.CutPrefix(path, sentinel.SandboxRoot); ok {
		rel = strings.TrimPrefix(rel, "/")
		if rel == "" {
			return s.root
		}
		return filepath.Join(s.root, rel)
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}
