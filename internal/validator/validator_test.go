package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/clitutor/controller/internal/lesson"
	"github.com/clitutor/controller/internal/parser"
)

// fakeChannel is an in-memory sandboxvm.Channel for validator tests: file
// contents and the two filesystem-predicate answers are set directly
// rather than reached through a real PTY, following the same fake-channel
// pattern internal/driver uses for its own Channel-dependent tests.
type fakeChannel struct {
	files       map[string][]byte
	hasDirFile  bool
	findContain bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{files: map[string][]byte{}}
}

func (f *fakeChannel) Boot(ctx context.Context) error { return nil }

func (f *fakeChannel) SendSerial(data []byte) error { return nil }

func (f *fakeChannel) Output() <-chan []byte { return nil }

func (f *fakeChannel) WriteFile(path string, content []byte) error {
	f.files[path] = content
	return nil
}

func (f *fakeChannel) ReadFile(path string) ([]byte, error) {
	c, ok := f.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (f *fakeChannel) FileExists(path string) bool {
	_, ok := f.files[path]
	return ok
}

func (f *fakeChannel) HasDirWithFile(root string) bool        { return f.hasDirFile }
func (f *fakeChannel) FindFileContaining(root, s string) bool { return f.findContain }
func (f *fakeChannel) Close() error                           { return nil }

func ex(validationType, expected string) lesson.Exercise {
	return lesson.Exercise{ValidationType: validationType, Expected: expected}
}

func TestValidateOutputEquals(t *testing.T) {
	v := New(newFakeChannel())

	got := v.Validate(ex("output_equals", "hello"), parser.CommandResult{Stdout: "  hello\n"})
	if !got.Passed {
		t.Errorf("expected pass, got fail: %s", got.Message)
	}

	got = v.Validate(ex("output_equals", "hello"), parser.CommandResult{Stdout: "goodbye"})
	if got.Passed {
		t.Error("expected fail, got pass")
	}
}

func TestValidateOutputContains(t *testing.T) {
	v := New(newFakeChannel())

	got := v.Validate(ex("output_contains", "lo wo"), parser.CommandResult{Stdout: "hello world"})
	if !got.Passed {
		t.Errorf("expected pass, got fail: %s", got.Message)
	}

	got = v.Validate(ex("output_contains", "missing"), parser.CommandResult{Stdout: "hello world"})
	if got.Passed {
		t.Error("expected fail, got pass")
	}
}

func TestValidateOutputRegex(t *testing.T) {
	v := New(newFakeChannel())

	got := v.Validate(ex("output_regex", `^\d+ files?$`), parser.CommandResult{Stdout: "3 files"})
	if !got.Passed {
		t.Errorf("expected pass, got fail: %s", got.Message)
	}

	got = v.Validate(ex("output_regex", `^\d+ files?$`), parser.CommandResult{Stdout: "three files"})
	if got.Passed {
		t.Error("expected fail, got pass")
	}
}

func TestValidateOutputRegexInvalidPattern(t *testing.T) {
	v := New(newFakeChannel())

	got := v.Validate(ex("output_regex", `(unterminated`), parser.CommandResult{Stdout: "anything"})
	if got.Passed {
		t.Error("expected fail for invalid regex, got pass")
	}
	if got.Message != "Invalid validation pattern." {
		t.Errorf("unexpected message: %q", got.Message)
	}
}

func TestValidateExitCode(t *testing.T) {
	v := New(newFakeChannel())

	got := v.Validate(ex("exit_code", "0"), parser.CommandResult{ReturnCode: 0})
	if !got.Passed {
		t.Errorf("expected pass, got fail: %s", got.Message)
	}

	got = v.Validate(ex("exit_code", "0"), parser.CommandResult{ReturnCode: 1})
	if got.Passed {
		t.Error("expected fail, got pass")
	}
}

func TestValidateExitCodeNonInteger(t *testing.T) {
	v := New(newFakeChannel())

	got := v.Validate(ex("exit_code", "not-a-number"), parser.CommandResult{ReturnCode: 0})
	if got.Passed {
		t.Error("expected fail for non-integer expected exit code, got pass")
	}
	if got.Message != "Invalid expected exit code." {
		t.Errorf("unexpected message: %q", got.Message)
	}
}

func TestValidateCwdRegex(t *testing.T) {
	v := New(newFakeChannel())

	got := v.Validate(ex("cwd_regex", `/home/student/docs$`), parser.CommandResult{Cwd: "/home/student/docs"})
	if !got.Passed {
		t.Errorf("expected pass, got fail: %s", got.Message)
	}

	got = v.Validate(ex("cwd_regex", `/home/student/docs$`), parser.CommandResult{Cwd: "/home/student"})
	if got.Passed {
		t.Error("expected fail, got pass")
	}
}

func TestValidateCwdRegexInvalidPattern(t *testing.T) {
	v := New(newFakeChannel())

	got := v.Validate(ex("cwd_regex", `[unterminated`), parser.CommandResult{Cwd: "/home/student"})
	if got.Passed {
		t.Error("expected fail for invalid regex, got pass")
	}
	if got.Message != "Invalid validation pattern." {
		t.Errorf("unexpected message: %q", got.Message)
	}
}

func TestValidateFileExists(t *testing.T) {
	ch := newFakeChannel()
	ch.files["/home/student/notes.txt"] = []byte("hi")
	v := New(ch)

	got := v.Validate(ex("file_exists", "/home/student/notes.txt"), parser.CommandResult{Cwd: sandboxRootPlaceholder})
	if !got.Passed {
		t.Errorf("expected pass, got fail: %s", got.Message)
	}

	got = v.Validate(ex("file_exists", "/home/student/missing.txt"), parser.CommandResult{Cwd: sandboxRootPlaceholder})
	if got.Passed {
		t.Error("expected fail, got pass")
	}
}

func TestValidateFileExistsCwdRelativeFallback(t *testing.T) {
	ch := newFakeChannel()
	// checkFileExists resolves the fallback path relative to cwd, so the
	// Channel sees it exactly as cwdRelativePath builds it: "docs/notes.txt".
	ch.files["docs/notes.txt"] = []byte("hi")
	v := New(ch)

	// Exercise names a bare filename; the student ran the command from a
	// subdirectory, so the path only resolves relative to their cwd.
	got := v.Validate(ex("file_exists", "notes.txt"), parser.CommandResult{Cwd: "/home/student/docs"})
	if !got.Passed {
		t.Errorf("expected pass via cwd-relative fallback, got fail: %s", got.Message)
	}
}

func TestValidateFileContains(t *testing.T) {
	ch := newFakeChannel()
	ch.files["/home/student/notes.txt"] = []byte("the quick brown fox")
	v := New(ch)

	got := v.Validate(ex("file_contains", "/home/student/notes.txt::quick brown"), parser.CommandResult{Cwd: sandboxRootPlaceholder})
	if !got.Passed {
		t.Errorf("expected pass, got fail: %s", got.Message)
	}

	got = v.Validate(ex("file_contains", "/home/student/notes.txt::slow turtle"), parser.CommandResult{Cwd: sandboxRootPlaceholder})
	if got.Passed {
		t.Error("expected fail for content mismatch, got pass")
	}
}

func TestValidateFileContainsMissingSeparator(t *testing.T) {
	v := New(newFakeChannel())

	got := v.Validate(ex("file_contains", "/home/student/notes.txt no separator here"), parser.CommandResult{})
	if got.Passed {
		t.Error("expected fail for spec missing '::', got pass")
	}
	if got.Message != "Invalid file_contains spec." {
		t.Errorf("unexpected message: %q", got.Message)
	}
}

func TestValidateFileContainsMissingFile(t *testing.T) {
	v := New(newFakeChannel())

	got := v.Validate(ex("file_contains", "/home/student/missing.txt::whatever"), parser.CommandResult{Cwd: sandboxRootPlaceholder})
	if got.Passed {
		t.Error("expected fail for a file that doesn't exist, got pass")
	}
}

func TestValidateDirWithFile(t *testing.T) {
	ch := newFakeChannel()
	v := New(ch)

	got := v.Validate(ex("dir_with_file", ""), parser.CommandResult{})
	if got.Passed {
		t.Error("expected fail when channel reports no dir-with-file, got pass")
	}

	ch.hasDirFile = true
	got = v.Validate(ex("dir_with_file", ""), parser.CommandResult{})
	if !got.Passed {
		t.Errorf("expected pass once channel reports a dir-with-file, got fail: %s", got.Message)
	}
}

func TestValidateAnyFileContains(t *testing.T) {
	ch := newFakeChannel()
	v := New(ch)

	got := v.Validate(ex("any_file_contains", "needle"), parser.CommandResult{})
	if got.Passed {
		t.Error("expected fail when channel reports no match, got pass")
	}

	ch.findContain = true
	got = v.Validate(ex("any_file_contains", "needle"), parser.CommandResult{})
	if !got.Passed {
		t.Errorf("expected pass once channel reports a match, got fail: %s", got.Message)
	}
}

func TestValidateUnknownValidationType(t *testing.T) {
	v := New(newFakeChannel())

	got := v.Validate(ex("no_such_kind", ""), parser.CommandResult{})
	if got.Passed {
		t.Error("expected fail for an unknown validation type, got pass")
	}
}
