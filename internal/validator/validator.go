// Package validator evaluates a completed command against an exercise's
// expected outcome using one of nine predicate kinds.
package validator

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/clitutor/controller/internal/lesson"
	"github.com/clitutor/controller/internal/parser"
	"github.com/clitutor/controller/internal/sandboxvm"
)

// Result is the outcome of validating one command against one exercise.
type Result struct {
	Passed  bool
	Message string
}

func pass(msg string) Result { return Result{Passed: true, Message: msg} }
func fail(msg string) Result { return Result{Passed: false, Message: msg} }

// Validator evaluates exercises against a sandbox Channel, used for the
// filesystem-kind predicates that look past the captured command output.
type Validator struct {
	channel sandboxvm.Channel
}

// New constructs a Validator bound to channel.
func New(channel sandboxvm.Channel) *Validator {
	return &Validator{channel: channel}
}

// Validate dispatches on ex.ValidationType and evaluates result against
// ex.Expected.
func (v *Validator) Validate(ex lesson.Exercise, result parser.CommandResult) Result {
	switch ex.ValidationType {
	case "output_equals":
		return checkOutputEquals(result, ex.Expected)
	case "output_contains":
		return checkOutputContains(result, ex.Expected)
	case "output_regex":
		return checkOutputRegex(result, ex.Expected)
	case "exit_code":
		return checkExitCode(result, ex.Expected)
	case "cwd_regex":
		return checkCwdRegex(result, ex.Expected)
	case "file_exists":
		return v.checkFileExists(result, ex.Expected)
	case "file_contains":
		return v.checkFileContains(result, ex.Expected)
	case "dir_with_file":
		return v.checkDirWithFile(ex.Expected)
	case "any_file_contains":
		return v.checkAnyFileContains(ex.Expected)
	default:
		return fail(fmt.Sprintf("unknown validation type: %s", ex.ValidationType))
	}
}

func checkOutputEquals(result parser.CommandResult, expected string) Result {
	if strings.TrimSpace(result.Stdout) == strings.TrimSpace(expected) {
		return pass("Correct!")
	}
	return fail("Output doesn't match expected result.")
}

func checkOutputContains(result parser.CommandResult, expected string) Result {
	if strings.Contains(result.Stdout, strings.TrimSpace(expected)) {
		return pass("Correct!")
	}
	return fail("Output doesn't contain expected text.")
}

func checkOutputRegex(result parser.CommandResult, expected string) Result {
	re, err := regexp.Compile(expected)
	if err != nil {
		return fail("Invalid validation pattern.")
	}
	if re.MatchString(result.Stdout) {
		return pass("Correct!")
	}
	return fail("Output doesn't match expected pattern.")
}

func checkExitCode(result parser.CommandResult, expected string) Result {
	code, err := strconv.Atoi(strings.TrimSpace(expected))
	if err != nil {
		return fail("Invalid expected exit code.")
	}
	if result.ReturnCode == code {
		return pass("Correct!")
	}
	return fail(fmt.Sprintf("Expected exit code %d, got %d.", code, result.ReturnCode))
}

func checkCwdRegex(result parser.CommandResult, expected string) Result {
	re, err := regexp.Compile(expected)
	if err != nil {
		return fail("Invalid validation pattern.")
	}
	if re.MatchString(result.Cwd) {
		return pass("Correct!")
	}
	return fail("Working directory doesn't match what's expected.")
}

// cwdRelativePath rewrites a sandbox-root-relative path spec so it's
// resolved against the command's actual cwd instead, for the file_exists /
// file_contains fallback lookup.
func cwdRelativePath(cwd, sandboxRoot, filePath string) (string, bool) {
	if cwd == sandboxRoot {
		return "", false
	}
	rel, err := filepath.Rel(sandboxRoot, cwd)
	if err != nil {
		return "", false
	}
	return filepath.Join(rel, filePath), true
}

func (v *Validator) checkFileExists(result parser.CommandResult, expected string) Result {
	path := strings.TrimSpace(expected)
	if v.channel.FileExists(path) {
		return pass("Correct! File created.")
	}
	if alt, ok := cwdRelativePath(result.Cwd, sandboxRootPlaceholder, path); ok && v.channel.FileExists(alt) {
		return pass("Correct! File created.")
	}
	return fail(fmt.Sprintf("File '%s' not found.", path))
}

func (v *Validator) checkFileContains(result parser.CommandResult, expected string) Result {
	path, needle, ok := strings.Cut(expected, "::")
	if !ok {
		return fail("Invalid file_contains spec.")
	}
	path = strings.TrimSpace(path)
	needle = strings.TrimSpace(needle)

	if v.channel.FileExists(path) {
		return v.containsOrFail(path, needle)
	}
	if alt, ok := cwdRelativePath(result.Cwd, sandboxRootPlaceholder, path); ok && v.channel.FileExists(alt) {
		return v.containsOrFail(alt, needle)
	}
	return fail(fmt.Sprintf("File '%s' not found.", path))
}

func (v *Validator) containsOrFail(path, needle string) Result {
	content, err := v.channel.ReadFile(path)
	if err != nil {
		return fail(fmt.Sprintf("File '%s' not found.", path))
	}
	if strings.Contains(string(content), needle) {
		return pass("Correct! File contains expected content.")
	}
	return fail("File doesn't contain expected content.")
}

func (v *Validator) checkDirWithFile(expected string) Result {
	if v.channel.HasDirWithFile(sandboxRootPlaceholder) {
		return pass("Correct! Directory with file created.")
	}
	return fail("No directory containing a file was found. Create a directory and then create a file inside it.")
}

func (v *Validator) checkAnyFileContains(expected string) Result {
	needle := strings.TrimSpace(expected)
	if v.channel.FindFileContaining(sandboxRootPlaceholder, needle) {
		return pass("Correct! File contains expected content.")
	}
	return fail(fmt.Sprintf("No file found containing '%s'.", needle))
}

// sandboxRootPlaceholder is resolved by the Channel implementation itself
// (sandboxvm.PTYSession maps it to its configured root); the validator only
// ever deals in sentinel.SandboxRoot-relative paths.
const sandboxRootPlaceholder = "/home/student"
