// Package sentinel defines the in-band markers the sandbox shell hook emits
// around every command, and generates the shell profile that installs the
// hook.
package sentinel

import (
	"fmt"
	"strings"
)

// Delim is the Unit Separator byte (0x1F) that frames every sentinel. It is
// excluded from legitimate text, ANSI escape sequences, and UTF-8
// continuation bytes, so a byte-oriented scanner can pick it out
// unambiguously.
const Delim = '\x1f'

// CmdStart is the literal body of the sentinel the prompt hook emits right
// after CMD_END, before the next prompt is drawn, so a capture starts with
// the prompt and the echoed command line.
const CmdStart = "__CLITUTOR_CMD_START__"

// CmdEndPrefix begins the sentinel body emitted once a command completes;
// the full body is "CmdEndPrefix:<exitcode>:<cwd>".
const CmdEndPrefix = "__CLITUTOR_CMD_END__"

// SandboxRoot is the fixed home directory every lesson sandbox uses.
const SandboxRoot = "/home/student"

// blockedCommands are replaced with refusal stubs in the sandbox profile so
// students cannot escalate privileges or touch block devices.
var blockedCommands = []string{"sudo", "su", "chroot", "mount", "umount", "fdisk", "parted"}

// CmdEnd builds the full CMD_END sentinel body for a given exit code and
// working directory.
func CmdEnd(exitCode int, cwd string) string {
	return fmt.Sprintf("%s:%d:%s", CmdEndPrefix, exitCode, cwd)
}

// Wrap frames a sentinel body with the delimiter byte on both sides.
func Wrap(body string) string {
	return string(Delim) + body + string(Delim)
}

// ProfileOptions customizes the generated shell profile.
type ProfileOptions struct {
	User     string // prompt username, default "student"
	Hostname string // prompt hostname, default "clitutor"
}

func (o ProfileOptions) withDefaults() ProfileOptions {
	if o.User == "" {
		o.User = "student"
	}
	if o.Hostname == "" {
		o.Hostname = "clitutor"
	}
	return o
}

// GenerateProfile returns the bash startup file content that instruments the
// sandbox shell for sentinel-based capture. It is written to the VM's
// filesystem through the out-of-band channel (never echoed over serial) and
// then sourced.
//
// The PROMPT_COMMAND hook below captures $? as its first statement, on the
// same line it is read — any statement before that would clobber it.
func GenerateProfile(opts ProfileOptions) string {
	opts = opts.withDefaults()

	var blocked strings.Builder
	for _, cmd := range blockedCommands {
		fmt.Fprintf(&blocked, "%s() { echo \"%s: not allowed in the sandbox\"; return 1; }\n", cmd, cmd)
	}

	return fmt.Sprintf(`# clitutor sandbox profile — generated, do not edit
export HOME=%[1]q
export PATH="/usr/local/bin:/usr/bin:/bin"
export TERM="xterm-256color"

export PS1='\[\033[01;32m\]%[2]s@%[3]s\[\033[00m\]:\[\033[01;34m\]\w\[\033[00m\]\$ '

HISTCONTROL=ignoreboth
HISTSIZE=1000
unset HISTFILE
shopt -s histappend checkwinsize
set -o ignoreeof

# Emit CMD_END with exit code and cwd once the command completes, then
# CMD_START so the next capture begins with the prompt and the echoed
# command line. The exit code capture MUST be the first statement so
# nothing else clobbers $?.
__clitutor_prompt_cmd() {
  local rc=$?
  printf '\x1f%[5]s:%%d:%%s\x1f' "$rc" "$PWD"
  printf '\x1f%[4]s\x1f'
}
PROMPT_COMMAND=__clitutor_prompt_cmd

%[6]s
cd %[1]q
`, SandboxRoot, opts.User, opts.Hostname, CmdStart, CmdEndPrefix, blocked.String())
}

// ProfileFileName is the path the profile is written to, relative to the
// channel's filesystem root, and the name used when sourcing it.
const ProfileFileName = ".clitutor_profile"
