// Package parser implements the Sentinel Parser: it splits coalesced serial
// chunks into a display-segment stream and a command-event stream, tracking
// capture state across chunk boundaries.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/clitutor/controller/internal/sentinel"
)

// partialSafety is how long the Parser waits for a trailing, possibly-split
// sentinel to complete before giving up and flushing it as plain bytes.
const partialSafety = 50 * time.Millisecond

// messageFlush is the idle window after which a queued system message is
// flushed to the display callback even without a following processOutput
// call.
const messageFlush = 8 * time.Millisecond

// defaultCwd is the working directory CaptureState reports before the
// first CMD_END has been observed.
const defaultCwd = sentinel.SandboxRoot

var sentinelPattern = regexp.MustCompile(
	"\x1f(" + regexp.QuoteMeta(sentinel.CmdStart) +
		"|" + regexp.QuoteMeta(sentinel.CmdEndPrefix) + `:(-?\d+):([^\x1f]*)` +
		")\x1f",
)

// CommandResult is a single completed, captured command execution.
type CommandResult struct {
	Stdout     string
	ReturnCode int
	Cwd        string
}

// captureState mirrors the CaptureState record from the spec. It is owned
// exclusively by the Parser.
type captureState struct {
	capturing    bool
	chunks       []string
	cwd          string
	skipCaptures int
	ready        bool
}

// Parser is the Sentinel Parser. Zero value is not usable; construct with
// New.
type Parser struct {
	mu sync.Mutex

	state captureState

	displayCallback func(string)
	commandCallback func(CommandResult)
	readyCallback   func()

	muted   bool // muteUntilNextPrompt, cleared on CMD_START
	partial string

	msgQueue     []string
	msgTimer     *time.Timer
	partialTimer *time.Timer
}

// New constructs a Parser wired to the given callbacks. command and ready
// may be nil; display must not be nil (use a no-op to mute).
func New(display func(string), command func(CommandResult), ready func()) *Parser {
	p := &Parser{
		displayCallback: display,
		commandCallback: command,
		readyCallback:   ready,
	}
	p.state.skipCaptures = 1
	p.state.cwd = defaultCwd
	return p
}

// Ready reports whether the first CMD_END has been observed since
// construction or the last Reset.
func (p *Parser) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.ready
}

// Cwd returns the most recently observed working directory.
func (p *Parser) Cwd() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.cwd
}

// SkipCaptures returns the current skip counter (non-negative).
func (p *Parser) SkipCaptures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.skipCaptures
}

// IncrementSkipCaptures adds n (normally 1 or 2) to the skip counter, used
// by the driver before seeding or before filesystem-kind validations that
// themselves run extra shell commands.
func (p *Parser) IncrementSkipCaptures(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.skipCaptures += n
}

// SwapDisplayCallback installs a new display callback and returns the
// previous one, so the driver can mute raw serial display (e.g. during
// seeding or validation) and later restore it.
func (p *Parser) SwapDisplayCallback(next func(string)) func(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.displayCallback
	p.displayCallback = next
	return old
}

// MuteUntilNextPrompt withholds subsequent bytes from the display callback
// until the next CMD_START, without affecting capture. The flag clears
// itself on CMD_START.
func (p *Parser) MuteUntilNextPrompt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = true
}

// QueueSystemMessage appends text to the system-message queue. Messages are
// rendered as cyan text prefixed with a triangle glyph and a carriage
// return + erase-to-end-of-line so they overwrite any partial prompt on the
// current terminal row. Messages queued before Ready are held until ready.
func (p *Parser) QueueSystemMessage(text string) {
	rendered := "\r\x1b[K\x1b[36m▸ " + text + "\x1b[0m\r\n"

	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgQueue = append(p.msgQueue, rendered)
	if !p.state.ready {
		return
	}
	if p.msgTimer != nil {
		p.msgTimer.Stop()
	}
	p.msgTimer = time.AfterFunc(messageFlush, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.flushMessagesLocked()
	})
}

// flushMessagesLocked writes all queued system messages to the display
// callback in a single atomic call. Caller must hold mu.
func (p *Parser) flushMessagesLocked() {
	if p.msgTimer != nil {
		p.msgTimer.Stop()
		p.msgTimer = nil
	}
	if len(p.msgQueue) == 0 || !p.state.ready {
		return
	}
	joined := strings.Join(p.msgQueue, "")
	p.msgQueue = p.msgQueue[:0]
	if p.displayCallback != nil {
		p.displayCallback(joined)
	}
}

// Reset clears every field of the Parser back to its initial state,
// canceling any pending timers. Used when leaving a lesson.
func (p *Parser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = captureState{skipCaptures: 1, cwd: defaultCwd}
	p.muted = false
	p.partial = ""
	p.msgQueue = nil
	if p.msgTimer != nil {
		p.msgTimer.Stop()
		p.msgTimer = nil
	}
	if p.partialTimer != nil {
		p.partialTimer.Stop()
		p.partialTimer = nil
	}
}

// ProcessOutput is the Parser's main entry point, called once per coalesced
// chunk arriving from the VM. Within one call, every display-callback
// invocation happens-before every command-callback invocation: the display
// callback fires once with all accumulated display text for this call, then
// the command callback fires once per command completed within this call,
// in order.
func (p *Parser) ProcessOutput(chunk string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Flush any queued system messages before this call's own display
	// segments, so they never interleave mid-flush with raw serial bytes.
	p.flushMessagesLocked()

	combined := p.partial + chunk
	p.partial = ""

	matches := sentinelPattern.FindAllStringSubmatchIndex(combined, -1)

	var display strings.Builder
	var results []CommandResult
	lastEnd := 0

	emit := func(text string) {
		if text == "" {
			return
		}
		if p.state.capturing {
			p.state.chunks = append(p.state.chunks, text)
		}
		if !p.muted {
			display.WriteString(text)
		}
	}

	for _, m := range matches {
		before := combined[lastEnd:m[0]]
		emit(before)

		body := combined[m[2]:m[3]]
		if body == sentinel.CmdStart {
			p.muted = false
			p.state.capturing = true
			p.state.chunks = p.state.chunks[:0]
		} else {
			rc := 0
			if m[4] != -1 {
				if parsed, err := strconv.Atoi(combined[m[4]:m[5]]); err == nil {
					rc = parsed
				}
			}
			cwd := defaultCwd
			if m[6] != -1 {
				cwd = combined[m[6]:m[7]]
			}

			p.state.capturing = false
			p.state.cwd = cwd

			if p.state.skipCaptures > 0 {
				p.state.skipCaptures--
			} else {
				joined := strings.Join(p.state.chunks, "")
				stdout := cleanCapturedOutput(joined)
				results = append(results, CommandResult{
					Stdout:     stdout,
					ReturnCode: rc,
					Cwd:        cwd,
				})
			}
			p.state.chunks = p.state.chunks[:0]

			if !p.state.ready {
				p.state.ready = true
				if p.readyCallback != nil {
					p.readyCallback()
				}
				p.flushMessagesLocked()
			}
		}
		lastEnd = m[1]
	}

	tail := combined[lastEnd:]
	if idx := strings.IndexByte(tail, sentinel.Delim); idx != -1 {
		emit(tail[:idx])
		p.partial = tail[idx:]
		p.armPartialSafetyLocked()
	} else {
		emit(tail)
	}

	if display.Len() > 0 && p.displayCallback != nil {
		p.displayCallback(display.String())
	}
	for _, r := range results {
		if p.commandCallback != nil {
			p.commandCallback(r)
		}
	}
}

// armPartialSafetyLocked schedules a flush of a buffered partial sentinel
// as plain bytes if no further data completes it within partialSafety.
// Caller must hold mu.
func (p *Parser) armPartialSafetyLocked() {
	if p.partialTimer != nil {
		p.partialTimer.Stop()
	}
	p.partialTimer = time.AfterFunc(partialSafety, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.partial == "" {
			return
		}
		stranded := p.partial
		p.partial = ""
		emit := stranded
		if p.state.capturing {
			p.state.chunks = append(p.state.chunks, emit)
		}
		if !p.muted && p.displayCallback != nil {
			p.displayCallback(emit)
		}
	})
}

// cleanCapturedOutput strips ANSI CSI/OSC sequences, strips remaining
// control bytes (preserving tab and LF), and removes the first line (the
// echoed prompt+command) from a joined capture.
func cleanCapturedOutput(s string) string {
	s = ansi.Strip(s)
	s = stripControlBytes(s)
	return removeFirstLine(s)
}

// stripControlBytes removes bytes in 0x00..0x08 and 0x0B..0x1F, preserving
// tab (0x09) and LF (0x0A).
func stripControlBytes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c <= 0x08) || (c >= 0x0B && c <= 0x1F) {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// removeFirstLine removes everything up to and including the first LF,
// since that line is the echoed prompt+command.
func removeFirstLine(s string) string {
	idx := strings.IndexByte(s, '\n')
	if idx == -1 {
		return ""
	}
	return s[idx+1:]
}
