// Package coalescer buffers raw serial bytes from the sandbox VM into
// display-granular chunks before handing them to the Sentinel Parser.
package coalescer

import (
	"sync"
	"time"
)

// maxBufferBytes is the hard flush threshold: once the buffer exceeds this
// many bytes without a newline, it is flushed anyway so sentinel bytes
// never sit unbounded behind a long unterminated line.
const maxBufferBytes = 128

// idleFlush is how long the Coalescer waits with no new bytes before
// flushing a non-empty buffer, so trailing prompt bytes without a
// newline are not stranded behind a dead timer.
const idleFlush = 4 * time.Millisecond

// Coalescer buffers bytes fed to it one at a time via Write and emits
// chunks to onChunk whenever a newline/CR was just appended, the buffer
// exceeds maxBufferBytes, or idleFlush elapses with no new byte.
//
// Write may be called from any single producer goroutine (normally the
// goroutine pumping bytes from the VM); the idle-flush timer fires on its
// own goroutine, so a mutex serializes it against Write/Close rather than
// relying on the cooperative single-threaded model the rest of the
// Controller assumes. onChunk itself is always invoked with the lock held,
// so it must not call back into the Coalescer.
type Coalescer struct {
	onChunk func(string)

	mu    sync.Mutex
	buf   []byte
	timer *time.Timer
}

// New creates a Coalescer that calls onChunk for every flushed chunk.
func New(onChunk func(string)) *Coalescer {
	return &Coalescer{onChunk: onChunk}
}

// Write appends a single byte from the VM's serial stream, flushing the
// buffer per the conditions described on Coalescer.
func (c *Coalescer) Write(b byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf = append(c.buf, b)
	if b == '\n' || b == '\r' || len(c.buf) > maxBufferBytes {
		c.flushLocked()
		return
	}
	c.resetTimerLocked()
}

// WriteString appends a run of bytes, applying the same flush rules as
// repeated single-byte Write calls.
func (c *Coalescer) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		c.Write(s[i])
	}
}

// flushLocked emits the buffered bytes (if any) to onChunk and clears the
// buffer. Caller must hold mu.
func (c *Coalescer) flushLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	if len(c.buf) == 0 {
		return
	}
	chunk := string(c.buf)
	c.buf = c.buf[:0]
	c.onChunk(chunk)
}

// resetTimerLocked (re)arms the idle-flush timer. Caller must hold mu.
func (c *Coalescer) resetTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(idleFlush, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.flushLocked()
	})
}

// Close stops any pending idle timer without flushing. Call this when
// tearing down a session so a stray timer does not fire into a dead
// onChunk callback.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}
