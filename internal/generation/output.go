package generation

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Output hands text produced by a worker to a polling consumer. Every fragment
// is appended to both the pending chunk and the full text under one mutex, so
// the concatenation of all Poll results always equals Full.
type Output struct {
	mu      sync.Mutex
	pending []byte
	full    []byte
	closed  bool
}

// publish appends piece and reports the first of words the full text now ends
// with. It is a no-op once the output has been closed.
func (o *Output) publish(piece string, words []string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return "", false
	}
	o.pending = append(o.pending, piece...)
	o.full = append(o.full, piece...)
	for _, w := range words {
		if w != "" && bytes.HasSuffix(o.full, []byte(w)) {
			return w, true
		}
	}
	return "", false
}

// close rejects further writes, clears running under the same lock and
// returns a copy of the full text.
func (o *Output) close(running *atomic.Bool) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if running != nil {
		running.Store(false)
	}
	return string(o.full)
}

// Poll returns the text published since the previous call and clears it.
func (o *Output) Poll() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return ""
	}
	s := string(o.pending)
	o.pending = o.pending[:0]
	return s
}

// Full returns a copy of everything published so far.
func (o *Output) Full() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return string(o.full)
}

// Len returns the number of bytes published so far.
func (o *Output) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.full)
}
