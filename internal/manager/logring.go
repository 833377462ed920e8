package manager

import (
	"bytes"
	"sync"
)

// logRing is a thread-safe circular buffer of lines, the per-session
// bounded deque spec §4.3 describes ("for every output event, the raw
// chunk is split on LF and appended... default 1000 lines"). It follows
// the teacher's RingBuffer shape (fixed capacity, overwrite oldest,
// reconstruct chronological order on read) adapted from a byte ring to a
// line ring since logs() tails by line count, not byte count.
type logRing struct {
	mu       sync.Mutex
	lines    []string
	writePos int
	full     bool
	partial  bytes.Buffer // accumulates a line until its terminating LF arrives
}

func newLogRing(capacity int) *logRing {
	if capacity <= 0 {
		capacity = defaultLogRingSize
	}
	return &logRing{lines: make([]string, capacity)}
}

// Append splits data on LF and pushes each completed line into the ring;
// a trailing partial line is held until a future Append completes it.
func (r *logRing) Append(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := 0
	for i, b := range data {
		if b == '\n' {
			r.partial.Write(data[start:i])
			r.push(r.partial.String())
			r.partial.Reset()
			start = i + 1
		}
	}
	r.partial.Write(data[start:])
}

func (r *logRing) push(line string) {
	size := len(r.lines)
	r.lines[r.writePos] = line
	r.writePos = (r.writePos + 1) % size
	if r.writePos == 0 {
		r.full = true
	}
}

// Tail returns the last n lines in chronological order (n<=0 means all).
func (r *logRing) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ordered []string
	if !r.full {
		ordered = append(ordered, r.lines[:r.writePos]...)
	} else {
		ordered = append(ordered, r.lines[r.writePos:]...)
		ordered = append(ordered, r.lines[:r.writePos]...)
	}
	if n <= 0 || n >= len(ordered) {
		return ordered
	}
	return ordered[len(ordered)-n:]
}
