package hal

import (
	"sync"
	"time"
)

// LogBufferSize is the number of log lines kept in memory.
const LogBufferSize = 150

// LogEntry is one engine log line.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// logRing keeps the most recent log lines, overwriting the oldest.
type logRing struct {
	mu    sync.Mutex
	buf   []LogEntry
	start int
	count int
}

func newLogRing(capacity int) *logRing {
	return &logRing{buf: make([]LogEntry, capacity)}
}

func (r *logRing) add(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.start + r.count) % len(r.buf)
	r.buf[idx] = e
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}
}

// entries returns the lines oldest first.
func (r *logRing) entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, r.count)
	for i := range out {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
