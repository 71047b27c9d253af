package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	maxPartial  = 1 << 20
	defaultTail = 200
	maxTail     = 5000
)

// LogBuffer is an io.Writer keeping the newest log lines in a fixed ring
// for /api/logs.
type LogBuffer struct {
	mu      sync.Mutex
	ring    []string
	next    int
	n       int
	held    []byte
	dropped uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{ring: make([]string, maxLines)}
}

// Write stores each completed line. A trailing fragment is held until its
// newline arrives, or flushed as a line once it grows past maxPartial.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	written := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			b.held = append(b.held, p...)
			if len(b.held) > maxPartial {
				b.push(string(b.held))
				b.held = b.held[:0]
			}
			break
		}
		b.push(string(append(b.held, p[:i]...)))
		b.held = b.held[:0]
		p = p[i+1:]
	}
	return written, nil
}

func (b *LogBuffer) push(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	if b.n == len(b.ring) {
		b.dropped++
	} else {
		b.n++
	}
	b.ring[b.next] = line
	b.next = (b.next + 1) % len(b.ring)
}

// Snapshot returns up to tail of the newest lines containing match
// (all lines when match is empty), oldest first.
func (b *LogBuffer) Snapshot(tail int, match string) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tail <= 0 {
		tail = defaultTail
	}
	size := len(b.ring)
	for k := 0; k < b.n && len(lines) < tail; k++ {
		line := b.ring[(b.next-1-k+size)%size]
		if match == "" || strings.Contains(line, match) {
			lines = append(lines, line)
		}
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, b.dropped
}

type LogTail struct {
	NowUTC  string   `json:"now_utc"`
	Dropped uint64   `json:"dropped"`
	Lines   []string `json:"lines"`
}

// Handler serves the buffer. Query: tail=N (1..5000), match=substring,
// format=text for plain output.
func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		q := r.URL.Query()

		tail := defaultTail
		if s := strings.TrimSpace(q.Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > maxTail {
				http.Error(w, fmt.Sprintf("tail must be an integer in [1,%d]", maxTail), http.StatusBadRequest)
				return
			}
			tail = v
		}

		lines, dropped := b.Snapshot(tail, q.Get("match"))
		if !strings.EqualFold(q.Get("format"), "text") {
			writeJSON(w, LogTail{
				NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
				Dropped: dropped,
				Lines:   lines,
			})
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if dropped > 0 {
			_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
		}
		for _, line := range lines {
			_, _ = fmt.Fprintln(w, line)
		}
	})
}
