package secrets

import (
	"bytes"
	"io"
	"sort"
	"strings"
	"sync"
)

// Mask replaces every secret value in captured output.
const Mask = "***"

// Redactor is an io.Writer that masks secret values before forwarding bytes.
// Output is forwarded line by line so that a value split across two writes is
// still masked; Flush forwards a trailing partial line.
type Redactor struct {
	mu       sync.Mutex
	w        io.Writer
	replacer *strings.Replacer
	pending  []byte
}

// NewRedactor wraps w. Multi-line values are masked line by line.
func NewRedactor(w io.Writer, values ...string) *Redactor {
	return &Redactor{w: w, replacer: newReplacer(values)}
}

func newReplacer(values []string) *strings.Replacer {
	seen := make(map[string]bool)
	var parts []string
	for _, v := range values {
		for _, line := range strings.Split(v, "\n") {
			line = strings.TrimSuffix(line, "\r")
			if line == "" || seen[line] {
				continue
			}
			seen[line] = true
			parts = append(parts, line)
		}
	}
	// Longer values first so a value containing another is masked whole.
	sort.SliceStable(parts, func(i, j int) bool { return len(parts[i]) > len(parts[j]) })
	pairs := make([]string, 0, 2*len(parts))
	for _, p := range parts {
		pairs = append(pairs, p, Mask)
	}
	return strings.NewReplacer(pairs...)
}

// Write masks and forwards every complete line in p.
func (r *Redactor) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, p...)
	idx := bytes.LastIndexByte(r.pending, '\n')
	if idx < 0 {
		return len(p), nil
	}
	complete := r.pending[:idx+1]
	if _, err := io.WriteString(r.w, r.replacer.Replace(string(complete))); err != nil {
		return 0, err
	}
	r.pending = append(r.pending[:0], r.pending[idx+1:]...)
	return len(p), nil
}

// Flush masks and forwards any buffered partial line.
func (r *Redactor) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	_, err := io.WriteString(r.w, r.replacer.Replace(string(r.pending)))
	r.pending = r.pending[:0]
	return err
}

// String masks s.
func (r *Redactor) String(s string) string {
	return r.replacer.Replace(s)
}
