package step

import (
	"bytes"
	"io"
	"sync"
)

// prefixWriter prefixes every complete line written to it.
type prefixWriter struct {
	mu      sync.Mutex
	w       io.Writer
	prefix  string
	pending []byte
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, b...)
	for {
		idx := bytes.IndexByte(p.pending, '\n')
		if idx < 0 {
			return len(b), nil
		}
		line := append([]byte(p.prefix), p.pending[:idx+1]...)
		if _, err := p.w.Write(line); err != nil {
			return 0, err
		}
		p.pending = p.pending[idx+1:]
	}
}

// Flush writes a trailing partial line, terminated with a newline.
func (p *prefixWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	line := append([]byte(p.prefix), p.pending...)
	line = append(line, '\n')
	p.pending = nil
	_, err := p.w.Write(line)
	return err
}
