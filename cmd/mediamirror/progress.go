package main

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/ytget/mediamirror/types"
)

// progressRenderer keeps one byte bar per output file.
type progressRenderer struct {
	mu      sync.Mutex
	current string
	bar     *progressbar.ProgressBar
}

func newProgressRenderer() *progressRenderer {
	return &progressRenderer{}
}

// Update renders p, starting a new bar whenever the output file changes.
func (r *progressRenderer) Update(p types.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Path != r.current || r.bar == nil {
		if r.bar != nil {
			_ = r.bar.Finish()
		}
		total := p.Total
		if total <= 0 {
			total = -1
		}
		r.current = p.Path
		r.bar = progressbar.DefaultBytes(total, describe(p))
	}
	if p.Segments > 0 {
		r.bar.Describe(describe(p))
	}
	_ = r.bar.Set64(p.Bytes)
}

// Finish completes the active bar.
func (r *progressRenderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
}

func describe(p types.Progress) string {
	name := filepath.Base(p.Path)
	if p.Segments > 0 {
		return fmt.Sprintf("%s %s [%d/%d]", p.Stage, name, p.Segment+1, p.Segments)
	}
	return fmt.Sprintf("%s %s", p.Stage, name)
}
