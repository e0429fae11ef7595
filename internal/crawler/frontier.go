package crawler

import (
	"sync"

	"github.com/BenjaminSRussell/go_gopher/internal/gopher"
)

// frame is one listing being walked, positioned at its next entry
type frame struct {
	listing string
	entries []gopher.Entry
	pos     int
}

// Frontier is the depth-first work stack. The top frame is always the
// most recently entered directory; a parent resumes only after every
// frame above it is exhausted.
type Frontier struct {
	mu     sync.Mutex
	frames []*frame

	processed int
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{frames: make([]*frame, 0)}
}

// Push enters a listing. Its entries are walked before anything below it.
func (f *Frontier) Push(listing string, entries []gopher.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.frames = append(f.frames, &frame{listing: listing, entries: entries})
}

// Next returns the next entry in listing order along with the selector of
// the listing that contains it. Exhausted frames are popped.
func (f *Frontier) Next() (string, gopher.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.frames) > 0 {
		top := f.frames[len(f.frames)-1]
		if top.pos < len(top.entries) {
			e := top.entries[top.pos]
			top.pos++
			f.processed++
			return top.listing, e, true
		}
		f.frames[len(f.frames)-1] = nil
		f.frames = f.frames[:len(f.frames)-1]
	}

	return "", gopher.Entry{}, false
}

// Depth returns the number of listings currently open
func (f *Frontier) Depth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// Processed returns how many entries have been handed out
func (f *Frontier) Processed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed
}
