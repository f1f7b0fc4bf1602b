// Package hotkey matches the stream of keyboard frames against configured
// key sequences.
package hotkey

import (
	"sync"

	"github.com/Alia5/btkvm/hid"
)

// Action is what a matched hotkey asks the service to do.
type Action int

const (
	None Action = iota
	NextHost
	IndicateHost
)

func (a Action) String() string {
	switch a {
	case NextHost:
		return "nextHost"
	case IndicateHost:
		return "indicateHost"
	default:
		return "none"
	}
}

// Binding ties an action to a sequence of frames, oldest first, exactly as a
// user would type them.
type Binding struct {
	Action   Action
	Sequence []hid.Frame
}

type compiled struct {
	action Action
	// newest first
	frames []hid.Frame
}

// Detector keeps a window of the most recent frames and reports when its
// leading frames equal a configured sequence. It is safe for concurrent use.
type Detector struct {
	mu       sync.Mutex
	bindings []compiled
	window   []hid.Frame
	filled   int
}

// NewDetector creates a Detector for the given bindings. Bindings are tried in
// order; the first match wins.
func NewDetector(bindings []Binding) *Detector {
	d := &Detector{}
	d.Reload(bindings)
	return d
}

// Reload replaces the bindings and clears the window.
func (d *Detector) Reload(bindings []Binding) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bindings = d.bindings[:0]
	size := 0
	for _, b := range bindings {
		if len(b.Sequence) == 0 || b.Action == None {
			continue
		}
		rev := make([]hid.Frame, len(b.Sequence))
		for i, f := range b.Sequence {
			rev[len(b.Sequence)-1-i] = f
		}
		d.bindings = append(d.bindings, compiled{action: b.Action, frames: rev})
		size = max(size, len(rev))
	}
	d.window = make([]hid.Frame, size)
	d.filled = 0
}

// Evaluate pushes a frame and returns the matched action, or None. A match
// clears the window so overlapping frames cannot trigger again.
func (d *Detector) Evaluate(f hid.Frame) Action {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.window) == 0 {
		return None
	}
	copy(d.window[1:], d.window[:len(d.window)-1])
	d.window[0] = f
	d.filled = min(d.filled+1, len(d.window))

	for _, b := range d.bindings {
		if len(b.frames) > d.filled {
			continue
		}
		match := true
		for i, want := range b.frames {
			if d.window[i] != want {
				match = false
				break
			}
		}
		if match {
			d.reset()
			return b.action
		}
	}
	return None
}

// Reset clears the window.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

func (d *Detector) reset() {
	clear(d.window)
	d.filled = 0
}
