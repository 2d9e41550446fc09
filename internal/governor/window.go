package governor

import "github.com/mlefevre/steamharvest/internal/harvest"

// window is a fixed-capacity FIFO of recent outcomes. Oldest entries are
// overwritten once the buffer fills. Not safe for concurrent use; the
// Governor serializes access.
type window struct {
	buf    []harvest.Outcome
	next   int
	filled bool
}

func newWindow(size int) *window {
	return &window{buf: make([]harvest.Outcome, size)}
}

func (w *window) push(o harvest.Outcome) {
	w.buf[w.next] = o
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.filled = true
	}
}

func (w *window) len() int {
	if w.filled {
		return len(w.buf)
	}
	return w.next
}

func (w *window) cap() int {
	return len(w.buf)
}

func (w *window) full() bool {
	return w.filled
}

func (w *window) count(o harvest.Outcome) int {
	n := 0
	for i := 0; i < w.len(); i++ {
		if w.buf[i] == o {
			n++
		}
	}
	return n
}

func (w *window) clear() {
	w.next = 0
	w.filled = false
}
