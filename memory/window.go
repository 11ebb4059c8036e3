package memory

// WindowEntry is a buffered message plus its monotonically increasing
// sequence id. The persisted flag records an already-completed
// long-term write so eviction never promotes the same message twice.
type WindowEntry struct {
	Message    Message
	SequenceID uint64

	persisted bool
}

// Window is the fixed-capacity, insertion-ordered recent-message
// buffer for one user. It is pure in-memory and single-user; callers
// are responsible for per-user isolation and for serializing access
// (Manager holds the lock).
type Window struct {
	size    int
	entries []WindowEntry
	nextSeq uint64
}

// NewWindow creates a window holding at most size entries.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = Default().WindowSize
	}
	return &Window{
		size:    size,
		entries: make([]WindowEntry, 0, size+1),
	}
}

// Append adds a message and returns its sequence id. When the window
// overflows, exactly the oldest entry is removed and returned so the
// caller can decide its fate; no message is ever silently dropped.
func (w *Window) Append(msg Message) (seq uint64, evicted *WindowEntry) {
	w.nextSeq++
	seq = w.nextSeq
	w.entries = append(w.entries, WindowEntry{Message: msg, SequenceID: seq})

	if len(w.entries) > w.size {
		old := w.entries[0]
		// Shift instead of re-slicing so the backing array never grows
		// past size+1.
		copy(w.entries, w.entries[1:])
		w.entries = w.entries[:len(w.entries)-1]
		evicted = &old
	}
	return seq, evicted
}

// MarkPersisted flags the entry with the given sequence id as already
// written to the long-term store.
func (w *Window) MarkPersisted(seq uint64) {
	for i := range w.entries {
		if w.entries[i].SequenceID == seq {
			w.entries[i].persisted = true
			return
		}
	}
}

// Snapshot returns the buffered entries oldest-first. The slice is a
// copy; mutating it does not affect the window.
func (w *Window) Snapshot() []WindowEntry {
	out := make([]WindowEntry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Messages returns the buffered messages oldest-first.
func (w *Window) Messages() []Message {
	out := make([]Message, 0, len(w.entries))
	for _, e := range w.entries {
		out = append(out, e.Message)
	}
	return out
}

// Len reports the current entry count. Always <= the window size.
func (w *Window) Len() int {
	return len(w.entries)
}

// Size reports the capacity bound.
func (w *Window) Size() int {
	return w.size
}

// Clear drops every buffered entry. Sequence ids keep increasing.
func (w *Window) Clear() {
	w.entries = w.entries[:0]
}
