package journal

import (
	"context"
	"log"
	"sync/atomic"
)

// Writer records entries on its own goroutine so callers never wait on the
// database.
type Writer struct {
	j       *Journal
	entries chan Entry
	done    chan struct{}
	dropped atomic.Uint64
}

// NewWriter starts a writer with room for queue pending entries.
func NewWriter(j *Journal, queue int) *Writer {
	w := newWriter(j, queue)
	go w.run()
	return w
}

func newWriter(j *Journal, queue int) *Writer {
	return &Writer{
		j:       j,
		entries: make(chan Entry, queue),
		done:    make(chan struct{}),
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for e := range w.entries {
		if err := w.j.Record(context.Background(), e); err != nil {
			log.Print(err)
		}
	}
}

// Enqueue queues e without blocking. When the queue is full the entry is
// dropped, counted, and false is returned.
func (w *Writer) Enqueue(e Entry) bool {
	select {
	case w.entries <- e:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Dropped returns how many entries were discarded on a full queue.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Close writes what is still queued and stops the writer. Enqueue must not
// be called afterwards.
func (w *Writer) Close() {
	close(w.entries)
	<-w.done
}
