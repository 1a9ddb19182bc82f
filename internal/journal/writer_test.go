package journal

import (
	"context"
	"testing"
	"time"
)

func TestWriter_CloseFlushesQueue(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	id, err := j.StartSession(ctx, time.Now(), 25, 13, "FHsmash,idle")
	if err != nil {
		t.Fatal(err)
	}

	w := NewWriter(j, 8)
	for i := 0; i < 5; i++ {
		if !w.Enqueue(Entry{SessionID: id, At: time.Now(), Category: "FHsmash", Sample: uint64(i)}) {
			t.Fatalf("entry %d dropped with room in the queue", i)
		}
	}
	w.Close()

	totals, err := j.Totals(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 1 || totals[0].Count != 5 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestWriter_EnqueueDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	id, err := j.StartSession(ctx, time.Now(), 25, 13, "FHsmash,idle")
	if err != nil {
		t.Fatal(err)
	}

	// Not started yet, so nothing drains the queue.
	w := newWriter(j, 1)
	if !w.Enqueue(Entry{SessionID: id, At: time.Now(), Category: "FHsmash"}) {
		t.Fatalf("first entry dropped")
	}
	if w.Enqueue(Entry{SessionID: id, At: time.Now(), Category: "FHsmash"}) {
		t.Fatalf("second entry accepted by a full queue")
	}
	if w.Dropped() != 1 {
		t.Fatalf("dropped %d, want 1", w.Dropped())
	}

	go w.run()
	w.Close()
	totals, err := j.Totals(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 1 || totals[0].Count != 1 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestOpen_UsesWAL(t *testing.T) {
	j := openTemp(t)
	var mode string
	if err := j.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode %q, want wal", mode)
	}
}
