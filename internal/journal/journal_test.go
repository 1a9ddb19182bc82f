package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "strokes.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordRecentTotals(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s1, err := j.StartSession(ctx, start, 25, 13, "BHdrive,BHpush,FHdrive,FHloop,FHsmash,idle")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	s2, err := j.StartSession(ctx, start.Add(time.Hour), 25, 13, "BHdrive,BHpush,FHdrive,FHloop,FHsmash,idle")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if s1 == s2 {
		t.Fatalf("session ids not distinct: %d", s1)
	}

	entries := []Entry{
		{SessionID: s1, At: start.Add(1 * time.Second), Category: "FHsmash", Confidence: 0.91, Sample: 100, Latency: 2 * time.Millisecond},
		{SessionID: s1, At: start.Add(2 * time.Second), Category: "BHpush", Confidence: 0.75, Sample: 150},
		{SessionID: s1, At: start.Add(3 * time.Second), Category: "FHsmash", Confidence: 0.66, Sample: 201},
		{SessionID: s2, At: start.Add(time.Hour), Category: "FHloop", Confidence: 0.8, Sample: 40},
	}
	for _, e := range entries {
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recent, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Category != "FHloop" || recent[1].Sample != 201 {
		t.Fatalf("unexpected recent %+v", recent)
	}
	if !recent[1].At.Equal(start.Add(3 * time.Second)) {
		t.Fatalf("timestamp not preserved: %v", recent[1].At)
	}

	totals, err := j.Totals(ctx, s1)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if len(totals) != 2 || totals[0] != (CategoryTotal{"BHpush", 1}) || totals[1] != (CategoryTotal{"FHsmash", 2}) {
		t.Fatalf("unexpected session totals %+v", totals)
	}

	all, err := j.Totals(ctx, 0)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("unexpected overall totals %+v", all)
	}
}

func TestJournal_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "strokes.db")

	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	id, err := j.StartSession(ctx, time.Now(), 25, 13, "a,idle")
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Record(ctx, Entry{SessionID: id, At: time.Now(), Category: "a", Confidence: 0.9}); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	j, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	recent, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Category != "a" {
		t.Fatalf("unexpected entries after reopen %+v", recent)
	}
}
