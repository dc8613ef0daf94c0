package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"xagent/internal/store"
)

func newTest(t *testing.T) *Ledger {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestClassify_NeverThenFresh(t *testing.T) {
	l := newTest(t)

	if f, _ := l.Classify("alice"); f != Never {
		t.Fatalf("expected Never, got %v", f)
	}
	if err := l.RecordReply("alice", "Neutral"); err != nil {
		t.Fatal(err)
	}
	if f, _ := l.Classify("alice"); f != Fresh {
		t.Fatalf("expected Fresh, got %v", f)
	}
	// Case-insensitive key.
	if f, _ := l.Classify("@ALICE"); f != Fresh {
		t.Fatalf("expected Fresh via normalized handle, got %v", f)
	}
}

func TestClassify_DecaysToStale(t *testing.T) {
	l := newTest(t)

	base := time.Now()
	l.now = func() time.Time { return base }
	if err := l.RecordReply("bob", "Degen"); err != nil {
		t.Fatal(err)
	}

	l.now = func() time.Time { return base.Add(FreshWindow - time.Second) }
	if f, _ := l.Classify("bob"); f != Fresh {
		t.Fatalf("just inside window: got %v", f)
	}

	l.now = func() time.Time { return base.Add(FreshWindow + time.Second) }
	if f, _ := l.Classify("bob"); f != Stale {
		t.Fatalf("past window: got %v", f)
	}
}

func TestClassify_LegacyZeroTimestampIsStale(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.UpsertAuthorReply("oldtimer", 0); err != nil {
		t.Fatal(err)
	}

	l := New(s)
	if f, _ := l.Classify("oldtimer"); f != Stale {
		t.Fatalf("legacy record must be Stale, got %v", f)
	}
}

func TestRecordReply_IdempotentRecord(t *testing.T) {
	l := newTest(t)

	l.RecordReply("carol", "Analyst")
	l.RecordReply("carol", "Roast")

	n, err := l.ReplyCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one record for carol, got %d", n)
	}

	entries, _ := l.History(0)
	if len(entries) != 2 {
		t.Fatalf("history should keep both entries, got %d", len(entries))
	}
	if entries[0].Tone != "Roast" {
		t.Errorf("newest entry tone: %s", entries[0].Tone)
	}
}

func TestSubscribe_FiresOnWrites(t *testing.T) {
	l := newTest(t)

	var fired int
	l.Subscribe(func() { fired++ })

	l.RecordReply("dave", "Builder")
	if fired != 1 {
		t.Fatalf("after record: %d", fired)
	}
	l.Clear()
	if fired != 2 {
		t.Fatalf("after clear: %d", fired)
	}
	if f, _ := l.Classify("dave"); f != Never {
		t.Fatalf("after clear classify: %v", f)
	}
}
