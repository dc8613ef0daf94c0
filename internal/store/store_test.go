package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAuthorReply_UpsertReplaces(t *testing.T) {
	s := openTest(t)

	if err := s.UpsertAuthorReply("@Alice", 100); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertAuthorReply("alice", 200); err != nil {
		t.Fatal(err)
	}

	all, err := s.AuthorReplies()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one record per normalized handle, got %d", len(all))
	}
	if all[0].Handle != "alice" || all[0].LastReplyMS != 200 {
		t.Errorf("record: %+v", all[0])
	}

	ts, found, err := s.LastReply("ALICE")
	if err != nil || !found || ts != 200 {
		t.Errorf("LastReply = (%d, %v, %v)", ts, found, err)
	}
}

func TestLastReply_Missing(t *testing.T) {
	s := openTest(t)
	_, found, err := s.LastReply("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("expected no record")
	}
}

func TestHistory_FIFOBound(t *testing.T) {
	s := openTest(t)

	for i := 0; i < HistoryLimit+1; i++ {
		if err := s.AppendHistory(int64(i), fmt.Sprintf("u%d", i), "Neutral"); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.HistoryCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != HistoryLimit {
		t.Fatalf("expected %d entries, got %d", HistoryLimit, n)
	}

	entries, err := s.History(0)
	if err != nil {
		t.Fatal(err)
	}
	// Newest first; the very first insert (ts 0) must be gone.
	if entries[0].Timestamp != int64(HistoryLimit) {
		t.Errorf("newest ts: %d", entries[0].Timestamp)
	}
	if entries[len(entries)-1].Timestamp != 1 {
		t.Errorf("oldest surviving ts: %d", entries[len(entries)-1].Timestamp)
	}
}

func TestClearHistory(t *testing.T) {
	s := openTest(t)
	s.UpsertAuthorReply("a", 1)
	s.AppendHistory(1, "a", "Degen")

	if err := s.ClearHistory(); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.ReplyCount(); n != 0 {
		t.Errorf("reply count after clear: %d", n)
	}
	if n, _ := s.HistoryCount(); n != 0 {
		t.Errorf("history count after clear: %d", n)
	}
}

func TestQueue_RoundTripAndMissing(t *testing.T) {
	s := openTest(t)

	state, err := s.LoadQueue("bulk")
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Items) != 0 || state.Cursor != 0 {
		t.Errorf("missing queue should be empty, got %+v", state)
	}

	want := QueueState{Items: []string{"a", "b", "c"}, Cursor: 2}
	if err := s.SaveQueue("bulk", want); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadQueue("bulk")
	if err != nil {
		t.Fatal(err)
	}
	if got.Cursor != 2 || len(got.Items) != 3 || got.Items[1] != "b" {
		t.Errorf("round trip: %+v", got)
	}
}

func TestImportLegacy(t *testing.T) {
	s := openTest(t)

	path := filepath.Join(t.TempDir(), "state.json")
	blob := `["@OldTimer", {"username": "alice", "timestamp": 500}, "", {"username": "@Bob", "timestamp": 900}]`
	if err := os.WriteFile(path, []byte(blob), 0o644); err != nil {
		t.Fatal(err)
	}

	// A newer record must survive repeated imports.
	s.UpsertAuthorReply("alice", 1000)

	n, err := s.ImportLegacy(path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 { // oldtimer + bob; alice's newer record wins, "" skipped
		t.Errorf("applied: %d", n)
	}

	ts, found, _ := s.LastReply("oldtimer")
	if !found || ts != 0 {
		t.Errorf("bare string should import with timestamp 0, got (%d, %v)", ts, found)
	}
	ts, _, _ = s.LastReply("alice")
	if ts != 1000 {
		t.Errorf("newer record clobbered: %d", ts)
	}
	ts, _, _ = s.LastReply("bob")
	if ts != 900 {
		t.Errorf("bob: %d", ts)
	}

	// Idempotent re-import.
	if _, err := s.ImportLegacy(path); err != nil {
		t.Fatal(err)
	}
	if ts, _, _ := s.LastReply("bob"); ts != 900 {
		t.Errorf("re-import changed bob: %d", ts)
	}
}

func TestImportLegacy_MissingFile(t *testing.T) {
	s := openTest(t)
	n, err := s.ImportLegacy(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil || n != 0 {
		t.Errorf("missing file: (%d, %v)", n, err)
	}
}
