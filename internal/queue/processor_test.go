package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"xagent/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTick_CursorProgression(t *testing.T) {
	s := openStore(t)

	var handled []string
	p := New(BulkQueue, s, time.Hour, func(ctx context.Context, item string) error {
		handled = append(handled, item)
		return nil
	})
	if err := p.Load([]string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		consumed, err := p.Tick(ctx)
		if err != nil || !consumed {
			t.Fatalf("tick %d: (%v, %v)", want, consumed, err)
		}
		st, _ := p.Status()
		if st.Cursor != want {
			t.Fatalf("after tick %d: cursor %d", want, st.Cursor)
		}
	}

	// Complete: further ticks consume nothing.
	consumed, err := p.Tick(ctx)
	if err != nil || consumed {
		t.Fatalf("tick past end: (%v, %v)", consumed, err)
	}

	st, _ := p.Status()
	if !st.Complete {
		t.Error("expected complete")
	}
	if len(handled) != 3 || handled[0] != "a" || handled[2] != "c" {
		t.Errorf("handled %v, no item may repeat or skip", handled)
	}
}

func TestTick_CursorSurvivesRestart(t *testing.T) {
	s := openStore(t)

	p := New(BulkQueue, s, time.Hour, func(ctx context.Context, item string) error { return nil })
	p.Load([]string{"a", "b"})
	p.Tick(context.Background())

	// A fresh processor over the same store resumes at the persisted cursor.
	var got string
	p2 := New(BulkQueue, s, time.Hour, func(ctx context.Context, item string) error {
		got = item
		return nil
	})
	p2.Tick(context.Background())
	if got != "b" {
		t.Errorf("expected resume at second item, handled %q", got)
	}
}

func TestTick_HandlerErrorStillAdvances(t *testing.T) {
	s := openStore(t)

	p := New(BulkQueue, s, time.Hour, func(ctx context.Context, item string) error {
		return errors.New("profile unreachable")
	})
	p.Load([]string{"bad", "good"})

	if _, err := p.Tick(context.Background()); err != nil {
		t.Fatalf("handler error must not surface from Tick: %v", err)
	}
	st, _ := p.Status()
	if st.Cursor != 1 {
		t.Errorf("poisoned item must still advance the cursor, got %d", st.Cursor)
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	s := openStore(t)

	var mu sync.Mutex
	count := 0
	p := New(BulkQueue, s, 10*time.Millisecond, func(ctx context.Context, item string) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	p.Load([]string{"a", "b", "c", "d", "e"})

	ctx := context.Background()
	p.Start(ctx)
	p.Start(ctx) // no second ticker

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := count
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("processor never ticked")
		case <-time.After(5 * time.Millisecond):
		}
	}

	p.Stop()
	p.Stop() // safe twice

	st, _ := p.Status()
	if st.Running {
		t.Error("stopped processor reports running")
	}

	// No further ticks after stop.
	mu.Lock()
	n := count
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != n {
		t.Errorf("ticks continued after stop: %d -> %d", n, count)
	}
}

func TestPush_AppendsToPersistedQueue(t *testing.T) {
	s := openStore(t)

	p := New(MentionQueue, s, time.Hour, func(ctx context.Context, item string) error { return nil })
	if err := p.Push("first"); err != nil {
		t.Fatal(err)
	}
	if err := p.Push("second"); err != nil {
		t.Fatal(err)
	}

	st, _ := p.Status()
	if st.Total != 2 || st.Cursor != 0 {
		t.Errorf("status: %+v", st)
	}
}
