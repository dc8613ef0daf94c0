package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xagent/internal/brain"
	"xagent/internal/config"
	"xagent/internal/feed"
	"xagent/internal/ledger"
	"xagent/internal/store"
)

type fakeGen struct {
	text  string
	err   error
	block chan struct{}
	calls int
}

func (f *fakeGen) GenerateReply(ctx context.Context, req brain.ReplyRequest) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.calls++
	return f.text, f.err
}

// fakeSurface scripts compose-surface behavior and records primitive calls.
type fakeSurface struct {
	mu sync.Mutex

	liked             bool
	composeAfterPolls int  // polls before the compose surface appears
	composeHides      bool // whether a submit click closes the surface
	pasteShort        bool // paste lands fewer than 3 chars
	submitEnabledAt   int  // SubmitEnabled checks before it reports true

	content string

	composeChecks int
	submitChecks  int
	likeClicks    int
	replyClicks   int
	submitClicks  int
	nudges        int
	retypes       int
	submitted     bool
}

func (s *fakeSurface) Liked() (bool, error) { return s.liked, nil }
func (s *fakeSurface) ClickLike() error     { s.likeClicks++; return nil }
func (s *fakeSurface) ClickReply() error    { s.replyClicks++; return nil }

func (s *fakeSurface) ComposeVisible() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted && s.composeHides {
		return false, nil
	}
	s.composeChecks++
	return s.composeChecks > s.composeAfterPolls, nil
}

func (s *fakeSurface) PasteText(text string) error {
	if s.pasteShort {
		s.content = "x"
	} else {
		s.content = text
	}
	return nil
}

func (s *fakeSurface) RetypeText(text string) error {
	s.retypes++
	s.content = text
	return nil
}

func (s *fakeSurface) ComposeText() (string, error) { return s.content, nil }
func (s *fakeSurface) NudgeSpace() error            { s.nudges++; return nil }

func (s *fakeSurface) SubmitEnabled() (bool, error) {
	s.submitChecks++
	return s.submitChecks > s.submitEnabledAt, nil
}

func (s *fakeSurface) ClickSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitClicks++
	s.submitted = true
	return nil
}

func newTestOrchestrator(t *testing.T, gen brain.Client, mutate func(*config.Config)) (*Orchestrator, *ledger.Ledger) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	lg := ledger.New(st)

	o := New(gen, func() *config.Config { return cfg }, lg)
	o.sleep = func(time.Duration) {}
	o.delay = func(min, max time.Duration) time.Duration { return min }
	o.chance = func(float64) bool { return false }
	return o, lg
}

func record() feed.ItemRecord {
	return feed.ItemRecord{BodyText: "gm", AuthorHandle: "alice"}
}

func TestReply_HappyPathRecordsLedger(t *testing.T) {
	o, lg := newTestOrchestrator(t, &fakeGen{text: "nice take"}, nil)
	surface := &fakeSurface{composeHides: true}

	var states []State
	o.OnState = func(s State) { states = append(states, s) }

	before, _ := lg.Classify("alice")
	require.Equal(t, ledger.Never, before)

	require.NoError(t, o.Reply(context.Background(), surface, record(), "Neutral"))

	assert.Equal(t, 1, surface.replyClicks)
	assert.Equal(t, 1, surface.submitClicks)
	assert.Equal(t, "nice take", surface.content)
	assert.Equal(t, StateSubmitted, states[len(states)-1])

	after, _ := lg.Classify("alice")
	assert.Equal(t, ledger.Fresh, after)
}

func TestReply_SingleFlight(t *testing.T) {
	gen := &fakeGen{text: "ok", block: make(chan struct{})}
	o, _ := newTestOrchestrator(t, gen, nil)

	done := make(chan error, 1)
	go func() {
		done <- o.Reply(context.Background(), &fakeSurface{composeHides: true}, record(), "Neutral")
	}()

	// Wait until the first sequence is parked inside generation.
	require.Eventually(t, func() bool { return o.inFlight.Load() }, time.Second, 5*time.Millisecond)

	err := o.Reply(context.Background(), &fakeSurface{}, record(), "Neutral")
	assert.ErrorIs(t, err, ErrBusy)

	close(gen.block)
	require.NoError(t, <-done)

	// Guard released: a fresh sequence may start.
	gen.block = nil
	require.NoError(t, o.Reply(context.Background(), &fakeSurface{composeHides: true}, record(), "Neutral"))
}

func TestReply_ComposeNeverAppears(t *testing.T) {
	o, lg := newTestOrchestrator(t, &fakeGen{text: "ok"}, nil)
	surface := &fakeSurface{composeAfterPolls: 1000}

	err := o.Reply(context.Background(), surface, record(), "Neutral")
	assert.ErrorIs(t, err, ErrComposeNotFound)
	assert.Equal(t, composeAttempts, surface.composeChecks, "polling must stop at the attempt budget")

	f, _ := lg.Classify("alice")
	assert.Equal(t, ledger.Never, f, "failed sequence must not touch the ledger")
}

func TestReply_ShortPasteFallsBackToRetype(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeGen{text: "full reply text"}, nil)
	surface := &fakeSurface{pasteShort: true, composeHides: true}

	require.NoError(t, o.Reply(context.Background(), surface, record(), "Neutral"))
	assert.Equal(t, 1, surface.retypes)
	assert.Equal(t, "full reply text", surface.content)
}

func TestReply_SubmitNeverEnables(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeGen{text: "ok"}, nil)
	surface := &fakeSurface{submitEnabledAt: 1000}

	err := o.Reply(context.Background(), surface, record(), "Neutral")
	assert.ErrorIs(t, err, ErrSubmitNotEnabled)
	assert.Equal(t, submitAttempts, surface.submitChecks)
	assert.Equal(t, 1, surface.nudges, "nudge remediation fires exactly once")
	assert.Equal(t, 1, surface.retypes, "full re-insert fires exactly once")
	assert.Zero(t, surface.submitClicks)
}

func TestReply_SubmitEnablesAfterNudge(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeGen{text: "ok"}, nil)
	surface := &fakeSurface{submitEnabledAt: 2, composeHides: true}

	require.NoError(t, o.Reply(context.Background(), surface, record(), "Neutral"))
	assert.Equal(t, 1, surface.nudges)
	assert.Equal(t, 1, surface.submitClicks)
}

func TestReply_ComposeNeverCloses(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeGen{text: "ok"}, nil)
	surface := &fakeSurface{composeHides: false}

	err := o.Reply(context.Background(), surface, record(), "Neutral")
	assert.ErrorIs(t, err, ErrSubmitNotEnabled)
	assert.GreaterOrEqual(t, surface.submitClicks, 1, "click happened but never confirmed")
}

func TestReply_BackendFailureIsTerminal(t *testing.T) {
	boom := errors.New("quota exhausted")
	gen := &fakeGen{err: boom}
	o, lg := newTestOrchestrator(t, gen, nil)

	err := o.Reply(context.Background(), &fakeSurface{}, record(), "Neutral")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, gen.calls, "backend failures are never retried")

	f, _ := lg.Classify("alice")
	assert.Equal(t, ledger.Never, f)

	// Guard released even on failure.
	gen.err = nil
	gen.text = "ok"
	require.NoError(t, o.Reply(context.Background(), &fakeSurface{composeHides: true}, record(), "Neutral"))
}

func TestReply_NoAuthor(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeGen{text: "ok"}, nil)
	err := o.Reply(context.Background(), &fakeSurface{}, feed.ItemRecord{BodyText: "gm"}, "Neutral")
	assert.ErrorIs(t, err, ErrNoAuthor)
	assert.False(t, o.inFlight.Load(), "guard must clear on early validation failure")
}

func TestReply_AutoLike(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeGen{text: "ok"}, func(cfg *config.Config) {
		cfg.Automation.AutoLike = true
	})

	surface := &fakeSurface{composeHides: true}
	require.NoError(t, o.Reply(context.Background(), surface, record(), "Neutral"))
	assert.Equal(t, 1, surface.likeClicks)

	already := &fakeSurface{liked: true, composeHides: true}
	require.NoError(t, o.Reply(context.Background(), already, record(), "Neutral"))
	assert.Zero(t, already.likeClicks, "already-liked target must not be clicked")
}

func TestReply_ContextCancellation(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeGen{text: "ok"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Reply(ctx, &fakeSurface{composeAfterPolls: 5}, record(), "Neutral")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, o.inFlight.Load())
}
