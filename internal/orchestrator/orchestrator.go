// Package orchestrator runs the multi-step reply sequence against a live
// compose surface: optional like, open reply, request text, inject it, and
// submit, with human-like pacing and bounded retries at every step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"xagent/internal/brain"
	"xagent/internal/config"
	"xagent/internal/feed"
	"xagent/internal/ledger"
	"xagent/internal/logging"
)

// State is the current step of a reply sequence.
type State int

const (
	StateIdle State = iota
	StateOptionalLike
	StateOpeningCompose
	StateRequestingText
	StateInjectingText
	StateAwaitingSubmitEnabled
	StateSubmitted
	StateFailed
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOptionalLike:
		return "optional_like"
	case StateOpeningCompose:
		return "opening_compose"
	case StateRequestingText:
		return "requesting_text"
	case StateInjectingText:
		return "injecting_text"
	case StateAwaitingSubmitEnabled:
		return "awaiting_submit_enabled"
	case StateSubmitted:
		return "submitted"
	case StateFailed:
		return "failed"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy means another reply sequence is already in flight.
	ErrBusy = errors.New("another reply sequence is in flight")
	// ErrNoAuthor means the record has no resolvable author handle.
	ErrNoAuthor = errors.New("author handle could not be resolved")
	// ErrComposeNotFound means the compose surface never materialized.
	ErrComposeNotFound = errors.New("compose surface never appeared")
	// ErrSubmitNotEnabled means the submit control never became usable.
	ErrSubmitNotEnabled = errors.New("submit control never enabled")
)

// Retry budgets and pacing. The delays imitate human reaction times; the
// poll bounds keep every wait finite.
const (
	composeAttempts     = 25
	composePollInterval = 400 * time.Millisecond

	submitAttempts     = 15
	submitPollInterval = 500 * time.Millisecond

	pasteMinChars = 3

	likeSettleMin = 500 * time.Millisecond
	likeSettleMax = 1200 * time.Millisecond

	composeOpenMin = 800 * time.Millisecond
	composeOpenMax = 1500 * time.Millisecond

	preSubmitMin = 1000 * time.Millisecond
	preSubmitMax = 2500 * time.Millisecond

	postSubmitSettle = 1500 * time.Millisecond
)

// Surface is the minimal set of UI primitives one reply sequence needs. A
// live implementation drives a real page; tests substitute a fake.
type Surface interface {
	// Liked reports whether the target item is already liked.
	Liked() (bool, error)
	ClickLike() error
	// ClickReply triggers the item's native reply affordance.
	ClickReply() error
	// ComposeVisible reports whether a compose surface is on screen.
	ComposeVisible() (bool, error)
	// PasteText places text via a simulated clipboard paste.
	PasteText(text string) error
	// RetypeText clears the compose surface and types text back in.
	RetypeText(text string) error
	ComposeText() (string, error)
	// NudgeSpace inserts and removes one whitespace character to force the
	// host UI to re-validate its content.
	NudgeSpace() error
	SubmitEnabled() (bool, error)
	// ClickSubmit dispatches the submit action, including any synthetic
	// compatibility events.
	ClickSubmit() error
}

// Orchestrator executes reply sequences one at a time.
type Orchestrator struct {
	gen    brain.Client
	conf   func() *config.Config
	ledger *ledger.Ledger

	inFlight atomic.Bool

	// Injectable pacing for tests.
	sleep func(time.Duration)
	delay func(min, max time.Duration) time.Duration
	// chance returns true with probability p.
	chance func(p float64) bool

	// OnState, when set, observes every state transition.
	OnState func(State)
}

// New builds an Orchestrator. ledger may be nil when reply bookkeeping is
// handled elsewhere.
func New(gen brain.Client, conf func() *config.Config, lg *ledger.Ledger) *Orchestrator {
	return &Orchestrator{
		gen:    gen,
		conf:   conf,
		ledger: lg,
		sleep:  time.Sleep,
		delay: func(min, max time.Duration) time.Duration {
			if max <= min {
				return min
			}
			return min + time.Duration(rand.Int63n(int64(max-min)))
		},
		chance: func(p float64) bool { return rand.Float64() < p },
	}
}

// humanizedDelay is a base human reaction time with an occasional longer
// pause.
func (o *Orchestrator) humanizedDelay() time.Duration {
	d := o.delay(300*time.Millisecond, 800*time.Millisecond)
	if o.chance(0.15) {
		d += o.delay(500*time.Millisecond, 1500*time.Millisecond)
	}
	return d
}

func (o *Orchestrator) setState(s State) {
	if o.OnState != nil {
		o.OnState(s)
	}
}

// Reply runs the full sequence for one extracted record. At most one
// sequence may be active per Orchestrator; concurrent calls fail fast with
// ErrBusy. The in-flight guard is released on every exit path.
func (o *Orchestrator) Reply(ctx context.Context, surface Surface, rec feed.ItemRecord, tone string) error {
	log := logging.Get(logging.CategoryOrchestrator).With("run", uuid.NewString()[:8])

	if !o.inFlight.CompareAndSwap(false, true) {
		o.setState(StateBlocked)
		return ErrBusy
	}
	defer o.inFlight.Store(false)

	if rec.AuthorHandle == "" {
		o.setState(StateFailed)
		return ErrNoAuthor
	}
	log.Infow("reply sequence starting", "author", rec.AuthorHandle, "tone", tone)

	if err := o.optionalLike(surface); err != nil {
		// A failed like is cosmetic; the reply still proceeds.
		log.Debugw("optional like failed", "error", err)
	}

	o.setState(StateOpeningCompose)
	o.sleep(o.humanizedDelay())
	if err := surface.ClickReply(); err != nil {
		o.setState(StateFailed)
		return fmt.Errorf("open compose: %w", err)
	}
	o.sleep(o.delay(composeOpenMin, composeOpenMax))

	o.setState(StateRequestingText)
	text, err := o.gen.GenerateReply(ctx, brain.ReplyRequest{
		BodyText:     rec.BodyText,
		AuthorHandle: rec.AuthorHandle,
		Verified:     rec.Verified,
		LinkURL:      rec.LinkURL,
		AuthorBio:    rec.AuthorBio,
		RecentTexts:  rec.RecentTexts,
		ToneIntent:   tone,
	})
	if err != nil {
		// Generation is paid and rate limited, so a backend failure is
		// terminal for this attempt rather than retried.
		o.setState(StateFailed)
		return fmt.Errorf("generate reply text: %w", err)
	}

	o.setState(StateInjectingText)
	if err := o.inject(ctx, surface, text); err != nil {
		o.setState(StateFailed)
		return err
	}

	o.setState(StateAwaitingSubmitEnabled)
	if err := o.submit(ctx, surface, text); err != nil {
		o.setState(StateFailed)
		return err
	}

	o.setState(StateSubmitted)
	log.Infow("reply submitted", "author", rec.AuthorHandle)

	if o.ledger != nil {
		if err := o.ledger.RecordReply(rec.AuthorHandle, tone); err != nil {
			log.Warnw("reply submitted but not recorded", "author", rec.AuthorHandle, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) optionalLike(surface Surface) error {
	if !o.conf().Automation.AutoLike {
		return nil
	}
	liked, err := surface.Liked()
	if err != nil {
		return err
	}
	if liked {
		return nil
	}
	o.setState(StateOptionalLike)
	o.sleep(o.humanizedDelay())
	if err := surface.ClickLike(); err != nil {
		return err
	}
	o.sleep(o.delay(likeSettleMin, likeSettleMax))
	return nil
}

// inject waits for the compose surface and places the text, falling back to
// a full retype when the paste lands fewer than three characters.
func (o *Orchestrator) inject(ctx context.Context, surface Surface, text string) error {
	found := false
	for i := 0; i < composeAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if visible, err := surface.ComposeVisible(); err == nil && visible {
			found = true
			break
		}
		o.sleep(composePollInterval)
	}
	if !found {
		return ErrComposeNotFound
	}

	if err := surface.PasteText(text); err != nil {
		logging.Get(logging.CategoryOrchestrator).Debugw("paste failed, retyping", "error", err)
	}
	content, err := surface.ComposeText()
	if err != nil || len(content) < pasteMinChars {
		if err := surface.RetypeText(text); err != nil {
			return fmt.Errorf("inject text: %w", err)
		}
	}
	return nil
}

// submit polls for the submit control to enable, applying one nudge and
// then one full re-insert as escalating remediation, clicks it, and treats
// the compose surface disappearing as the sole success signal.
func (o *Orchestrator) submit(ctx context.Context, surface Surface, text string) error {
	nudged := false
	retyped := false

	for i := 0; i < submitAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		enabled, err := surface.SubmitEnabled()
		if err != nil || !enabled {
			switch {
			case !nudged:
				nudged = true
				if err := surface.NudgeSpace(); err != nil {
					logging.Get(logging.CategoryOrchestrator).Debugw("nudge failed", "error", err)
				}
			case !retyped:
				retyped = true
				if err := surface.RetypeText(text); err != nil {
					logging.Get(logging.CategoryOrchestrator).Debugw("re-insert failed", "error", err)
				}
			}
			o.sleep(submitPollInterval)
			continue
		}

		o.sleep(o.delay(preSubmitMin, preSubmitMax))
		if err := surface.ClickSubmit(); err != nil {
			o.sleep(submitPollInterval)
			continue
		}
		o.sleep(postSubmitSettle)

		visible, err := surface.ComposeVisible()
		if err == nil && !visible {
			return nil
		}
		// Still on screen: the click did not take. Keep polling inside the
		// same attempt budget rather than declaring success.
	}
	return ErrSubmitNotEnabled
}
