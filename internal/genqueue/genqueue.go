// Package genqueue paces requests to the generation backend. A single
// consumer services tasks strictly in arrival order, keeping a minimum gap
// between dispatches and a hard cap per rolling minute. The backend bills
// and rate-limits per call, so bursts must queue here instead of colliding
// there.
package genqueue

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"xagent/internal/logging"
)

// ErrClosed is returned for tasks submitted to or still pending in a closed
// queue.
var ErrClosed = errors.New("generation queue closed")

const (
	spacingJitterMax  = 500 * time.Millisecond
	rolloverJitterMin = 1000 * time.Millisecond
	rolloverJitterMax = 3000 * time.Millisecond
	window            = time.Minute
)

// Task performs one generation request.
type Task func(ctx context.Context) (string, error)

type job struct {
	ctx  context.Context
	fn   Task
	done chan result
}

type result struct {
	text string
	err  error
}

// Queue is the rate-limited FIFO scheduler. Zero value is not usable; see
// New.
type Queue struct {
	minSpacing   time.Duration
	maxPerMinute int

	jobs chan *job
	stop chan struct{}
	wg   sync.WaitGroup

	// Injectable clock for tests.
	now    func() time.Time
	sleep  func(time.Duration)
	jitter func(min, max time.Duration) time.Duration
}

// New builds and starts a queue enforcing the given spacing and per-minute
// cap. maxPerMinute <= 0 disables the rolling cap.
func New(minSpacing time.Duration, maxPerMinute int) *Queue {
	q := &Queue{
		minSpacing:   minSpacing,
		maxPerMinute: maxPerMinute,
		jobs:         make(chan *job, 256),
		stop:         make(chan struct{}),
		now:          time.Now,
		sleep:        time.Sleep,
		jitter: func(min, max time.Duration) time.Duration {
			if max <= min {
				return min
			}
			return min + time.Duration(rand.Int63n(int64(max-min)))
		},
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Do submits fn and blocks until its result, a context error, or queue
// shutdown. Tasks run strictly in submission order.
func (q *Queue) Do(ctx context.Context, fn Task) (string, error) {
	j := &job{ctx: ctx, fn: fn, done: make(chan result, 1)}
	select {
	case q.jobs <- j:
	case <-q.stop:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-j.done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops the consumer and rejects all pending tasks.
func (q *Queue) Close() {
	close(q.stop)
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	log := logging.Get(logging.CategoryQueue)

	var dispatched []time.Time // dispatch times inside the rolling window
	var last time.Time

	for {
		select {
		case <-q.stop:
			q.drain()
			return
		case j := <-q.jobs:
			if j.ctx.Err() != nil {
				j.done <- result{err: j.ctx.Err()}
				continue
			}

			dispatched = q.awaitWindow(dispatched, log)
			if !last.IsZero() && q.minSpacing > 0 {
				gap := q.minSpacing + q.jitter(0, spacingJitterMax)
				if wait := gap - q.now().Sub(last); wait > 0 {
					q.sleep(wait)
				}
			}

			last = q.now()
			dispatched = append(dispatched, last)
			text, err := j.fn(j.ctx)
			if err != nil {
				log.Warnw("generation task failed", "error", err)
			}
			j.done <- result{text: text, err: err}
		}
	}
}

// awaitWindow blocks until the rolling-minute cap admits another dispatch
// and returns the pruned dispatch list.
func (q *Queue) awaitWindow(dispatched []time.Time, log interface{ Infow(string, ...interface{}) }) []time.Time {
	if q.maxPerMinute <= 0 {
		return dispatched
	}
	for {
		now := q.now()
		live := dispatched[:0]
		for _, t := range dispatched {
			if now.Sub(t) < window {
				live = append(live, t)
			}
		}
		dispatched = live
		if len(dispatched) < q.maxPerMinute {
			return dispatched
		}
		wait := dispatched[0].Add(window).Sub(now) + q.jitter(rolloverJitterMin, rolloverJitterMax)
		log.Infow("per-minute cap reached, waiting for window rollover", "wait", wait)
		q.sleep(wait)
	}
}

func (q *Queue) drain() {
	for {
		select {
		case j := <-q.jobs:
			j.done <- result{err: ErrClosed}
		default:
			return
		}
	}
}
