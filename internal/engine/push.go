package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/mapper"
)

// Push is one record delivered outside a paged run, for example by a
// marketplace webhook.
type Push struct {
	Tenant string
	Kind   canon.Kind
	Raw    json.RawMessage
}

// PushResult reports how a Push was applied. Err is a *mapper.MappingError,
// a limit rejection (limits.IsExceeded) or a *TransactionError.
type PushResult struct {
	Push       Push
	NaturalKey canon.ID
	Outcome    Outcome
	Err        error
}

// pushQueue is a thread-safe unbounded FIFO queue.
//
// Producers (HTTP handlers, CLI readers) enqueue from any goroutine while
// one Pusher.Run loop dequeues. The signal channel lets the loop wait with
// a context instead of blocking forever.
type pushQueue struct {
	mu     sync.Mutex
	items  []Push
	closed bool
	signal chan struct{} // buffered, size 1
}

func newPushQueue() *pushQueue {
	return &pushQueue{
		items:  make([]Push, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// enqueue appends p. Returns false if the queue is closed.
func (q *pushQueue) enqueue(p Push) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, p)

	// Non-blocking: a full buffer already means "something is available".
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue pops the front item without blocking.
func (q *pushQueue) tryDequeue() (Push, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Push{}, false
	}
	p := q.items[0]

	// Release the raw payload held by the backing array.
	q.items[0] = Push{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return p, true
}

// drained reports whether the queue is closed and empty.
func (q *pushQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

func (q *pushQueue) wait() <-chan struct{} {
	return q.signal
}

func (q *pushQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close stops further enqueues and wakes the waiting loop.
func (q *pushQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Pusher applies pushed records one at a time through the same
// transactional core as Run. Records are applied in enqueue order.
type Pusher struct {
	engine   *Engine
	queue    *pushQueue
	onResult func(PushResult)
}

// NewPusher creates a Pusher. onResult, if non-nil, is called from the Run
// goroutine after each record is applied.
func (e *Engine) NewPusher(onResult func(PushResult)) *Pusher {
	return &Pusher{engine: e, queue: newPushQueue(), onResult: onResult}
}

// Enqueue adds p. Safe for concurrent use. Returns false after Close.
func (p *Pusher) Enqueue(push Push) bool {
	return p.queue.enqueue(push)
}

// Close stops accepting pushes. Run returns once the queue is drained.
func (p *Pusher) Close() {
	p.queue.close()
}

// Len returns the number of pending pushes.
func (p *Pusher) Len() int {
	return p.queue.len()
}

// Run applies pushes until the Pusher is closed and drained, or ctx is
// cancelled. A push already being applied always finishes its transaction.
func (p *Pusher) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if push, ok := p.queue.tryDequeue(); ok {
			res := p.apply(ctx, push)
			if p.onResult != nil {
				p.onResult(res)
			}
			continue
		}
		if p.queue.drained() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.queue.wait():
		}
	}
}

func (p *Pusher) apply(ctx context.Context, push Push) PushResult {
	res := PushResult{Push: push}
	log := p.engine.logger.With("tenant", push.Tenant, "kind", push.Kind)

	rec, err := mapper.Map(push.Kind, push.Raw)
	if err != nil {
		res.NaturalKey = mapper.ProbeKey(push.Kind, push.Raw)
		res.Err = err
		p.engine.metrics.record(push.Kind, string(canon.ClassMapping))
		log.Warn("push rejected", "natural_key", res.NaturalKey, "error", err)
		return res
	}
	res.NaturalKey = rec.NaturalKey()

	res.Outcome, res.Err = p.engine.UpsertRecord(ctx, push.Tenant, rec)
	if res.Err != nil {
		log.Warn("push failed", "natural_key", res.NaturalKey, "class", Classify(res.Err), "error", res.Err)
		return res
	}
	log.Debug("push applied", "natural_key", res.NaturalKey, "operation", res.Outcome.Operation)
	return res
}
