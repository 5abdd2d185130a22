package engine

import (
	"context"
	"time"
)

// Default cooperative pause between records.
const (
	DefaultPauseEvery = 50
	DefaultPause      = 25 * time.Millisecond
)

// pacer yields for a short interval after every batch of processed
// records so a long full-snapshot run does not monopolize the store's
// single connection. It never runs inside a transaction.
type pacer struct {
	every int
	pause time.Duration
	count int
	sleep func(ctx context.Context, d time.Duration) error
}

func newPacer(every int, pause time.Duration) *pacer {
	return &pacer{every: every, pause: pause, sleep: sleepContext}
}

// tick counts one processed record. It returns the context's error if the
// run was cancelled while pausing.
func (p *pacer) tick(ctx context.Context) error {
	p.count++
	if p.every <= 0 || p.pause <= 0 || p.count%p.every != 0 {
		return nil
	}
	return p.sleep(ctx, p.pause)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
