package app

import (
	"context"
	"sync"
	"time"
)

// DynamicLimiter caps the number of submissions concurrently in flight.
// The cap can be adjusted at runtime via SetLimit; Acquire honors the
// context so it stays a cooperative suspension point.
type DynamicLimiter struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	notify   chan struct{}
}

func NewDynamicLimiter(limit int) *DynamicLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &DynamicLimiter{limit: limit, notify: make(chan struct{})}
}

func (l *DynamicLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

func (l *DynamicLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

func (l *DynamicLimiter) SetLimit(limit int) {
	if limit <= 0 {
		limit = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit == limit {
		return
	}
	l.limit = limit
	l.signalLocked()
}

func (l *DynamicLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		limit := l.limit
		if limit <= 0 {
			limit = 1
		}
		if l.inFlight < limit {
			l.inFlight++
			l.mu.Unlock()
			return nil
		}
		ch := l.notify
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (l *DynamicLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.signalLocked()
}

// signalLocked wakes every waiter by closing and recreating the channel.
// Harmless when nobody is listening.
func (l *DynamicLimiter) signalLocked() {
	close(l.notify)
	l.notify = make(chan struct{})
}

// SubmitPacer enforces a minimum wall-clock interval between submissions
// across all workers, to keep the request cadence plausible for a human and
// below the remote side's throttling radar.
type SubmitPacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func NewSubmitPacer(interval time.Duration) *SubmitPacer {
	return &SubmitPacer{interval: interval}
}

// Wait reserves the next submission slot and sleeps until it opens. Waiting
// is a cooperative suspension point and honors the context.
func (p *SubmitPacer) Wait(ctx context.Context) error {
	if p == nil || p.interval <= 0 {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	at := p.next
	if at.Before(now) {
		at = now
	}
	p.next = at.Add(p.interval)
	p.mu.Unlock()

	delay := at.Sub(now)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
