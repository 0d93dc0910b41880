package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// pacer spaces successive sends to the same chat channel by a fixed delay.
// Other channels pass straight through.
type pacer struct {
	delay time.Duration
	paced map[domain.ChannelType]bool

	mu   sync.Mutex
	next map[domain.ChannelType]time.Time
}

func newPacer(delay time.Duration, channels ...domain.ChannelType) *pacer {
	p := &pacer{
		delay: delay,
		paced: make(map[domain.ChannelType]bool, len(channels)),
		next:  make(map[domain.ChannelType]time.Time),
	}
	for _, ch := range channels {
		p.paced[ch] = true
	}
	return p
}

// wait reserves the next send slot for ch and sleeps until it opens.
func (p *pacer) wait(ctx context.Context, ch domain.ChannelType) error {
	if p.delay <= 0 || !p.paced[ch] {
		return ctx.Err()
	}

	p.mu.Lock()
	now := time.Now()
	at := p.next[ch]
	if at.Before(now) {
		at = now
	}
	p.next[ch] = at.Add(p.delay)
	p.mu.Unlock()

	return sleep(ctx, time.Until(at))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
