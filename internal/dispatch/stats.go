package dispatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Priya8975/notification-dispatch/internal/domain"
)

// GetStats aggregates the daily rollups between from and to, inclusive by
// UTC day, together with current endpoint and failure counts.
func (s *Service) GetStats(ctx context.Context, from, to time.Time) (domain.AggregateStats, error) {
	from, to = domain.Day(from), domain.Day(to)
	if to.Before(from) {
		return domain.AggregateStats{}, fmt.Errorf("%w: from is after to", domain.ErrValidation)
	}

	var (
		daily      []domain.DailyStat
		active     int
		unresolved int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		daily, err = s.store.ListDailyStats(gctx, from, to)
		if err != nil {
			return fmt.Errorf("listing daily stats: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		active, err = s.store.CountActiveEndpoints(gctx)
		if err != nil {
			return fmt.Errorf("counting active endpoints: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		unresolved, err = s.store.CountUnresolvedFailures(gctx)
		if err != nil {
			return fmt.Errorf("counting unresolved failures: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.AggregateStats{}, err
	}

	out := domain.AggregateStats{
		From:               from,
		To:                 to,
		ActiveEndpoints:    active,
		UnresolvedFailures: unresolved,
		ByChannel:          make(map[domain.ChannelType]domain.ChannelStats),
		Daily:              daily,
	}

	// Latency averages are weighted by the number of sends behind them.
	latencySum := make(map[domain.ChannelType]float64)
	var totalLatency float64
	for _, d := range daily {
		cs := out.ByChannel[d.Channel]
		cs.Sent += d.Sent
		cs.Failed += d.Failed
		cs.Received += d.Received
		out.ByChannel[d.Channel] = cs

		weighted := d.AvgLatencyMs * float64(d.Sent+d.Failed)
		latencySum[d.Channel] += weighted
		totalLatency += weighted

		out.TotalSent += d.Sent
		out.TotalFailed += d.Failed
		out.TotalReceived += d.Received
	}
	for ch, cs := range out.ByChannel {
		attempts := cs.Sent + cs.Failed
		cs.SuccessRate = domain.SuccessRate(cs.Sent, attempts)
		if attempts > 0 {
			cs.AvgLatencyMs = latencySum[ch] / float64(attempts)
		}
		out.ByChannel[ch] = cs
	}
	attempts := out.TotalSent + out.TotalFailed
	out.SuccessRate = domain.SuccessRate(out.TotalSent, attempts)
	if attempts > 0 {
		out.AvgLatencyMs = totalLatency / float64(attempts)
	}
	return out, nil
}
