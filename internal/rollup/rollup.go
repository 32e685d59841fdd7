// Package rollup serves the ROI summary computed from the current
// database snapshot, recomputing only after the change feed
// reports a write.
package rollup

import (
	"context"
	"fmt"
	"sync"

	"github.com/wesm/revenueos/internal/db"
	"github.com/wesm/revenueos/internal/feed"
	"github.com/wesm/revenueos/internal/metrics"
	"github.com/wesm/revenueos/internal/roi"
)

// Source loads the rows the aggregator reads.
type Source interface {
	LoadSnapshot(
		ctx context.Context, meteredProvider string,
	) (db.Snapshot, error)
}

// Subscriber registers for change events.
type Subscriber interface {
	Subscribe(h feed.Handler) (cancel func())
}

// Service caches the last Summary keyed by the feed generation.
type Service struct {
	src      Source
	params   roi.Params
	provider string

	mu         sync.Mutex
	generation uint64
	cachedGen  uint64
	cached     *roi.Summary

	cancel func()
}

// New creates a Service. When sub is non-nil every event bumps
// the generation and invalidates the cache; without it the first
// result is cached until Invalidate is called.
func New(
	src Source, sub Subscriber, params roi.Params,
	meteredProvider string,
) *Service {
	s := &Service{
		src:      src,
		params:   params,
		provider: meteredProvider,
		cancel:   func() {},
	}
	if sub != nil {
		s.cancel = sub.Subscribe(func(e feed.Event) {
			metrics.FeedEvents.WithLabelValues(
				e.Table, string(e.Op),
			).Inc()
			s.Invalidate()
		})
	}
	return s
}

// Close unsubscribes from the feed.
func (s *Service) Close() {
	s.cancel()
}

// Invalidate marks the cached summary stale.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// Generation returns the current data generation.
func (s *Service) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Summary returns the fleet rollup, recomputing it when the data
// changed since the cached result.
func (s *Service) Summary(ctx context.Context) (roi.Summary, error) {
	s.mu.Lock()
	if s.cached != nil && s.cachedGen == s.generation {
		sum := *s.cached
		s.mu.Unlock()
		return sum, nil
	}
	gen := s.generation
	params := s.params
	s.mu.Unlock()

	snap, err := s.src.LoadSnapshot(ctx, s.provider)
	if err != nil {
		return roi.Summary{}, fmt.Errorf("loading snapshot: %w", err)
	}
	sum := roi.Compute(snap.Agents, snap.Traces, snap.Costs, params)
	metrics.Recomputes.Inc()
	metrics.ObserveSummary(sum)

	// A write during the load leaves gen behind the current
	// generation, so the next call recomputes.
	s.mu.Lock()
	if s.cached == nil || gen >= s.cachedGen {
		s.cached = &sum
		s.cachedGen = gen
	}
	s.mu.Unlock()
	return sum, nil
}

// Agent returns one agent's metrics. ok is false when the agent
// is unknown or is the coordinator.
func (s *Service) Agent(
	ctx context.Context, id string,
) (roi.AgentMetrics, bool, error) {
	sum, err := s.Summary(ctx)
	if err != nil {
		return roi.AgentMetrics{}, false, err
	}
	m, ok := sum.FindAgent(id)
	return m, ok, nil
}

// Params returns the calibration in use.
func (s *Service) Params() roi.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// SetParams replaces the calibration and invalidates the cache.
func (s *Service) SetParams(p roi.Params) {
	s.mu.Lock()
	s.params = p
	s.generation++
	s.mu.Unlock()
}
