package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// QueryStats holds query execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of queries executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of exec statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing queries.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of queries exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of query errors.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow query is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// observer collects the statistics of a provider and reports slow and
// debugged statements. A nil observer ignores everything.
type observer struct {
	stats  QueryStats
	logger *slog.Logger
	debug  bool

	mu            sync.RWMutex
	slowThreshold time.Duration
	slowHook      SlowQueryHook
}

func newObserver(logger *slog.Logger) *observer {
	return &observer{logger: logger, slowThreshold: 100 * time.Millisecond}
}

func (o *observer) record(ctx context.Context, query string, args []any, start time.Time, err error, isQuery bool) {
	if o == nil {
		return
	}
	duration := time.Since(start)
	if isQuery {
		o.stats.TotalQueries.Add(1)
	} else {
		o.stats.TotalExecs.Add(1)
	}
	o.stats.TotalDuration.Add(int64(duration))
	if err != nil {
		o.stats.Errors.Add(1)
	}
	if o.debug {
		o.logger.DebugContext(ctx, "sql statement", "query", query, "args", args, "duration", duration, "error", err)
	}

	o.mu.RLock()
	threshold := o.slowThreshold
	hook := o.slowHook
	o.mu.RUnlock()

	if threshold > 0 && duration > threshold {
		o.stats.SlowQueries.Add(1)
		if hook != nil {
			hook(ctx, query, args, duration)
		}
	}
}

// QueryStats returns the statistics of the statements run by the provider.
func (p *Provider) QueryStats() *QueryStats {
	return &p.obs.stats
}

// SlowThreshold returns the current slow query threshold.
func (p *Provider) SlowThreshold() time.Duration {
	p.obs.mu.RLock()
	defer p.obs.mu.RUnlock()
	return p.obs.slowThreshold
}

// SetSlowThreshold updates the slow query threshold. Zero disables slow
// query detection.
func (p *Provider) SetSlowThreshold(threshold time.Duration) {
	p.obs.mu.Lock()
	defer p.obs.mu.Unlock()
	p.obs.slowThreshold = threshold
}

// WithSlowThreshold sets the threshold for slow query detection.
// Statements taking longer than this duration are counted as slow.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) Option {
	return func(p *Provider) {
		p.obs.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow queries.
func WithSlowQueryHook(hook SlowQueryHook) Option {
	return func(p *Provider) {
		p.obs.slowHook = hook
	}
}

// WithSlowQueryLog logs slow queries with the logger of the provider.
func WithSlowQueryLog() Option {
	return func(p *Provider) {
		obs := p.obs
		obs.slowHook = func(ctx context.Context, query string, args []any, duration time.Duration) {
			obs.logger.WarnContext(ctx, "slow query detected", "duration", duration, "query", query, "args", args)
		}
	}
}

// WithDebug logs every statement at debug level.
func WithDebug() Option {
	return func(p *Provider) {
		p.obs.debug = true
	}
}
