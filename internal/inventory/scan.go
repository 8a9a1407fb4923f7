package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Collector produces inventory items of one kind (drivers, services, ...).
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]Item, error)
}

// PlatformCollector reports machine-level information for a snapshot summary.
type PlatformCollector interface {
	CollectPlatform(ctx context.Context) (Platform, error)
}

// CollectorError wraps a failure from a single collector.
type CollectorError struct {
	Collector string
	Err       error
}

func (e *CollectorError) Error() string {
	return fmt.Sprintf("collector %s: %v", e.Collector, e.Err)
}

func (e *CollectorError) Unwrap() error { return e.Err }

// CollectorResult is the outcome of one collector: items on success, Err on
// failure. A failed collector contributes no items.
type CollectorResult struct {
	Name  string
	Items []Item
	Err   error
}

// ScanResult aggregates every collector's result.
type ScanResult struct {
	Items       []Item
	Platform    Platform
	Results     []CollectorResult
	Diagnostics []string
}

// Scanner runs collectors concurrently and aggregates their results in
// registration order.
type Scanner struct {
	collectors []Collector
	platform   PlatformCollector
	log        *zap.Logger
}

// NewScanner creates a scanner. platform may be nil.
func NewScanner(log *zap.Logger, platform PlatformCollector, collectors ...Collector) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{collectors: collectors, platform: platform, log: log}
}

// Scan runs all collectors. Individual collector failures never fail the
// scan; they are reported in Diagnostics.
func (s *Scanner) Scan(ctx context.Context) ScanResult {
	results := make([]CollectorResult, len(s.collectors))
	var platform Platform
	var platformErr error

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range s.collectors {
		g.Go(func() error {
			items, err := c.Collect(gctx)
			if err != nil {
				results[i] = CollectorResult{Name: c.Name(), Err: &CollectorError{Collector: c.Name(), Err: err}}
				return nil
			}
			results[i] = CollectorResult{Name: c.Name(), Items: items}
			return nil
		})
	}
	if s.platform != nil {
		g.Go(func() error {
			platform, platformErr = s.platform.CollectPlatform(gctx)
			return nil
		})
	}
	_ = g.Wait()

	out := ScanResult{Results: results}
	seen := make(map[string]bool)
	for _, r := range results {
		if r.Err != nil {
			s.log.Warn("collector failed", zap.String("collector", r.Name), zap.Error(r.Err))
			out.Diagnostics = append(out.Diagnostics, r.Err.Error())
			continue
		}
		for _, it := range r.Items {
			if !ValidID(it.ID) {
				out.Diagnostics = append(out.Diagnostics,
					fmt.Sprintf("collector %s: dropped item with invalid id %q", r.Name, it.ID))
				continue
			}
			if seen[it.ID] {
				out.Diagnostics = append(out.Diagnostics,
					fmt.Sprintf("collector %s: dropped duplicate item %s", r.Name, it.ID))
				continue
			}
			seen[it.ID] = true
			out.Items = append(out.Items, it)
		}
	}
	if platformErr != nil {
		s.log.Warn("platform collector failed", zap.Error(platformErr))
		out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("platform: %v", platformErr))
	} else {
		out.Platform = platform
	}
	return out
}

// NewSnapshot builds a snapshot for a session from a scan result.
func NewSnapshot(sessionID string, r ScanResult) *Snapshot {
	return &Snapshot{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
		Summary:   Summarize(r.Items, r.Platform),
		Items:     r.Items,
	}
}
