package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/propstatus/internal/metrics"
	"github.com/sells-group/propstatus/internal/model"
)

// ResolveBatch resolves every item with at most limit resolutions in
// flight (the configured default when limit <= 0). Each item gets its own
// entry; one item's failure never affects another.
func (s *Service) ResolveBatch(ctx context.Context, principal string, items []model.BatchItem, limit int) map[string]model.BatchEntry {
	if limit <= 0 {
		limit = s.batchConcurrency
	}

	batchID := uuid.NewString()
	log := s.log.With(zap.String("batch_id", batchID))
	log.Info("resolver: batch started", zap.Int("items", len(items)), zap.Int("concurrency", limit))
	start := time.Now()

	var (
		mu      sync.Mutex
		results = make(map[string]model.BatchEntry, len(items))
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, item := range items {
		g.Go(func() error {
			metrics.BatchInFlight.Inc()
			defer metrics.BatchInFlight.Dec()

			res := s.resolve(gCtx, principal, item.Address, false)
			metrics.ResolutionsTotal.WithLabelValues(string(res.Source)).Inc()

			mu.Lock()
			results[item.ID] = entryFor(res)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	failed := 0
	for _, e := range results {
		if e.Error != nil {
			failed++
		}
	}
	log.Info("resolver: batch complete",
		zap.Int("items", len(items)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results
}

func entryFor(r model.Resolution) model.BatchEntry {
	if r.Result != nil {
		return model.BatchEntry{Summary: r.Result.FormatSummary(), Result: r.Result}
	}
	return model.BatchEntry{Error: r.Report}
}
