// Package scheduler periodically re-resolves tenant properties and writes
// confident statuses back to the store.
package scheduler

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/propstatus/internal/config"
	"github.com/sells-group/propstatus/internal/metrics"
	"github.com/sells-group/propstatus/internal/model"
)

// DefaultMinConfidence is the write-back threshold when none is configured.
const DefaultMinConfidence = 0.5

// PropertyStore is the part of the property store the refresher uses.
type PropertyStore interface {
	ListTenants(ctx context.Context) ([]string, error)
	ListByTenant(ctx context.Context, tenant string) ([]model.Property, error)
	UpdateStatus(ctx context.Context, id int64, status model.ListingStatus) error
}

// BatchResolver resolves many addresses at once.
type BatchResolver interface {
	ResolveBatch(ctx context.Context, principal string, items []model.BatchItem, limit int) map[string]model.BatchEntry
}

// Summary counts what one refresh pass did.
type Summary struct {
	Tenants   int
	Resolved  int
	Updated   int
	Unchanged int
	Skipped   int
	Failed    int
	Notified  int
}

// Refresher runs the periodic status refresh.
type Refresher struct {
	store    PropertyStore
	resolver BatchResolver
	notifier *Notifier
	cfg      config.RefreshConfig

	nowFunc func() time.Time
}

// NewRefresher creates a refresher. notifier may be nil.
func NewRefresher(store PropertyStore, resolver BatchResolver, notifier *Notifier, cfg config.RefreshConfig) *Refresher {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	return &Refresher{
		store:    store,
		resolver: resolver,
		notifier: notifier,
		cfg:      cfg,
		nowFunc:  time.Now,
	}
}

// Run starts the periodic refresh loop. It blocks until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	interval := time.Duration(r.cfg.IntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	log := zap.L().With(zap.String("component", "scheduler.refresher"))
	log.Info("starting status refresher",
		zap.Duration("interval", interval),
		zap.Strings("tenants", r.cfg.Tenants),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("status refresher stopped")
			return
		case <-ticker.C:
			sum := r.RunOnce(ctx)
			log.Info("scheduler: refresh complete",
				zap.Int("tenants", sum.Tenants),
				zap.Int("resolved", sum.Resolved),
				zap.Int("updated", sum.Updated),
				zap.Int("failed", sum.Failed),
			)
		}
	}
}

// RunOnce refreshes every tenant once. Errors are logged and counted; one
// tenant's failure never stops the others.
func (r *Refresher) RunOnce(ctx context.Context) Summary {
	var sum Summary

	tenants := r.cfg.Tenants
	if len(tenants) == 0 {
		var err error
		tenants, err = r.store.ListTenants(ctx)
		if err != nil {
			zap.L().Error("scheduler: list tenants", zap.Error(err))
			return sum
		}
	}

	for _, tenant := range tenants {
		if ctx.Err() != nil {
			break
		}
		sum.Tenants++
		r.refreshTenant(ctx, tenant, &sum)
	}
	return sum
}

func (r *Refresher) refreshTenant(ctx context.Context, tenant string, sum *Summary) {
	log := zap.L().With(zap.String("tenant", tenant))

	props, err := r.store.ListByTenant(ctx, tenant)
	if err != nil {
		log.Error("scheduler: list properties", zap.Error(err))
		return
	}
	if len(props) == 0 {
		return
	}

	items := make([]model.BatchItem, len(props))
	byID := make(map[string]model.Property, len(props))
	for i, p := range props {
		id := strconv.FormatInt(p.ID, 10)
		items[i] = model.BatchItem{ID: id, Address: p.Address}
		byID[id] = p
	}

	entries := r.resolver.ResolveBatch(ctx, tenant, items, r.cfg.Concurrency)

	var changes []StatusChange
	for id, entry := range entries {
		p := byID[id]
		if entry.Result == nil {
			sum.Failed++
			continue
		}
		sum.Resolved++

		res := entry.Result
		if !r.confident(*res) {
			sum.Skipped++
			continue
		}
		if res.Status == p.Status {
			sum.Unchanged++
			continue
		}

		if err := r.store.UpdateStatus(ctx, p.ID, res.Status); err != nil {
			log.Error("scheduler: update status", zap.Int64("property_id", p.ID), zap.Error(err))
			metrics.StatusWritebacksTotal.WithLabelValues(tenant, "error").Inc()
			sum.Failed++
			continue
		}
		metrics.StatusWritebacksTotal.WithLabelValues(tenant, "updated").Inc()
		sum.Updated++

		changes = append(changes, StatusChange{
			PropertyID: p.ID,
			Tenant:     tenant,
			Address:    p.Address,
			From:       p.Status,
			To:         res.Status,
			SoldDate:   res.SoldDate,
			Confidence: res.ConfidenceValue(),
			Timestamp:  r.nowFunc().UTC(),
		})
	}

	sum.Notified += r.notifier.Notify(ctx, changes)
}

// confident reports whether a result is trustworthy enough to persist.
// Synthetic fallbacks and Unknown statuses never are.
func (r *Refresher) confident(res model.StatusResult) bool {
	if res.LocalFallback || res.Status == model.StatusUnknown {
		return false
	}
	return res.ConfidenceValue() >= r.cfg.MinConfidence
}
