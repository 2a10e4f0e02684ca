package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eminsights/mention-radar/backend/internal/metrics"
	"github.com/eminsights/mention-radar/backend/internal/models"
)

// Publisher hands a run request off for asynchronous execution. The
// dispatcher never waits on the run itself.
type Publisher interface {
	Publish(ctx context.Context, req models.RunRequest) error
}

type brandLister interface {
	ActiveBrands(ctx context.Context) ([]models.Brand, error)
}

// Dispatcher owns one recurring timer per cadence bucket. On each tick it
// selects the running groups of active brands whose cadence matches the
// bucket and publishes a run request for each, best-effort: selection or
// publish failures are logged and dropped, never retried.
type Dispatcher struct {
	store         brandLister
	pub           Publisher
	log           *slog.Logger
	selectTimeout time.Duration
	now           func() time.Time
}

// New wires a dispatcher. selectTimeout bounds one tick's brand load plus
// publishes so a stalled store cannot wedge a bucket.
func New(store brandLister, pub Publisher, log *slog.Logger, selectTimeout time.Duration) *Dispatcher {
	if selectTimeout <= 0 {
		selectTimeout = 30 * time.Second
	}
	return &Dispatcher{
		store:         store,
		pub:           pub,
		log:           log,
		selectTimeout: selectTimeout,
		now:           time.Now,
	}
}

// Run starts one ticker goroutine per cadence bucket and blocks until the
// context is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, bucket := range models.Cadences() {
		wg.Add(1)
		go func(bucket models.Cadence) {
			defer wg.Done()

			ticker := time.NewTicker(bucket.Period())
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					d.tick(ctx, bucket)
				}
			}
		}(bucket)
	}
	wg.Wait()
}

// tick selects and publishes one bucket's due groups.
func (d *Dispatcher) tick(ctx context.Context, bucket models.Cadence) {
	tctx, cancel := context.WithTimeout(ctx, d.selectTimeout)
	defer cancel()

	brands, err := d.store.ActiveBrands(tctx)
	if err != nil {
		d.log.Warn("load active brands failed, skipping tick",
			slog.String("bucket", string(bucket)),
			slog.Any("err", err),
		)
		return
	}

	selected, unknown := selectGroups(brands, bucket)
	for _, g := range unknown {
		d.log.Warn("group cadence matches no bucket, group will never be scheduled",
			slog.String("brand", g.BrandName),
			slog.String("group", g.GroupID),
			slog.String("cadence", g.Cadence),
		)
	}

	now := d.now().UTC()
	for _, sel := range selected {
		req := models.RunRequest{
			BrandName:  sel.BrandName,
			GroupID:    sel.GroupID,
			EnqueuedAt: now,
		}
		if err := d.pub.Publish(tctx, req); err != nil {
			d.log.Warn("publish run request failed",
				slog.String("brand", sel.BrandName),
				slog.String("group", sel.GroupID),
				slog.Any("err", err),
			)
			continue
		}
		metrics.DispatchedRuns.WithLabelValues(string(bucket)).Inc()
	}

	if len(selected) > 0 {
		d.log.Info("bucket tick dispatched",
			slog.String("bucket", string(bucket)),
			slog.Int("selected", len(selected)),
		)
	}
}

// Selection is one (brand, group) pair due for a run.
type Selection struct {
	BrandName string
	GroupID   string
}

// UnknownCadence flags a group whose stored cadence is not a bucket.
type UnknownCadence struct {
	BrandName string
	GroupID   string
	Cadence   string
}

// selectGroups picks every running group of the given brands whose cadence
// equals the bucket. Brands are assumed pre-filtered to active. Groups
// with a cadence outside the bucket table are reported separately so the
// dispatcher can surface the misconfiguration.
func selectGroups(brands []models.Brand, bucket models.Cadence) ([]Selection, []UnknownCadence) {
	var selected []Selection
	var unknown []UnknownCadence

	for _, brand := range brands {
		for _, group := range brand.KeywordGroups {
			if !group.Cadence.Valid() {
				unknown = append(unknown, UnknownCadence{
					BrandName: brand.BrandName,
					GroupID:   group.ID,
					Cadence:   string(group.Cadence),
				})
				continue
			}
			if group.Cadence != bucket || group.Status != models.StatusRunning {
				continue
			}
			selected = append(selected, Selection{
				BrandName: brand.BrandName,
				GroupID:   group.ID,
			})
		}
	}

	return selected, unknown
}
