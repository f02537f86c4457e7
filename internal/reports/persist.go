package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/jmerrifield20/civicsync/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// persist writes both collections and the id counter. The writes run in
// parallel and each is retried; persist only succeeds when all of them do.
func (r *Repository) persist(ctx context.Context) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.Lock()
	all := cloneAll(r.all)
	mine := cloneAll(r.mine)
	next := r.nextID
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.retry(gctx, KeyAllReports, all) })
	g.Go(func() error { return r.retry(gctx, KeyMyReports, mine) })
	g.Go(func() error { return r.retry(gctx, KeyNextID, next) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

func (r *Repository) retry(ctx context.Context, key string, value any) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err = r.cache.Put(ctx, key, value); err == nil {
			return nil
		}
		r.logger.Warn("cache write failed",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == r.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
	return err
}

func cloneAll(in []model.Report) []model.Report {
	out := make([]model.Report, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
