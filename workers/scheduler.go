// Package workers runs the background maintenance of an instance.
package workers

import (
	"context"
	"time"

	"github.com/davecheney/wiki/models"
)

// Scheduler runs the periodic tasks of an instance until it is stopped.
type Scheduler struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartScheduler runs the periodic tasks once, then every interval on a
// separate goroutine. Sent activities older than retention are removed.
func StartScheduler(ctx context.Context, env *models.Env, interval, retention time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	RunOnce(ctx, env, retention)
	go func() {
		defer close(s.done)
		env.Log().Info("scheduler started", "interval", interval, "retention", retention)
		defer env.Log().Info("scheduler stopped")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				RunOnce(ctx, env, retention)
			}
		}
	}()
	return s
}

// Stop cancels the scheduler and waits for it to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.done
}

// RunOnce runs each task. A failed task is logged and does not prevent the
// others from running.
func RunOnce(ctx context.Context, env *models.Env, retention time.Duration) {
	now := time.Now()
	db := env.DB.WithContext(ctx)

	stats, err := models.NewStats(db).Refresh(now)
	if err != nil {
		env.Log().Error("refresh stats", "error", err)
	} else {
		env.Log().Debug("refreshed stats", "users", stats.Users, "articles", stats.Articles, "comments", stats.Comments)
	}

	n, err := models.NewSentActivities(db).DeleteBefore(now.Add(-retention))
	if err != nil {
		env.Log().Error("purge sent activities", "error", err)
		return
	}
	if n > 0 {
		env.Log().Info("purged sent activities", "count", n, "before", now.Add(-retention))
	}
}
