package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moxie/internal/logging"
)

// ReportViews lists the materialized views derived from report tables, base views first.
var ReportViews = []string{
	"mv_skill_cast_stats",
	"mv_buff_event_counts",
}

// ViewRefresher refreshes materialized views after reports are written.
type ViewRefresher struct {
	pool  *pgxpool.Pool
	views []string
}

// NewViewRefresher creates a refresher for views. Nil views means ReportViews.
func NewViewRefresher(pool *pgxpool.Pool, views []string) *ViewRefresher {
	if views == nil {
		views = ReportViews
	}
	return &ViewRefresher{pool: pool, views: views}
}

// Refresh refreshes every view concurrently with readers. A failing view is
// logged and skipped; an error is returned only if nothing refreshed.
func (r *ViewRefresher) Refresh(ctx context.Context) error {
	logger := logging.Logger()
	startTime := time.Now()
	refreshed := 0

	for _, view := range r.views {
		if err := r.refreshView(ctx, view); err != nil {
			logger.Warnf("failed to refresh view %s: %v", view, err)
			continue
		}
		refreshed++
	}

	logger.Debugf("view refresh completed: %d/%d succeeded in %v", refreshed, len(r.views), time.Since(startTime))

	if refreshed == 0 && len(r.views) > 0 {
		return fmt.Errorf("all %d view refreshes failed", len(r.views))
	}
	return nil
}

func (r *ViewRefresher) refreshView(ctx context.Context, view string) error {
	query := "REFRESH MATERIALIZED VIEW CONCURRENTLY " + pgx.Identifier{view}.Sanitize()
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("refresh %s: %w", view, err)
	}
	return nil
}
