package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"moxie/internal/db"
	"moxie/internal/logging"
	"moxie/internal/metrics"
	"moxie/internal/report"
)

// JobPayload represents the incoming job from the Redis queue.
type JobPayload struct {
	UploadID string `json:"upload_id"`
}

// UploadSource loads stored uploads and records permanent failures.
type UploadSource interface {
	Get(ctx context.Context, id uuid.UUID) (*db.Upload, error)
	MarkFailed(ctx context.Context, id uuid.UUID, kind, message string) error
}

// ReportStore persists report rows.
type ReportStore interface {
	WriteAll(ctx context.Context, rs db.RowSet) error
}

// ResultCache keeps the rendered JSON for fast reads.
type ResultCache interface {
	Put(ctx context.Context, uploadID uuid.UUID, reportJSON []byte) error
}

// ViewRefresher refreshes derived views once rows are written.
type ViewRefresher interface {
	Refresh(ctx context.Context) error
}

// ReportProcessor handles report jobs.
type ReportProcessor struct {
	ctx       context.Context
	builder   *report.Builder
	uploads   UploadSource
	store     ReportStore
	cache     ResultCache
	refresher ViewRefresher
	metrics   *metrics.Manager
	now       func() time.Time
}

// NewReportProcessor creates a new report processor. cache and refresher may be nil.
func NewReportProcessor(
	ctx context.Context,
	builder *report.Builder,
	uploads UploadSource,
	store ReportStore,
	cache ResultCache,
	refresher ViewRefresher,
	m *metrics.Manager,
) *ReportProcessor {
	return &ReportProcessor{
		ctx:       ctx,
		builder:   builder,
		uploads:   uploads,
		store:     store,
		cache:     cache,
		refresher: refresher,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes a single report job from the queue. Errors are returned
// only for failures worth retrying; a bad upload is recorded and acknowledged.
func (p *ReportProcessor) Handle(payload []byte) error {
	logger := logging.Component("processor")
	startTime := time.Now()

	var job JobPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("unmarshal job payload: %w", err)
	}

	uploadID, err := uuid.Parse(job.UploadID)
	if err != nil {
		return fmt.Errorf("parse upload_id: %w", err)
	}

	logger.Infof("processing report job for upload %s", uploadID)

	upload, err := p.uploads.Get(p.ctx, uploadID)
	if errors.Is(err, db.ErrUploadNotFound) {
		logger.Warnf("upload %s not found, skipping", uploadID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get upload: %w", err)
	}
	p.metrics.ObserveUpload(len(upload.Data))

	rep, sum, err := p.builder.BuildWithSummary(upload.Data)
	if err != nil {
		if !report.IsInputError(err) {
			p.metrics.ObserveReport(report.Kind(err), time.Since(startTime))
			return fmt.Errorf("build report: %w", err)
		}
		kind := report.Kind(err)
		logger.Warnf("upload %s (%s) rejected: %s: %v", uploadID, upload.FileName, kind, err)
		if err := p.uploads.MarkFailed(p.ctx, uploadID, kind, err.Error()); err != nil {
			return err
		}
		p.metrics.ObserveReport(kind, time.Since(startTime))
		return nil
	}

	logger.Infof("reduced upload %s: %d events, subject %#x, %d casts, %d buffed skills, %d unresolved starts",
		uploadID, sum.Events, sum.Subject, sum.Casts, sum.BuffSkills, sum.PendingStarts)

	rows := db.BuildRows(uploadID, sum.Subject, rep, p.now())
	if err := p.store.WriteAll(p.ctx, rows); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if p.cache != nil {
		reportJSON, err := json.Marshal(rep)
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if err := p.cache.Put(p.ctx, uploadID, reportJSON); err != nil {
			// Rows are committed; `moxie show` rebuilds from Postgres on a miss.
			logger.Warnf("cache report %s: %v", uploadID, err)
		}
	}

	if p.refresher != nil {
		if err := p.refresher.Refresh(p.ctx); err != nil {
			logger.Warnf("view refresh failed after upload %s: %v", uploadID, err)
			p.metrics.IncViewRefreshFailure()
		}
	}

	elapsed := time.Since(startTime)
	p.metrics.AddTimeline(len(rows.Casts), len(rows.BuffEvents), sum.PendingStarts)
	p.metrics.ObserveReport(report.Kind(nil), elapsed)
	logger.Infof("report job completed for upload %s in %v", uploadID, elapsed)

	return nil
}
