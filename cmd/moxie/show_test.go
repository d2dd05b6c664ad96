package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moxie/internal/cache"
	"moxie/internal/db"
	"moxie/internal/report"
	"moxie/internal/timeline"
)

type fakeStatuses map[uuid.UUID]*db.UploadStatus

func (f fakeStatuses) GetStatus(_ context.Context, id uuid.UUID) (*db.UploadStatus, error) {
	st, ok := f[id]
	if !ok {
		return nil, db.ErrUploadNotFound
	}
	return st, nil
}

type fakeReports struct {
	reports map[uuid.UUID]*report.Report
	loads   int
}

func (f *fakeReports) Load(_ context.Context, id uuid.UUID) (*report.Report, error) {
	f.loads++
	rep, ok := f.reports[id]
	if !ok {
		return nil, db.ErrReportNotFound
	}
	return rep, nil
}

func newShowCache(t *testing.T) (*cache.ReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewReportCache(client, time.Hour), mr
}

func storedReport() *report.Report {
	return &report.Report{
		Start:  100,
		End:    150,
		Skills: map[uint32]string{10: "Fireball"},
		Casts:  []timeline.SkillCast{{ID: 10, Start: 100, End: 150, Fired: true}},
		Buffs:  map[uint32][]timeline.BuffEvent{740: {timeline.Remove(120), timeline.Apply(120)}},
	}
}

func TestShowReport_CacheHit(t *testing.T) {
	rc, _ := newShowCache(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, rc.Put(ctx, id, []byte(`{"start":1}`)))
	reports := &fakeReports{}

	var stdout, stderr bytes.Buffer
	require.NoError(t, showReport(ctx, id, rc, fakeStatuses{}, reports, &stdout, &stderr))
	assert.Equal(t, "{\"start\":1}\n", stdout.String())
	assert.Zero(t, reports.loads)
}

func TestShowReport_MissRebuildsFromPostgres(t *testing.T) {
	rc, mr := newShowCache(t)
	ctx := context.Background()
	id := uuid.New()
	reports := &fakeReports{reports: map[uuid.UUID]*report.Report{id: storedReport()}}
	statuses := fakeStatuses{id: {Status: db.StatusDone}}

	var stdout, stderr bytes.Buffer
	require.NoError(t, showReport(ctx, id, rc, statuses, reports, &stdout, &stderr))

	var got report.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, storedReport(), &got)
	assert.Equal(t, 1, reports.loads)

	// The rebuilt JSON is cached again.
	assert.True(t, mr.Exists(cache.Key(id)))
	stdout.Reset()
	require.NoError(t, showReport(ctx, id, rc, statuses, reports, &stdout, &stderr))
	assert.Equal(t, 1, reports.loads)
}

func TestShowReport_FailedUploadShowsKind(t *testing.T) {
	rc, _ := newShowCache(t)
	id := uuid.New()
	statuses := fakeStatuses{id: {
		Status:         db.StatusFailed,
		FailureKind:    "decode",
		FailureMessage: "decode encounter record: bad magic",
	}}

	var stdout, stderr bytes.Buffer
	err := showReport(context.Background(), id, rc, statuses, &fakeReports{}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed: decode: decode encounter record: bad magic")
	assert.Empty(t, stdout.String())
}

func TestShowReport_PendingAndUnknownUploads(t *testing.T) {
	rc, _ := newShowCache(t)
	pending := uuid.New()
	statuses := fakeStatuses{pending: {Status: db.StatusPending}}

	var stdout, stderr bytes.Buffer
	err := showReport(context.Background(), pending, rc, statuses, &fakeReports{}, &stdout, &stderr)
	assert.ErrorContains(t, err, "not been processed yet")

	err = showReport(context.Background(), uuid.New(), rc, statuses, &fakeReports{}, &stdout, &stderr)
	assert.ErrorIs(t, err, db.ErrUploadNotFound)
}

func TestShowReport_DoneWithoutRows(t *testing.T) {
	rc, _ := newShowCache(t)
	id := uuid.New()

	var stdout, stderr bytes.Buffer
	err := showReport(context.Background(), id, rc, fakeStatuses{id: {Status: db.StatusDone}}, &fakeReports{}, &stdout, &stderr)
	assert.ErrorIs(t, err, db.ErrReportNotFound)
}
