package db

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moxie/internal/report"
	"moxie/internal/timeline"
)

// EncounterRow mirrors the encounters table.
type EncounterRow struct {
	UploadID     uuid.UUID
	SubjectAgent int64 // agent address, stored as its bit pattern
	StartTime    int64
	EndTime      int64
	CastCount    int
	CreatedAt    time.Time
}

// SkillRow mirrors the encounter_skills table.
type SkillRow struct {
	UploadID uuid.UUID
	SkillID  int64
	Name     string
}

// CastRow mirrors the skill_casts table. Seq keeps the reducer's emission order.
type CastRow struct {
	ID        uuid.UUID
	UploadID  uuid.UUID
	Seq       int
	SkillID   int64
	StartTime int64
	EndTime   int64
	Fired     bool
	CreatedAt time.Time
}

// Values of buff_events.kind.
const (
	buffKindApply  = "apply"
	buffKindRemove = "remove"
)

// BuffEventRow mirrors the buff_events table. Seq is the position within the skill's sequence.
type BuffEventRow struct {
	ID        uuid.UUID
	UploadID  uuid.UUID
	SkillID   int64
	Seq       int
	Kind      string // "apply" or "remove"
	EventTime int64
	CreatedAt time.Time
}

// RowSet is everything written for one report.
type RowSet struct {
	Encounter  EncounterRow
	Skills     []SkillRow
	Casts      []CastRow
	BuffEvents []BuffEventRow
}

// BuildRows flattens a report into table rows. Skills and buff sequences are
// emitted in ascending skill id so repeated writes produce identical tables.
func BuildRows(uploadID uuid.UUID, subject uint64, rep *report.Report, now time.Time) RowSet {
	rs := RowSet{
		Encounter: EncounterRow{
			UploadID:     uploadID,
			SubjectAgent: int64(subject),
			StartTime:    int64(rep.Start),
			EndTime:      int64(rep.End),
			CastCount:    len(rep.Casts),
			CreatedAt:    now,
		},
	}

	skillIDs := make([]uint32, 0, len(rep.Skills))
	for id := range rep.Skills {
		skillIDs = append(skillIDs, id)
	}
	slices.Sort(skillIDs)
	for _, id := range skillIDs {
		rs.Skills = append(rs.Skills, SkillRow{UploadID: uploadID, SkillID: int64(id), Name: rep.Skills[id]})
	}

	for i, c := range rep.Casts {
		rs.Casts = append(rs.Casts, CastRow{
			ID:        uuid.New(),
			UploadID:  uploadID,
			Seq:       i,
			SkillID:   int64(c.ID),
			StartTime: int64(c.Start),
			EndTime:   int64(c.End),
			Fired:     c.Fired,
			CreatedAt: now,
		})
	}

	buffIDs := make([]uint32, 0, len(rep.Buffs))
	for id := range rep.Buffs {
		buffIDs = append(buffIDs, id)
	}
	slices.Sort(buffIDs)
	for _, id := range buffIDs {
		for i, ev := range rep.Buffs[id] {
			kind := buffKindApply
			if ev.Kind == timeline.BuffRemove {
				kind = buffKindRemove
			}
			rs.BuffEvents = append(rs.BuffEvents, BuffEventRow{
				ID:        uuid.New(),
				UploadID:  uploadID,
				SkillID:   int64(id),
				Seq:       i,
				Kind:      kind,
				EventTime: int64(ev.Time),
				CreatedAt: now,
			})
		}
	}

	return rs
}

// ReportWriter handles writing report rows to the database.
type ReportWriter struct {
	pool *pgxpool.Pool
}

// NewReportWriter creates a new report writer.
func NewReportWriter(pool *pgxpool.Pool) *ReportWriter {
	return &ReportWriter{pool: pool}
}

// WriteAll inserts all rows for one upload within a single transaction.
// An advisory lock on the upload id serialises concurrent jobs for the same upload,
// and existing rows are purged first so retries are idempotent.
func (w *ReportWriter) WriteAll(ctx context.Context, rs RowSet) error {
	uploadID := rs.Encounter.UploadID

	tx, err := w.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(uploadID)); err != nil {
		return fmt.Errorf("acquire upload lock: %w", err)
	}

	if err := purgeReport(ctx, tx, uploadID); err != nil {
		return fmt.Errorf("purge report: %w", err)
	}

	e := rs.Encounter
	if _, err := tx.Exec(ctx, `
		INSERT INTO encounters (upload_id, subject_agent, start_time, end_time, cast_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.UploadID, e.SubjectAgent, e.StartTime, e.EndTime, e.CastCount, e.CreatedAt); err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}

	if err := insertSkills(ctx, tx, rs.Skills); err != nil {
		return fmt.Errorf("insert skills: %w", err)
	}

	if err := insertCasts(ctx, tx, rs.Casts); err != nil {
		return fmt.Errorf("insert casts: %w", err)
	}

	if err := insertBuffEvents(ctx, tx, rs.BuffEvents); err != nil {
		return fmt.Errorf("insert buff events: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE uploads
		SET status = $2, failure_kind = NULL, failure_message = NULL, processed_at = $3
		WHERE id = $1
	`, uploadID, StatusDone, e.CreatedAt); err != nil {
		return fmt.Errorf("mark upload done: %w", err)
	}

	return tx.Commit(ctx)
}

// advisoryLockKey generates a stable int64 key from a UUID for pg_advisory_lock.
func advisoryLockKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(id[:])
	return int64(binary.BigEndian.Uint64(h.Sum(nil)[:8]))
}

// purgeReport deletes existing rows for an upload, children first.
func purgeReport(ctx context.Context, tx pgx.Tx, uploadID uuid.UUID) error {
	for _, table := range []string{"buff_events", "skill_casts", "encounter_skills", "encounters"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE upload_id = $1`, uploadID); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}
	return nil
}

// insertSkills inserts the skill name lookup using COPY protocol.
func insertSkills(ctx context.Context, tx pgx.Tx, rows []SkillRow) error {
	if len(rows) == 0 {
		return nil
	}

	_, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"encounter_skills"},
		[]string{"upload_id", "skill_id", "name"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.UploadID, r.SkillID, r.Name}, nil
		}),
	)
	return err
}

// insertCasts inserts skill casts using COPY protocol.
func insertCasts(ctx context.Context, tx pgx.Tx, rows []CastRow) error {
	if len(rows) == 0 {
		return nil
	}

	columns := []string{
		"id", "upload_id", "seq", "skill_id", "start_time", "end_time", "fired", "created_at",
	}

	_, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"skill_casts"},
		columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				r.ID, r.UploadID, r.Seq, r.SkillID, r.StartTime, r.EndTime, r.Fired, r.CreatedAt,
			}, nil
		}),
	)
	return err
}

// insertBuffEvents inserts buff events using COPY protocol.
func insertBuffEvents(ctx context.Context, tx pgx.Tx, rows []BuffEventRow) error {
	if len(rows) == 0 {
		return nil
	}

	columns := []string{
		"id", "upload_id", "skill_id", "seq", "kind", "event_time", "created_at",
	}

	_, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"buff_events"},
		columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				r.ID, r.UploadID, r.SkillID, r.Seq, r.Kind, r.EventTime, r.CreatedAt,
			}, nil
		}),
	)
	return err
}
