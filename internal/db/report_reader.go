package db

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moxie/internal/report"
	"moxie/internal/timeline"
)

// ErrReportNotFound is returned when no encounter row exists for an upload.
var ErrReportNotFound = errors.New("report not found")

// ReportReader loads persisted reports.
type ReportReader struct {
	pool *pgxpool.Pool
}

// NewReportReader creates a new report reader.
func NewReportReader(pool *pgxpool.Pool) *ReportReader {
	return &ReportReader{pool: pool}
}

// Load reads every row written for an upload and rebuilds its report.
func (r *ReportReader) Load(ctx context.Context, uploadID uuid.UUID) (*report.Report, error) {
	var rs RowSet

	e := &rs.Encounter
	err := r.pool.QueryRow(ctx, `
		SELECT upload_id, subject_agent, start_time, end_time, cast_count, created_at
		FROM encounters
		WHERE upload_id = $1
	`, uploadID).Scan(&e.UploadID, &e.SubjectAgent, &e.StartTime, &e.EndTime, &e.CastCount, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get encounter: %w", err)
	}

	if rs.Skills, err = r.readSkills(ctx, uploadID); err != nil {
		return nil, fmt.Errorf("read skills: %w", err)
	}
	if rs.Casts, err = r.readCasts(ctx, uploadID); err != nil {
		return nil, fmt.Errorf("read casts: %w", err)
	}
	if rs.BuffEvents, err = r.readBuffEvents(ctx, uploadID); err != nil {
		return nil, fmt.Errorf("read buff events: %w", err)
	}

	return RebuildReport(rs), nil
}

func (r *ReportReader) readSkills(ctx context.Context, uploadID uuid.UUID) ([]SkillRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT upload_id, skill_id, name
		FROM encounter_skills
		WHERE upload_id = $1
	`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SkillRow
	for rows.Next() {
		var s SkillRow
		if err := rows.Scan(&s.UploadID, &s.SkillID, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ReportReader) readCasts(ctx context.Context, uploadID uuid.UUID) ([]CastRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, upload_id, seq, skill_id, start_time, end_time, fired, created_at
		FROM skill_casts
		WHERE upload_id = $1
		ORDER BY seq
	`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CastRow
	for rows.Next() {
		var c CastRow
		if err := rows.Scan(&c.ID, &c.UploadID, &c.Seq, &c.SkillID, &c.StartTime, &c.EndTime, &c.Fired, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ReportReader) readBuffEvents(ctx context.Context, uploadID uuid.UUID) ([]BuffEventRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, upload_id, skill_id, seq, kind, event_time, created_at
		FROM buff_events
		WHERE upload_id = $1
		ORDER BY skill_id, seq
	`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BuffEventRow
	for rows.Next() {
		var b BuffEventRow
		if err := rows.Scan(&b.ID, &b.UploadID, &b.SkillID, &b.Seq, &b.Kind, &b.EventTime, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RebuildReport is the inverse of BuildRows. Casts follow Seq and each buff
// sequence follows its own Seq, whatever order the rows arrive in.
func RebuildReport(rs RowSet) *report.Report {
	rep := &report.Report{
		Start:  uint64(rs.Encounter.StartTime),
		End:    uint64(rs.Encounter.EndTime),
		Skills: make(map[uint32]string, len(rs.Skills)),
		Casts:  make([]timeline.SkillCast, 0, len(rs.Casts)),
		Buffs:  make(map[uint32][]timeline.BuffEvent),
	}

	for _, s := range rs.Skills {
		rep.Skills[uint32(s.SkillID)] = s.Name
	}

	casts := slices.Clone(rs.Casts)
	slices.SortStableFunc(casts, func(a, b CastRow) int { return cmp.Compare(a.Seq, b.Seq) })
	for _, c := range casts {
		rep.Casts = append(rep.Casts, timeline.SkillCast{
			ID:    uint32(c.SkillID),
			Start: uint64(c.StartTime),
			End:   uint64(c.EndTime),
			Fired: c.Fired,
		})
	}

	buffs := slices.Clone(rs.BuffEvents)
	slices.SortStableFunc(buffs, func(a, b BuffEventRow) int {
		if c := cmp.Compare(a.SkillID, b.SkillID); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	for _, b := range buffs {
		id := uint32(b.SkillID)
		ev := timeline.Apply(uint64(b.EventTime))
		if b.Kind == buffKindRemove {
			ev = timeline.Remove(uint64(b.EventTime))
		}
		rep.Buffs[id] = append(rep.Buffs[id], ev)
	}

	return rep
}
