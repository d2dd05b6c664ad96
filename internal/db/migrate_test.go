package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"migrations/001_uploads.sql",
		"migrations/002_reports.sql",
		"migrations/003_report_views.sql",
	}, names)

	for _, name := range names {
		body, err := fs.ReadFile(migrations, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestMigrations_CoverWrittenTables(t *testing.T) {
	var schema strings.Builder
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	for _, name := range names {
		body, err := fs.ReadFile(migrations, name)
		require.NoError(t, err)
		schema.Write(body)
	}

	for _, table := range []string{"uploads", "encounters", "encounter_skills", "skill_casts", "buff_events"} {
		assert.Contains(t, schema.String(), "CREATE TABLE "+table+" (", table)
	}
	for _, view := range ReportViews {
		assert.Contains(t, schema.String(), "CREATE MATERIALIZED VIEW "+view+" AS", view)
		assert.Contains(t, schema.String(), "CREATE UNIQUE INDEX idx_"+view+" ON "+view, view)
	}
}
