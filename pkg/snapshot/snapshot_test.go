package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/errors"
	"github.com/ajitpratap0/scholar/pkg/storage"
)

func newStager(t *testing.T) *Stager {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return NewStager(store, "snappy")
}

func gradesTable(ids ...string) *core.Table {
	table := core.NewTable("grades", core.NewSchema("grades",
		core.Field{Name: "grade_id", Type: core.FieldTypeString},
		core.Field{Name: "grade", Type: core.FieldTypeString},
	))
	for _, id := range ids {
		table.Append(core.Row{"grade_id": id, "grade": "91.5"})
	}
	return table
}

func TestKeyAndParseKey(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
	key := Key(Bronze, "students_db1", at)
	assert.Equal(t, "bronze/students_db1_20240301_101500.parquet", key)

	snap, ok := ParseKey(key)
	require.True(t, ok)
	assert.Equal(t, Bronze, snap.Layer)
	assert.Equal(t, "students_db1", snap.Name)
	assert.True(t, snap.TakenAt.Equal(at))

	for _, bad := range []string{
		"bronze/students_db1.parquet",
		"bronze/students_db1_2024_101500.parquet",
		"bronze/students_db1_20240301_101500.csv",
	} {
		_, ok := ParseKey(bad)
		assert.False(t, ok, bad)
	}
}

func TestStageNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	stager := newStager(t)
	at := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)

	snap, err := stager.Stage(ctx, Bronze, gradesTable("G1", "G2"), at)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Rows)

	_, err = stager.Stage(ctx, Bronze, gradesTable("G3"), at)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistFailure))

	loaded, err := stager.Load(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	assert.Equal(t, "G1", loaded.Rows[0]["grade_id"])
	assert.Equal(t, "91.5", loaded.Rows[0]["grade"])
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	stager := newStager(t)
	first := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	_, err := stager.Stage(ctx, Bronze, gradesTable("G1"), first)
	require.NoError(t, err)
	_, err = stager.Stage(ctx, Bronze, gradesTable("G1", "G2"), second)
	require.NoError(t, err)

	snap, err := stager.Latest(ctx, Bronze, "grades")
	require.NoError(t, err)
	assert.True(t, snap.TakenAt.Equal(second))

	loaded, err := stager.Load(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())

	_, err = stager.Latest(ctx, Silver, "grades")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func coursesTable(codes ...string) *core.Table {
	table := core.NewTable("courses_db1", core.NewSchema("courses_db1",
		core.Field{Name: "course_code", Type: core.FieldTypeString},
	))
	for _, c := range codes {
		table.Append(core.Row{"course_code": c})
	}
	return table
}

func TestLatestRunSkipsPartialRuns(t *testing.T) {
	ctx := context.Background()
	stager := newStager(t)
	complete := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	partial := complete.Add(24 * time.Hour)

	_, err := stager.Stage(ctx, Bronze, gradesTable("G1"), complete)
	require.NoError(t, err)
	_, err = stager.Stage(ctx, Bronze, coursesTable("CS101"), complete)
	require.NoError(t, err)
	// The next run staged grades and then stopped.
	_, err = stager.Stage(ctx, Bronze, gradesTable("G1", "G2"), partial)
	require.NoError(t, err)

	snaps, err := stager.LatestRun(ctx, Bronze, []string{"grades", "courses_db1"})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "grades", snaps[0].Name)
	assert.Equal(t, "courses_db1", snaps[1].Name)
	for _, snap := range snaps {
		assert.True(t, snap.TakenAt.Equal(complete), snap.Key)
	}

	_, err = stager.Stage(ctx, Bronze, coursesTable("CS101", "CS102"), partial)
	require.NoError(t, err)
	snaps, err = stager.LatestRun(ctx, Bronze, []string{"grades", "courses_db1"})
	require.NoError(t, err)
	assert.True(t, snaps[0].TakenAt.Equal(partial))
	assert.True(t, snaps[1].TakenAt.Equal(partial))
}

func TestLatestRunWithoutCompleteRun(t *testing.T) {
	ctx := context.Background()
	stager := newStager(t)
	_, err := stager.Stage(ctx, Bronze, gradesTable("G1"), time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = stager.LatestRun(ctx, Bronze, []string{"grades", "courses_db1"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
