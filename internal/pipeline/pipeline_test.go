package pipeline

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/scholar/internal/runlog"
	"github.com/ajitpratap0/scholar/internal/warehouse"
	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/errors"
	"github.com/ajitpratap0/scholar/pkg/snapshot"
	"github.com/ajitpratap0/scholar/pkg/source"
	"github.com/ajitpratap0/scholar/pkg/storage"
	scholartest "github.com/ajitpratap0/scholar/pkg/testutil"
)

var (
	studentCols    = []string{"student_id", "first_name", "last_name", "email", "phone", "date_of_birth", "gender", "nationality", "admission_date"}
	courseCols     = []string{"course_code", "course_name", "credits", "department"}
	enrollmentCols = []string{"enrollment_id", "student_id", "course_code", "enrollment_date", "status", "semester"}
	attendanceCols = []string{"attendance_id", "student_id", "course_code", "attendance_date", "status", "hours_attended"}
	paymentCols    = []string{"payment_id", "student_id", "payment_date", "amount", "payment_method", "status", "semester"}
	gradeCols      = []string{"grade_id", "student_id", "course_code", "grade", "letter_grade", "semester", "exam_date"}
)

func fixtureTables() core.Tables {
	tables := core.Tables{}
	for _, t := range []*core.Table{
		scholartest.TextTable("students_db1", studentCols,
			[]string{"S001", "Ann", "Lee", " Ann@Uni.EDU ", "555", "2001-02-03", "F", "NZ", "2023-09-01"},
			[]string{"S002", "Ben", "Ode", "ben@uni.edu", "", "", "M", "KE", "2023-09-01"}),
		scholartest.TextTable("students_db2", studentCols,
			[]string{"S001", "Annie", "Lee", "annie@lms.edu", "", "", "F", "NZ", ""},
			[]string{"S003", "Cy", "Ng", "cy@lms.edu", "", "", "M", "SG", "2024-01-10"}),
		scholartest.TextTable("courses_db1", courseCols, []string{"CS101", "Intro", "3", "CS"}),
		scholartest.TextTable("courses_db2", courseCols, []string{"MA201", "Algebra", "4", "Math"}),
		scholartest.TextTable("enrollments_db1", enrollmentCols,
			[]string{"E1", "S001", "CS101", "2024-03-01", "Active", "Spring 2024"},
			[]string{"E2", "S003", "MA201", "not-a-date", "Active", "Spring 2024"}),
		scholartest.TextTable("attendance_db2", attendanceCols,
			[]string{"A1", "S001", "CS101", "2024-03-01", "Present", "1.0"},
			[]string{"A2", "S001", "CS101", "2024-03-01", "Present", "1.5"},
			[]string{"A3", "S001", "CS101", "2024-03-01", "Absent", "0.0"}),
		scholartest.TextTable("payments", paymentCols,
			[]string{"P1", "S002", "2024-01-15", "500.00", "Card", "Completed", "Unknown Term"}),
		scholartest.TextTable("grades", gradeCols,
			[]string{"G1", "S001", "CS101", "91.5", "A", "Spring 2024", "2024-05-10"}),
	} {
		tables.Put(t)
	}
	return tables
}

type fakeReader struct {
	tables core.Tables
}

func (r *fakeReader) Read(_ context.Context, d source.Directive) (*core.Table, error) {
	t, ok := r.tables[d.Name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeQueryFailed, "table %s does not exist", d.Name)
	}
	return &core.Table{Name: t.Name, Schema: t.Schema, Rows: t.Rows}, nil
}

func (r *fakeReader) Close() error { return nil }

type fakeDB struct {
	mu      sync.Mutex
	queries []string
	args    [][]interface{}
}

func (f *fakeDB) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	return nil, nil
}

func (f *fakeDB) count(prefix string) int {
	n := 0
	for _, q := range f.queries {
		if strings.HasPrefix(q, prefix) {
			n++
		}
	}
	return n
}

type harness struct {
	cfg    *config.Config
	store  *storage.LocalStore
	dw     *fakeDB
	log    *fakeDB
	tables core.Tables
	now    time.Time
	opened []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	scholartest.UseTestLogger(t)
	cfg := scholartest.TestConfig(t)
	store, err := storage.NewLocalStore(cfg.Storage.Root)
	require.NoError(t, err)
	return &harness{
		cfg:    cfg,
		store:  store,
		dw:     &fakeDB{},
		log:    &fakeDB{},
		tables: fixtureTables(),
		now:    time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC),
	}
}

func (h *harness) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := New(h.cfg, Dependencies{
		OpenSource: func(_ context.Context, src config.SourceConfig) (source.Reader, error) {
			h.opened = append(h.opened, src.Name)
			return &fakeReader{tables: h.tables}, nil
		},
		Stager:    snapshot.NewStager(h.store, h.cfg.Storage.Compression),
		Warehouse: h.dw,
		RunLog:    runlog.NewRepository(h.log),
		Now:       func() time.Time { return h.now },
		NewRunID:  func() string { return "run-" + h.now.Format("150405") },
	})
	require.NoError(t, err)
	return r
}

func TestRunEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := scholartest.TestContext(t)
	defer cancel()

	res, err := h.runner(t).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"registrar", "lms", "payments", "grades"}, h.opened)
	assert.Equal(t, 2, res.Extracted["students_db1"])
	assert.Len(t, res.Bronze, 8)
	assert.Len(t, res.Silver, 6)
	assert.Equal(t, 1096, res.Days)

	assert.Equal(t, map[string]int{
		warehouse.TableDimStudent:     3,
		warehouse.TableDimCourse:      2,
		warehouse.TableDimTime:        1096,
		warehouse.TableDimSemester:    4,
		warehouse.TableFactEnrollment: 1,
		warehouse.TableFactAttendance: 1,
		warehouse.TableFactPayment:    1,
		warehouse.TableFactGrade:      1,
	}, res.Loaded)
	assert.Equal(t, []warehouse.Drop{{Table: warehouse.TableFactEnrollment, Reason: warehouse.ReasonUnresolvedDate, Count: 1}}, res.Dropped)

	keys, err := h.store.List(ctx, "bronze/")
	require.NoError(t, err)
	assert.Len(t, keys, 8)
	assert.Contains(t, keys, "bronze/students_db1_20240601_020000.parquet")
	keys, err = h.store.List(ctx, "silver/")
	require.NoError(t, err)
	assert.Len(t, keys, 6)

	assert.Equal(t, 8, h.dw.count("DROP TABLE"))
	assert.Equal(t, 8, h.dw.count("CREATE TABLE"))

	require.Len(t, h.log.queries, 3)
	assert.Equal(t, "run-020000", h.log.args[1][0])
	assert.Equal(t, runlog.StatusSuccess, h.log.args[2][1])
}

func TestRunMetrics(t *testing.T) {
	h := newHarness(t)
	r := h.runner(t)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	m := r.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LastRunSuccess))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsExtracted.WithLabelValues("students_db2")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsConformed.WithLabelValues("student")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsDropped.WithLabelValues("student", "duplicate_key")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsDropped.WithLabelValues("fact_enrollment", "unresolved_date")))
	assert.Equal(t, 1096.0, testutil.ToFloat64(m.RowsLoaded.WithLabelValues("dim_time")))
}

func TestRunSourceUnavailable(t *testing.T) {
	h := newHarness(t)
	r, err := New(h.cfg, Dependencies{
		OpenSource: func(_ context.Context, src config.SourceConfig) (source.Reader, error) {
			if src.Name == "lms" {
				return nil, errors.New(errors.ErrorTypeSourceUnavailable, "connection refused")
			}
			return &fakeReader{tables: h.tables}, nil
		},
		Stager:    snapshot.NewStager(h.store, "snappy"),
		Warehouse: h.dw,
		RunLog:    runlog.NewRepository(h.log),
	})
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)

	stage, ok := errors.FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, errors.StageExtract, stage)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceUnavailable))
	assert.Contains(t, err.Error(), "stage extract failed")

	assert.Empty(t, h.dw.queries, "nothing reaches the warehouse")
	assert.Equal(t, 0.0, testutil.ToFloat64(r.Metrics().LastRunSuccess))
	require.Len(t, h.log.queries, 3)
	assert.Equal(t, runlog.StatusFailed, h.log.args[2][1])
	assert.Equal(t, "extract", h.log.args[2][2])
}

func TestRunSchemaMismatch(t *testing.T) {
	h := newHarness(t)
	h.tables.Put(scholartest.TextTable("students_db2", []string{"student_id", "first_name"}, []string{"S009", "Zed"}))

	_, err := h.runner(t).Run(context.Background())
	require.Error(t, err)

	stage, _ := errors.FailedStage(err)
	assert.Equal(t, errors.StageConform, stage)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaMismatch))
	assert.Empty(t, h.dw.queries)
}

func TestRunNeverOverwritesBronze(t *testing.T) {
	h := newHarness(t)
	r := h.runner(t)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	stage, _ := errors.FailedStage(err)
	assert.Equal(t, errors.StageStage, stage)
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistFailure))
}

func TestReplayUsesLatestBronze(t *testing.T) {
	h := newHarness(t)
	first, err := h.runner(t).Run(context.Background())
	require.NoError(t, err)

	h.now = h.now.Add(time.Hour)
	h.opened = nil
	h.dw.queries = nil

	res, err := h.runner(t).Replay(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Replay)
	assert.Empty(t, h.opened, "replay reads no source")
	assert.Equal(t, first.Loaded, res.Loaded, "same bronze, same gold")
	assert.Len(t, res.Bronze, 8)
	assert.Equal(t, h.now.Add(-time.Hour), res.Bronze[0].TakenAt)

	keys, err := h.store.List(context.Background(), "silver/")
	require.NoError(t, err)
	assert.Len(t, keys, 12, "replay writes new silver snapshots")
}

func TestReplaySkipsPartiallyStagedRun(t *testing.T) {
	h := newHarness(t)
	first, err := h.runner(t).Run(context.Background())
	require.NoError(t, err)

	// A later run staged one table and then died.
	stager := snapshot.NewStager(h.store, h.cfg.Storage.Compression)
	_, err = stager.Stage(context.Background(), snapshot.Bronze, h.tables["grades"], h.now.Add(30*time.Minute))
	require.NoError(t, err)

	h.now = h.now.Add(time.Hour)
	res, err := h.runner(t).Replay(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Bronze, 8)
	for _, snap := range res.Bronze {
		assert.True(t, snap.TakenAt.Equal(first.StartedAt), snap.Key)
	}
	assert.Equal(t, first.Loaded, res.Loaded)
}

func TestReplayWithoutBronze(t *testing.T) {
	h := newHarness(t)

	_, err := h.runner(t).Replay(context.Background())
	require.Error(t, err)
	stage, _ := errors.FailedStage(err)
	assert.Equal(t, errors.StageExtract, stage)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := config.Default()
	_, err := New(cfg, Dependencies{Warehouse: &fakeDB{}})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = New(nil, Dependencies{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
