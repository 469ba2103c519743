package warehouse

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/scholar/internal/calendar"
	"github.com/ajitpratap0/scholar/internal/conform"
	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/errors"
)

type execCall struct {
	query string
	args  []interface{}
}

type fakeExecer struct {
	calls  []execCall
	failOn string
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return nil, stderrors.New("boom")
	}
	return driverResult(0), nil
}

type driverResult int64

func (r driverResult) LastInsertId() (int64, error) { return 0, nil }
func (r driverResult) RowsAffected() (int64, error) { return int64(r), nil }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func table(name string, rows ...core.Row) *core.Table {
	return &core.Table{Name: name, Rows: rows}
}

func testDays(t *testing.T) []calendar.Day {
	t.Helper()
	days, err := calendar.Generate(day(2023, 1, 1), day(2025, 12, 31))
	require.NoError(t, err)
	return days
}

func testLookup() *SemesterLookup {
	return NewSemesterLookup(config.SemesterConfig{
		Fallback: 1,
		Terms: []config.SemesterTerm{
			{Key: 1, Name: "Fall 2023", AcademicYear: "2023-2024"},
			{Key: 2, Name: "Spring 2024", AcademicYear: "2023-2024"},
			{Key: 3, Name: "Fall 2024", AcademicYear: "2024-2025"},
			{Key: 4, Name: "Spring 2025", AcademicYear: "2024-2025"},
		},
	})
}

func silverFixture() core.Tables {
	return core.Tables{
		conform.Student: table(conform.Student,
			core.Row{"student_id": "S002", "first_name": "Ben", "last_name": "Ode", "email": "ben@uni.edu", "admission_date": time.Time{}},
			core.Row{"student_id": "S001", "first_name": "Ann", "last_name": "Lee", "email": "ann@uni.edu", "admission_date": day(2023, 9, 1)},
		),
		conform.Course: table(conform.Course,
			core.Row{"course_code": "CS101", "course_name": "Intro", "credits": int64(3), "department": "CS"},
		),
		conform.Enrollment: table(conform.Enrollment,
			core.Row{"enrollment_id": "E1", "student_id": "S001", "course_code": "CS101", "enrollment_date": day(2024, 3, 1), "status": "Active", "semester": "Spring 2024"},
			core.Row{"enrollment_id": "E2", "student_id": "S001", "course_code": "CS101", "enrollment_date": "not-a-date", "status": "Active", "semester": "Spring 2024"},
			core.Row{"enrollment_id": "E3", "student_id": "S002", "course_code": "CS101", "enrollment_date": "2024-03-01", "status": "Dropped", "semester": "Unknown Term"},
			core.Row{"enrollment_id": "E4", "student_id": "S999", "course_code": "CS101", "enrollment_date": day(2024, 3, 1), "status": "Active", "semester": "Fall 2024"},
		),
		conform.Attendance: table(conform.Attendance,
			core.Row{"attendance_id": "A1", "student_id": "S001", "course_code": "CS101", "attendance_date": day(2024, 3, 1), "status": "Present", "hours_attended": 1.0},
			core.Row{"attendance_id": "A2", "student_id": "S001", "course_code": "CS101", "attendance_date": day(2024, 3, 1), "status": "present", "hours_attended": 1.5},
			core.Row{"attendance_id": "A3", "student_id": "S001", "course_code": "CS101", "attendance_date": day(2024, 3, 1), "status": "Absent", "hours_attended": 0.0},
			core.Row{"attendance_id": "A4", "student_id": "S002", "course_code": "CS101", "attendance_date": day(2024, 3, 2), "status": "Absent", "hours_attended": 0.0},
			core.Row{"attendance_id": "A5", "student_id": "S002", "course_code": "CS999", "attendance_date": day(2024, 3, 2), "status": "Present", "hours_attended": 2.0},
			core.Row{"attendance_id": "A6", "student_id": "S002", "course_code": "CS101", "attendance_date": day(2030, 1, 1), "status": "Present", "hours_attended": 2.0},
		),
		conform.Payment: table(conform.Payment,
			core.Row{"payment_id": "P1", "student_id": "S001", "payment_date": day(2024, 1, 15), "amount": 1200.5, "payment_method": "Card", "status": "Completed", "semester": "Spring 2024"},
			core.Row{"payment_id": "P2", "student_id": "S002", "payment_date": time.Time{}, "amount": 10.0, "payment_method": "Cash", "status": "Completed", "semester": "Spring 2024"},
		),
		conform.Grade: table(conform.Grade,
			core.Row{"grade_id": "G1", "student_id": "S001", "course_code": "CS101", "grade": 91.5, "letter_grade": "A", "semester": "Spring 2024", "exam_date": day(2024, 5, 10)},
		),
	}
}

func plan(t *testing.T) *Model {
	t.Helper()
	m, err := NewBuilder(testLookup()).Plan(silverFixture(), testDays(t))
	require.NoError(t, err)
	return m
}

func TestPlanDropsUnresolvableDates(t *testing.T) {
	m := plan(t)

	enroll, ok := m.Table(TableFactEnrollment)
	require.True(t, ok)
	ids := make([]string, 0, len(enroll.Rows))
	for _, r := range enroll.Rows {
		ids = append(ids, r[0].(string))
	}
	assert.Equal(t, []string{"E1", "E3"}, ids)
	assert.Equal(t, "20240301", enroll.Rows[0][3])
	assert.Equal(t, "20240301", enroll.Rows[1][3], "string dates resolve too")

	assert.Equal(t, 1, m.Dropped(TableFactEnrollment, ReasonUnresolvedDate))
	assert.Equal(t, 1, m.Dropped(TableFactEnrollment, ReasonUnknownStudent))
	assert.Equal(t, 1, m.Dropped(TableFactPayment, ReasonUnresolvedDate))
	assert.Equal(t, 1, m.Dropped(TableFactAttendance, ReasonUnresolvedDate), "outside the horizon")
	assert.Equal(t, 1, m.Dropped(TableFactAttendance, ReasonUnknownCourse))
}

func TestPlanAggregatesAttendance(t *testing.T) {
	m := plan(t)

	att, ok := m.Table(TableFactAttendance)
	require.True(t, ok)
	require.Len(t, att.Rows, 2)
	assert.Equal(t, []interface{}{"S001", "CS101", "20240301", 2.5, 1}, att.Rows[0])
	assert.Equal(t, []interface{}{"S002", "CS101", "20240302", 0.0, 0}, att.Rows[1])
}

func TestPlanSemesterFallback(t *testing.T) {
	m := plan(t)

	enroll, _ := m.Table(TableFactEnrollment)
	assert.Equal(t, 2, enroll.Rows[0][4], "Spring 2024")
	assert.Equal(t, 1, enroll.Rows[1][4], "Unknown Term uses the fallback")
	assert.Equal(t, 1, m.UnmappedSemesters)

	sem, _ := m.Table(TableDimSemester)
	assert.Len(t, sem.Rows, 4)
}

func TestPlanReferentialCompleteness(t *testing.T) {
	m := plan(t)

	keys := map[string]map[interface{}]bool{}
	for _, td := range m.Dimensions {
		set := map[interface{}]bool{}
		for _, r := range td.Rows {
			set[r[0]] = true
		}
		keys[td.Def.Name] = set
	}

	for _, td := range m.Facts {
		cols := td.Def.InsertColumns()
		for _, fk := range td.Def.ForeignKeys {
			pos := -1
			for i, c := range cols {
				if c == fk.Column {
					pos = i
				}
			}
			require.GreaterOrEqual(t, pos, 0)
			for _, r := range td.Rows {
				assert.True(t, keys[fk.RefTable][r[pos]], "%s.%s=%v missing from %s", td.Def.Name, fk.Column, r[pos], fk.RefTable)
			}
		}
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	days := testDays(t)
	b := NewBuilder(testLookup())

	first, err := b.Plan(silverFixture(), days)
	require.NoError(t, err)
	second, err := b.Plan(silverFixture(), days)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	students, _ := first.Table(TableDimStudent)
	assert.Equal(t, "S001", students.Rows[0][0], "dimensions are ordered by key")
	assert.Nil(t, students.Rows[1][6], "null admission date")
}

func TestPlanRequiresEveryEntity(t *testing.T) {
	silver := silverFixture()
	delete(silver, conform.Grade)

	_, err := NewBuilder(testLookup()).Plan(silver, testDays(t))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaMismatch))
}

func TestApplyRebuildOrder(t *testing.T) {
	m := plan(t)
	db := &fakeExecer{}

	loaded, err := NewLoader(db, config.ModeRebuild, 1000).Apply(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 1096, loaded[TableDimTime])
	assert.Equal(t, 2, loaded[TableFactAttendance])

	var order []string
	for _, c := range db.calls {
		fields := strings.Fields(c.query)
		switch fields[0] {
		case "DROP":
			order = append(order, "drop "+strings.Trim(fields[4], "`"))
		case "CREATE":
			order = append(order, "create "+strings.Trim(fields[2], "`"))
		case "INSERT":
			name := "insert " + strings.Trim(fields[2], "`")
			if order[len(order)-1] != name {
				order = append(order, name)
			}
		}
	}

	assert.Equal(t, []string{
		"drop fact_enrollment", "drop fact_attendance", "drop fact_payment", "drop fact_grade",
		"drop dim_student", "drop dim_course", "drop dim_time", "drop dim_semester",
		"create dim_student", "create dim_course", "create dim_time", "create dim_semester",
		"insert dim_student", "insert dim_course", "insert dim_time", "insert dim_semester",
		"create fact_enrollment", "create fact_attendance", "create fact_payment", "create fact_grade",
		"insert fact_enrollment", "insert fact_attendance", "insert fact_payment", "insert fact_grade",
	}, order)
}

func TestApplyChunksInserts(t *testing.T) {
	m := &Model{Dimensions: []TableData{dimTime(testDays(t))}}
	db := &fakeExecer{}

	_, err := NewLoader(db, config.ModeRebuild, 500).Apply(context.Background(), m)
	require.NoError(t, err)

	var sizes []int
	for _, c := range db.calls {
		if strings.HasPrefix(c.query, "INSERT") {
			sizes = append(sizes, len(c.args)/len(DimTime.InsertColumns()))
		}
	}
	assert.Equal(t, []int{500, 500, 96}, sizes)
}

func TestApplyFailureNamesTable(t *testing.T) {
	m := plan(t)
	db := &fakeExecer{failOn: "INSERT INTO `fact_payment`"}

	loaded, err := NewLoader(db, config.ModeRebuild, 1000).Apply(context.Background(), m)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistFailure))
	assert.Contains(t, err.Error(), "fact_payment")
	assert.Contains(t, loaded, TableFactAttendance, "earlier tables stay loaded")
	assert.NotContains(t, loaded, TableFactGrade)
}

func TestApplyMergeMode(t *testing.T) {
	m := plan(t)
	db := &fakeExecer{}

	_, err := NewLoader(db, config.ModeMerge, 1000).Apply(context.Background(), m)
	require.NoError(t, err)

	for _, c := range db.calls {
		assert.False(t, strings.HasPrefix(c.query, "DROP"), c.query)
		if strings.HasPrefix(c.query, "CREATE") {
			assert.Contains(t, c.query, "IF NOT EXISTS")
		}
		if strings.HasPrefix(c.query, "INSERT") {
			assert.Contains(t, c.query, "ON DUPLICATE KEY UPDATE")
		}
	}
}

func TestInsertStatement(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO `dim_semester` (`semester_key`, `semester_name`, `academic_year`) VALUES (?, ?, ?), (?, ?, ?)",
		InsertStatement(DimSemester, 2, false))

	assert.Equal(t,
		"INSERT INTO `fact_attendance` (`student_key`, `course_key`, `date_key`, `total_hours`, `days_present`) VALUES (?, ?, ?, ?, ?)"+
			" ON DUPLICATE KEY UPDATE `total_hours` = VALUES(`total_hours`), `days_present` = VALUES(`days_present`)",
		InsertStatement(FactAttendance, 1, true))
}

func TestCreateStatementIndexesForeignKeys(t *testing.T) {
	ddl := FactPayment.CreateStatement(false)

	assert.True(t, strings.HasPrefix(ddl, "CREATE TABLE `fact_payment` ("))
	assert.Contains(t, ddl, "PRIMARY KEY (`payment_id`)")
	for _, col := range []string{"student_key", "date_key", "semester_key"} {
		assert.Contains(t, ddl, "INDEX `idx_"+col+"` (`"+col+"`)")
		assert.Contains(t, ddl, "FOREIGN KEY (`"+col+"`)")
	}
	assert.Contains(t, ddl, "INDEX `idx_status` (`status`)")

	att := FactAttendance.CreateStatement(true)
	assert.Contains(t, att, "CREATE TABLE IF NOT EXISTS `fact_attendance`")
	assert.Contains(t, att, "`attendance_key` BIGINT NOT NULL AUTO_INCREMENT")
	assert.Contains(t, att, "UNIQUE KEY `uq_student_course_date` (`student_key`, `course_key`, `date_key`)")
	assert.NotContains(t, att, "INDEX `idx_student_key`", "covered by the unique key")
	assert.Contains(t, att, "INDEX `idx_course_key`")

	assert.Equal(t, "DROP TABLE IF EXISTS `dim_time`", DimTime.DropStatement())
}

func TestEnsureDatabase(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, EnsureDatabase(context.Background(), db, "student_analytics_dw"))
	require.Len(t, db.calls, 1)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS `student_analytics_dw` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", db.calls[0].query)

	err := EnsureDatabase(context.Background(), &fakeExecer{failOn: "CREATE"}, "x")
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistFailure))
}

func TestSemesterLookup(t *testing.T) {
	l := testLookup()

	tests := []struct {
		label  string
		want   int
		mapped bool
	}{
		{"Fall 2023", 1, true},
		{"  spring   2025 ", 4, true},
		{"Unknown Term", 1, false},
		{"", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			k, ok := l.Key(tt.label)
			assert.Equal(t, tt.want, k)
			assert.Equal(t, tt.mapped, ok)
		})
	}
}
