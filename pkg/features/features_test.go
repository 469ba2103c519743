package features

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/scholar/pkg/errors"
)

// cannedDriver answers queries with fixed result sets chosen by the table the
// query reads.
type cannedDriver struct {
	results map[string][][]driver.Value

	mu    sync.Mutex
	calls []cannedCall
}

type cannedCall struct {
	query string
	args  []driver.Value
}

func (d *cannedDriver) record(query string, args []driver.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, cannedCall{query: query, args: append([]driver.Value(nil), args...)})
}

// callFor returns the last recorded query reading table.
func (d *cannedDriver) callFor(table string) (cannedCall, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.calls) - 1; i >= 0; i-- {
		if strings.Contains(d.calls[i].query, "FROM `"+table+"`") {
			return d.calls[i], true
		}
	}
	return cannedCall{}, false
}

func (d *cannedDriver) Open(string) (driver.Conn, error) { return &cannedConn{d: d}, nil }

type cannedConn struct{ d *cannedDriver }

func (c *cannedConn) Prepare(query string) (driver.Stmt, error) {
	return &cannedStmt{c: c, query: query}, nil
}
func (c *cannedConn) Close() error              { return nil }
func (c *cannedConn) Begin() (driver.Tx, error) { return nil, io.ErrUnexpectedEOF }

type cannedStmt struct {
	c     *cannedConn
	query string
}

func (s *cannedStmt) Close() error  { return nil }
func (s *cannedStmt) NumInput() int { return -1 }
func (s *cannedStmt) Exec([]driver.Value) (driver.Result, error) {
	return driver.RowsAffected(0), nil
}

func (s *cannedStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.c.d.record(s.query, args)
	for table, rows := range s.c.d.results {
		if strings.Contains(s.query, "FROM `"+table+"`") {
			return &cannedRows{rows: rows}, nil
		}
	}
	return nil, io.ErrUnexpectedEOF
}

type cannedRows struct {
	rows [][]driver.Value
	pos  int
}

func (r *cannedRows) Columns() []string {
	if len(r.rows) == 0 {
		return []string{"c0"}
	}
	cols := make([]string, len(r.rows[0]))
	for i := range cols {
		cols[i] = "c" + string(rune('0'+i))
	}
	return cols
}

func (r *cannedRows) Close() error { return nil }

func (r *cannedRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

var registerOnce sync.Once

var fixture = &cannedDriver{results: map[string][][]driver.Value{
	"dim_student": {{"S001"}, {"S002"}, {"S003"}},
	"fact_attendance": {
		{"S001", 12.5, int64(6), int64(2)},
		{"S003", 1.0, int64(0), int64(1)},
	},
	// S001: Completed 1500, Completed 1500, Pending 1000.
	"fact_payment": {{"S001", 3000.0, int64(2), 1000.0}},
	"fact_grade":   {{"S001", 88.25, int64(4)}, {"S002", 70.0, int64(1)}},
}}

func openStore(t *testing.T) *Store {
	t.Helper()
	registerOnce.Do(func() { sql.Register("canned", fixture) })
	db, err := sql.Open("canned", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestAll(t *testing.T) {
	all, err := openStore(t).All(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []StudentFeatures{
		{StudentID: "S001", TotalAttendanceHours: 12.5, TotalDaysPresent: 6, CoursesAttended: 2,
			TotalPaid: 3000, PaymentCount: 2, AvgPayment: 1000, AvgGrade: 88.25, GradeCount: 4},
		{StudentID: "S002", AvgGrade: 70, GradeCount: 1},
		{StudentID: "S003", TotalAttendanceHours: 1, CoursesAttended: 1},
	}, all)
}

func TestForStudent(t *testing.T) {
	store := openStore(t)

	f, err := store.ForStudent(context.Background(), "S002")
	require.NoError(t, err)
	assert.Equal(t, StudentFeatures{StudentID: "S002", AvgGrade: 70, GradeCount: 1}, f)

	_, err = store.ForStudent(context.Background(), "S404")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestMergeZeroFills(t *testing.T) {
	got := Merge([]string{"A", "B"}, Aggregates{
		Payments: map[string]StudentFeatures{"B": {StudentID: "B", TotalPaid: 10, PaymentCount: 1, AvgPayment: 10}},
	})
	assert.Equal(t, []StudentFeatures{
		{StudentID: "A"},
		{StudentID: "B", TotalPaid: 10, PaymentCount: 1, AvgPayment: 10},
	}, got)
}

func TestPaymentAggregatesSpanEveryPayment(t *testing.T) {
	_, err := openStore(t).All(context.Background())
	require.NoError(t, err)

	call, ok := fixture.callFor("fact_payment")
	require.True(t, ok)

	assert.NotContains(t, call.query, "WHERE")
	assert.Equal(t, 3, strings.Count(call.query, "CASE WHEN `status` = ?"))
	assert.Contains(t, call.query, "AVG(CASE WHEN `status` = ? THEN `amount` ELSE 0 END)")
	assert.Equal(t, []driver.Value{CompletedStatus, CompletedStatus, CompletedStatus}, call.args)
}
