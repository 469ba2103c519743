// Package features reads the per-student aggregates the downstream model is
// trained on from the Gold warehouse.
package features

import (
	"context"
	"database/sql"

	"github.com/ajitpratap0/scholar/pkg/errors"
)

// StudentFeatures is the feature vector of one student. Aggregates with no
// underlying rows are zero.
type StudentFeatures struct {
	StudentID            string  `json:"student_id"`
	TotalAttendanceHours float64 `json:"total_attendance_hours"`
	TotalDaysPresent     int64   `json:"total_days_present"`
	CoursesAttended      int64   `json:"courses_attended"`
	TotalPaid            float64 `json:"total_paid"`
	PaymentCount         int64   `json:"payment_count"`
	AvgPayment           float64 `json:"avg_payment"`
	AvgGrade             float64 `json:"avg_grade"`
	GradeCount           int64   `json:"grade_count"`
}

// CompletedStatus is the payment status counted towards payment features.
const CompletedStatus = "Completed"

const (
	studentsQuery = "SELECT `student_key` FROM `dim_student` ORDER BY `student_key`"

	attendanceQuery = "SELECT `student_key`, COALESCE(SUM(`total_hours`), 0), COALESCE(SUM(`days_present`), 0), " +
		"COUNT(DISTINCT `course_key`) FROM `fact_attendance` GROUP BY `student_key`"

	// Every payment takes part; only completed ones contribute an amount, so
	// the average counts pending and failed payments as zero.
	paymentQuery = "SELECT `student_key`, " +
		"COALESCE(SUM(CASE WHEN `status` = ? THEN `amount` ELSE 0 END), 0), " +
		"COUNT(CASE WHEN `status` = ? THEN 1 END), " +
		"COALESCE(AVG(CASE WHEN `status` = ? THEN `amount` ELSE 0 END), 0) " +
		"FROM `fact_payment` GROUP BY `student_key`"

	gradeQuery = "SELECT `student_key`, COALESCE(AVG(`grade`), 0), COUNT(*) FROM `fact_grade` GROUP BY `student_key`"
)

// Store is a read-only view over the warehouse.
type Store struct {
	db *sql.DB
}

// NewStore returns a store reading from db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// All returns features for every student in dim_student, ordered by id.
func (s *Store) All(ctx context.Context) ([]StudentFeatures, error) {
	var ids []string
	err := s.query(ctx, studentsQuery, nil, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	agg, err := s.aggregates(ctx)
	if err != nil {
		return nil, err
	}
	return Merge(ids, agg), nil
}

// ForStudent returns the features of one student. An unknown id is
// ErrorTypeNotFound.
func (s *Store) ForStudent(ctx context.Context, id string) (StudentFeatures, error) {
	all, err := s.All(ctx)
	if err != nil {
		return StudentFeatures{}, err
	}
	for _, f := range all {
		if f.StudentID == id {
			return f, nil
		}
	}
	return StudentFeatures{}, errors.Newf(errors.ErrorTypeNotFound, "student %s not found", id).
		WithDetail("student_id", id)
}

// Aggregates holds the partial aggregates keyed by student id.
type Aggregates struct {
	Attendance map[string]StudentFeatures
	Payments   map[string]StudentFeatures
	Grades     map[string]StudentFeatures
}

func (s *Store) aggregates(ctx context.Context) (Aggregates, error) {
	agg := Aggregates{
		Attendance: map[string]StudentFeatures{},
		Payments:   map[string]StudentFeatures{},
		Grades:     map[string]StudentFeatures{},
	}

	err := s.query(ctx, attendanceQuery, nil, func(rows *sql.Rows) error {
		var f StudentFeatures
		if err := rows.Scan(&f.StudentID, &f.TotalAttendanceHours, &f.TotalDaysPresent, &f.CoursesAttended); err != nil {
			return err
		}
		agg.Attendance[f.StudentID] = f
		return nil
	})
	if err != nil {
		return agg, err
	}

	err = s.query(ctx, paymentQuery, []interface{}{CompletedStatus, CompletedStatus, CompletedStatus}, func(rows *sql.Rows) error {
		var f StudentFeatures
		if err := rows.Scan(&f.StudentID, &f.TotalPaid, &f.PaymentCount, &f.AvgPayment); err != nil {
			return err
		}
		agg.Payments[f.StudentID] = f
		return nil
	})
	if err != nil {
		return agg, err
	}

	err = s.query(ctx, gradeQuery, nil, func(rows *sql.Rows) error {
		var f StudentFeatures
		if err := rows.Scan(&f.StudentID, &f.AvgGrade, &f.GradeCount); err != nil {
			return err
		}
		agg.Grades[f.StudentID] = f
		return nil
	})
	return agg, err
}

func (s *Store) query(ctx context.Context, q string, args []interface{}, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQueryFailed, "feature query failed")
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQueryFailed, "scan feature row")
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQueryFailed, "feature query failed")
	}
	return nil
}

// Merge joins the aggregates onto ids. Students missing from an aggregate get
// zeros for its features.
func Merge(ids []string, agg Aggregates) []StudentFeatures {
	out := make([]StudentFeatures, 0, len(ids))
	for _, id := range ids {
		f := StudentFeatures{StudentID: id}
		if a, ok := agg.Attendance[id]; ok {
			f.TotalAttendanceHours = a.TotalAttendanceHours
			f.TotalDaysPresent = a.TotalDaysPresent
			f.CoursesAttended = a.CoursesAttended
		}
		if p, ok := agg.Payments[id]; ok {
			f.TotalPaid = p.TotalPaid
			f.PaymentCount = p.PaymentCount
			f.AvgPayment = p.AvgPayment
		}
		if g, ok := agg.Grades[id]; ok {
			f.AvgGrade = g.AvgGrade
			f.GradeCount = g.GradeCount
		}
		out = append(out, f)
	}
	return out
}
