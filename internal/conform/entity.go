package conform

import (
	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/core"
)

// ColumnType is the semantic type of a conformed column.
type ColumnType string

const (
	// Text columns keep their value; nulls become "".
	Text ColumnType = "text"
	// Key columns are identifiers; surrounding whitespace is trimmed.
	Key ColumnType = "key"
	// Identity columns are trimmed and lower-cased (email).
	Identity ColumnType = "identity"
	// Number columns are coerced to float; failures and nulls become 0.
	Number ColumnType = "number"
	// Integer columns are coerced to whole numbers; failures and nulls become 0.
	Integer ColumnType = "integer"
	// Date columns are parsed tolerantly; failures become the null date.
	Date ColumnType = "date"
)

// fieldType is the Silver storage type of a column type.
func (t ColumnType) fieldType() core.FieldType {
	switch t {
	case Number:
		return core.FieldTypeFloat
	case Integer:
		return core.FieldTypeInt
	case Date:
		return core.FieldTypeDate
	default:
		return core.FieldTypeString
	}
}

// ColumnSpec declares one column projected into Silver.
type ColumnSpec struct {
	Name string
	Type ColumnType
}

// EntitySpec describes how one Silver entity is built from raw snapshots.
type EntitySpec struct {
	Name string
	// NaturalKey is unique in the output; the first row seen wins.
	NaturalKey string
	// Sources are raw snapshot names in precedence order.
	Sources []string
	Columns []ColumnSpec
}

// Schema returns the Silver schema of the entity.
func (e EntitySpec) Schema() *core.Schema {
	fields := make([]core.Field, len(e.Columns))
	for i, c := range e.Columns {
		fields[i] = core.Field{Name: c.Name, Type: c.Type.fieldType(), Primary: c.Name == e.NaturalKey}
	}
	return core.NewSchema(e.Name, fields...)
}

// Entity names.
const (
	Student    = "student"
	Course     = "course"
	Enrollment = "enrollment"
	Attendance = "attendance"
	Payment    = "payment"
	Grade      = "grade"
)

// DefaultEntities returns the six entity specs with the configured precedence.
func DefaultEntities(cfg config.ConformConfig) []EntitySpec {
	return []EntitySpec{
		{
			Name:       Student,
			NaturalKey: "student_id",
			Sources:    append([]string(nil), cfg.StudentPrecedence...),
			Columns: []ColumnSpec{
				{"student_id", Key},
				{"first_name", Text},
				{"last_name", Text},
				{"email", Identity},
				{"phone", Text},
				{"date_of_birth", Date},
				{"gender", Text},
				{"nationality", Text},
				{"admission_date", Date},
			},
		},
		{
			Name:       Course,
			NaturalKey: "course_code",
			Sources:    append([]string(nil), cfg.CoursePrecedence...),
			Columns: []ColumnSpec{
				{"course_code", Key},
				{"course_name", Text},
				{"credits", Integer},
				{"department", Text},
			},
		},
		{
			Name:       Enrollment,
			NaturalKey: "enrollment_id",
			Sources:    []string{"enrollments_db1"},
			Columns: []ColumnSpec{
				{"enrollment_id", Key},
				{"student_id", Key},
				{"course_code", Key},
				{"enrollment_date", Date},
				{"status", Text},
				{"semester", Text},
			},
		},
		{
			Name:       Attendance,
			NaturalKey: "attendance_id",
			Sources:    []string{"attendance_db2"},
			Columns: []ColumnSpec{
				{"attendance_id", Key},
				{"student_id", Key},
				{"course_code", Key},
				{"attendance_date", Date},
				{"status", Text},
				{"hours_attended", Number},
			},
		},
		{
			Name:       Payment,
			NaturalKey: "payment_id",
			Sources:    []string{"payments"},
			Columns: []ColumnSpec{
				{"payment_id", Key},
				{"student_id", Key},
				{"payment_date", Date},
				{"amount", Number},
				{"payment_method", Text},
				{"status", Text},
				{"semester", Text},
			},
		},
		{
			Name:       Grade,
			NaturalKey: "grade_id",
			Sources:    []string{"grades"},
			Columns: []ColumnSpec{
				{"grade_id", Key},
				{"student_id", Key},
				{"course_code", Key},
				{"grade", Number},
				{"letter_grade", Text},
				{"semester", Text},
				{"exam_date", Date},
			},
		},
	}
}
