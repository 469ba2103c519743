package warehouse

import (
	"strings"

	"github.com/ajitpratap0/scholar/pkg/sqlbuilder"
)

// ColumnDef is one column of a Gold table. Constraint is appended to the
// type verbatim (for example "NOT NULL AUTO_INCREMENT").
type ColumnDef struct {
	Name       string
	Type       string
	Constraint string
}

// autoIncrement reports whether the database assigns the column.
func (c ColumnDef) autoIncrement() bool {
	return strings.Contains(strings.ToUpper(c.Constraint), "AUTO_INCREMENT")
}

// ForeignKey references a dimension key.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Index is a named, ordered column list.
type Index struct {
	Name    string
	Columns []string
}

// TableDef is the typed definition of a Gold table. It is the only source of
// DDL.
type TableDef struct {
	Name        string
	Columns     []ColumnDef
	PrimaryKey  []string
	ForeignKeys []ForeignKey
	Indexes     []Index
	Uniques     []Index
	// BusinessKey identifies a row across runs in merge mode. It defaults to
	// the primary key.
	BusinessKey []string
}

// InsertColumns returns the columns a load supplies, in definition order.
func (t TableDef) InsertColumns() []string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !c.autoIncrement() {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// Key returns the business key of the table.
func (t TableDef) Key() []string {
	if len(t.BusinessKey) > 0 {
		return t.BusinessKey
	}
	return t.PrimaryKey
}

// indexes returns the declared indexes plus one for every foreign key column
// not already leading an index, unique key or the primary key.
func (t TableDef) indexes() []Index {
	leads := make(map[string]bool)
	if len(t.PrimaryKey) > 0 {
		leads[t.PrimaryKey[0]] = true
	}
	for _, idx := range append(append([]Index{}, t.Indexes...), t.Uniques...) {
		if len(idx.Columns) > 0 {
			leads[idx.Columns[0]] = true
		}
	}
	out := append([]Index{}, t.Indexes...)
	for _, fk := range t.ForeignKeys {
		if leads[fk.Column] {
			continue
		}
		leads[fk.Column] = true
		out = append(out, Index{Name: "idx_" + fk.Column, Columns: []string{fk.Column}})
	}
	return out
}

// CreateStatement renders the MySQL CREATE TABLE statement. ifNotExists is
// used in merge mode.
func (t TableDef) CreateStatement(ifNotExists bool) string {
	return sqlbuilder.Build(sqlbuilder.MySQL, func(sb *sqlbuilder.Builder) {
		sb.WriteQuery("CREATE TABLE ")
		if ifNotExists {
			sb.WriteQuery("IF NOT EXISTS ")
		}
		sb.WriteIdentifier(t.Name).WriteQuery(" (\n")

		var parts []string
		for _, c := range t.Columns {
			def := sqlbuilder.QuoteIdentifier(sqlbuilder.MySQL, c.Name) + " " + c.Type
			if c.Constraint != "" {
				def += " " + c.Constraint
			}
			parts = append(parts, def)
		}
		if len(t.PrimaryKey) > 0 {
			parts = append(parts, "PRIMARY KEY ("+quoteList(t.PrimaryKey)+")")
		}
		for _, u := range t.Uniques {
			parts = append(parts, "UNIQUE KEY "+sqlbuilder.QuoteIdentifier(sqlbuilder.MySQL, u.Name)+" ("+quoteList(u.Columns)+")")
		}
		for _, idx := range t.indexes() {
			parts = append(parts, "INDEX "+sqlbuilder.QuoteIdentifier(sqlbuilder.MySQL, idx.Name)+" ("+quoteList(idx.Columns)+")")
		}
		for _, fk := range t.ForeignKeys {
			parts = append(parts, "CONSTRAINT "+sqlbuilder.QuoteIdentifier(sqlbuilder.MySQL, "fk_"+t.Name+"_"+fk.Column)+
				" FOREIGN KEY ("+sqlbuilder.QuoteIdentifier(sqlbuilder.MySQL, fk.Column)+") REFERENCES "+
				sqlbuilder.QuoteIdentifier(sqlbuilder.MySQL, fk.RefTable)+" ("+sqlbuilder.QuoteIdentifier(sqlbuilder.MySQL, fk.RefColumn)+")")
		}

		sb.WriteQuery("  ").WriteQuery(strings.Join(parts, ",\n  "))
		sb.WriteQuery("\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci")
	})
}

// DropStatement renders DROP TABLE IF EXISTS.
func (t TableDef) DropStatement() string {
	return sqlbuilder.Build(sqlbuilder.MySQL, func(sb *sqlbuilder.Builder) {
		sb.WriteQuery("DROP TABLE IF EXISTS ").WriteIdentifier(t.Name)
	})
}

func quoteList(names []string) string {
	return sqlbuilder.Build(sqlbuilder.MySQL, func(sb *sqlbuilder.Builder) {
		sb.WriteIdentifiers(names)
	})
}

// Gold table names.
const (
	TableDimStudent     = "dim_student"
	TableDimCourse      = "dim_course"
	TableDimTime        = "dim_time"
	TableDimSemester    = "dim_semester"
	TableFactEnrollment = "fact_enrollment"
	TableFactAttendance = "fact_attendance"
	TableFactPayment    = "fact_payment"
	TableFactGrade      = "fact_grade"
)

var (
	studentFK  = ForeignKey{Column: "student_key", RefTable: TableDimStudent, RefColumn: "student_key"}
	courseFK   = ForeignKey{Column: "course_key", RefTable: TableDimCourse, RefColumn: "course_key"}
	dateFK     = ForeignKey{Column: "date_key", RefTable: TableDimTime, RefColumn: "date_key"}
	semesterFK = ForeignKey{Column: "semester_key", RefTable: TableDimSemester, RefColumn: "semester_key"}
)

// DimStudent and the remaining definitions describe the Gold star schema.
var (
	DimStudent = TableDef{
		Name: TableDimStudent,
		Columns: []ColumnDef{
			{"student_key", "VARCHAR(20)", "NOT NULL"},
			{"first_name", "VARCHAR(50)", ""},
			{"last_name", "VARCHAR(50)", ""},
			{"email", "VARCHAR(100)", ""},
			{"gender", "VARCHAR(10)", ""},
			{"nationality", "VARCHAR(50)", ""},
			{"admission_date", "DATE", ""},
		},
		PrimaryKey: []string{"student_key"},
		Indexes: []Index{
			{Name: "idx_name", Columns: []string{"last_name", "first_name"}},
			{Name: "idx_email", Columns: []string{"email"}},
		},
	}

	DimCourse = TableDef{
		Name: TableDimCourse,
		Columns: []ColumnDef{
			{"course_key", "VARCHAR(20)", "NOT NULL"},
			{"course_name", "VARCHAR(100)", ""},
			{"credits", "INT", ""},
			{"department", "VARCHAR(50)", ""},
		},
		PrimaryKey: []string{"course_key"},
		Indexes:    []Index{{Name: "idx_department", Columns: []string{"department"}}},
	}

	DimTime = TableDef{
		Name: TableDimTime,
		Columns: []ColumnDef{
			{"date_key", "VARCHAR(8)", "NOT NULL"},
			{"date", "DATE", "NOT NULL"},
			{"year", "INT", "NOT NULL"},
			{"quarter", "INT", "NOT NULL"},
			{"month", "INT", "NOT NULL"},
			{"month_name", "VARCHAR(20)", "NOT NULL"},
			{"day", "INT", "NOT NULL"},
			{"day_of_week", "INT", "NOT NULL"},
			{"day_name", "VARCHAR(20)", "NOT NULL"},
			{"is_weekend", "BOOLEAN", "NOT NULL"},
		},
		PrimaryKey: []string{"date_key"},
		Indexes: []Index{
			{Name: "idx_date", Columns: []string{"date"}},
			{Name: "idx_year_month", Columns: []string{"year", "month"}},
		},
	}

	DimSemester = TableDef{
		Name: TableDimSemester,
		Columns: []ColumnDef{
			{"semester_key", "INT", "NOT NULL"},
			{"semester_name", "VARCHAR(50)", "NOT NULL"},
			{"academic_year", "VARCHAR(20)", ""},
		},
		PrimaryKey: []string{"semester_key"},
		Indexes:    []Index{{Name: "idx_academic_year", Columns: []string{"academic_year"}}},
	}

	FactEnrollment = TableDef{
		Name: TableFactEnrollment,
		Columns: []ColumnDef{
			{"enrollment_id", "VARCHAR(20)", "NOT NULL"},
			{"student_key", "VARCHAR(20)", "NOT NULL"},
			{"course_key", "VARCHAR(20)", "NOT NULL"},
			{"date_key", "VARCHAR(8)", "NOT NULL"},
			{"semester_key", "INT", "NOT NULL"},
			{"status", "VARCHAR(20)", ""},
		},
		PrimaryKey:  []string{"enrollment_id"},
		ForeignKeys: []ForeignKey{studentFK, courseFK, dateFK, semesterFK},
	}

	FactAttendance = TableDef{
		Name: TableFactAttendance,
		Columns: []ColumnDef{
			{"attendance_key", "BIGINT", "NOT NULL AUTO_INCREMENT"},
			{"student_key", "VARCHAR(20)", "NOT NULL"},
			{"course_key", "VARCHAR(20)", "NOT NULL"},
			{"date_key", "VARCHAR(8)", "NOT NULL"},
			{"total_hours", "DECIMAL(10,2)", "NOT NULL"},
			{"days_present", "INT", "NOT NULL"},
		},
		PrimaryKey:  []string{"attendance_key"},
		Uniques:     []Index{{Name: "uq_student_course_date", Columns: []string{"student_key", "course_key", "date_key"}}},
		ForeignKeys: []ForeignKey{studentFK, courseFK, dateFK},
		BusinessKey: []string{"student_key", "course_key", "date_key"},
	}

	FactPayment = TableDef{
		Name: TableFactPayment,
		Columns: []ColumnDef{
			{"payment_id", "VARCHAR(20)", "NOT NULL"},
			{"student_key", "VARCHAR(20)", "NOT NULL"},
			{"date_key", "VARCHAR(8)", "NOT NULL"},
			{"semester_key", "INT", "NOT NULL"},
			{"amount", "DECIMAL(15,2)", "NOT NULL"},
			{"payment_method", "VARCHAR(50)", ""},
			{"status", "VARCHAR(20)", ""},
		},
		PrimaryKey:  []string{"payment_id"},
		ForeignKeys: []ForeignKey{studentFK, dateFK, semesterFK},
		Indexes:     []Index{{Name: "idx_status", Columns: []string{"status"}}},
	}

	FactGrade = TableDef{
		Name: TableFactGrade,
		Columns: []ColumnDef{
			{"grade_id", "VARCHAR(20)", "NOT NULL"},
			{"student_key", "VARCHAR(20)", "NOT NULL"},
			{"course_key", "VARCHAR(20)", "NOT NULL"},
			{"date_key", "VARCHAR(8)", "NOT NULL"},
			{"semester_key", "INT", "NOT NULL"},
			{"grade", "DECIMAL(5,2)", "NOT NULL"},
			{"letter_grade", "VARCHAR(2)", ""},
		},
		PrimaryKey:  []string{"grade_id"},
		ForeignKeys: []ForeignKey{studentFK, courseFK, dateFK, semesterFK},
	}
)

// Dimensions lists the dimension tables in load order.
func Dimensions() []TableDef {
	return []TableDef{DimStudent, DimCourse, DimTime, DimSemester}
}

// Facts lists the fact tables in load order.
func Facts() []TableDef {
	return []TableDef{FactEnrollment, FactAttendance, FactPayment, FactGrade}
}
