package warehouse

import (
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/scholar/internal/calendar"
	"github.com/ajitpratap0/scholar/internal/conform"
	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/errors"
	"github.com/ajitpratap0/scholar/pkg/logger"
)

// Reasons a fact row is left out of Gold.
const (
	ReasonUnresolvedDate = "unresolved_date"
	ReasonUnknownStudent = "unknown_student"
	ReasonUnknownCourse  = "unknown_course"
)

// TableData is the planned content of one Gold table. Each row holds values
// for Def.InsertColumns in order.
type TableData struct {
	Def  TableDef
	Rows [][]interface{}
}

// Drop counts fact rows left out for one reason.
type Drop struct {
	Table  string `json:"table"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Model is the complete planned content of the warehouse.
type Model struct {
	Dimensions []TableData
	Facts      []TableData
	Drops      []Drop
	// UnmappedSemesters counts rows whose semester label used the fallback.
	UnmappedSemesters int
}

// Table returns the planned data of name.
func (m *Model) Table(name string) (TableData, bool) {
	for _, td := range append(append([]TableData{}, m.Dimensions...), m.Facts...) {
		if td.Def.Name == name {
			return td, true
		}
	}
	return TableData{}, false
}

// RowCounts returns planned rows per table.
func (m *Model) RowCounts() map[string]int {
	out := make(map[string]int, len(m.Dimensions)+len(m.Facts))
	for _, td := range m.Dimensions {
		out[td.Def.Name] = len(td.Rows)
	}
	for _, td := range m.Facts {
		out[td.Def.Name] = len(td.Rows)
	}
	return out
}

// Dropped returns the number of rows dropped from table for reason.
func (m *Model) Dropped(table, reason string) int {
	for _, d := range m.Drops {
		if d.Table == table && d.Reason == reason {
			return d.Count
		}
	}
	return 0
}

// Builder turns Silver entities and the calendar into a Gold model.
type Builder struct {
	semesters *SemesterLookup
}

// NewBuilder returns a builder using semesters for every semester label.
func NewBuilder(semesters *SemesterLookup) *Builder {
	return &Builder{semesters: semesters}
}

// Plan computes every dimension and fact row. It performs no I/O and its
// output depends only on its inputs. All six Silver entities are required.
func (b *Builder) Plan(silver core.Tables, days []calendar.Day) (*Model, error) {
	for _, name := range []string{conform.Student, conform.Course, conform.Enrollment,
		conform.Attendance, conform.Payment, conform.Grade} {
		if silver[name] == nil {
			return nil, errors.Newf(errors.ErrorTypeSchemaMismatch, "silver entity %s is missing", name)
		}
	}

	p := &planner{
		semesters: b.semesters,
		index:     calendar.NewIndex(days),
		students:  make(map[string]struct{}),
		courses:   make(map[string]struct{}),
		drops:     make(map[[2]string]int),
	}

	m := &Model{}
	m.Dimensions = []TableData{
		p.dimStudent(silver[conform.Student]),
		p.dimCourse(silver[conform.Course]),
		dimTime(days),
		b.dimSemester(),
	}
	m.Facts = []TableData{
		p.factEnrollment(silver[conform.Enrollment]),
		p.factAttendance(silver[conform.Attendance]),
		p.factPayment(silver[conform.Payment]),
		p.factGrade(silver[conform.Grade]),
	}
	m.Drops = p.dropList()
	m.UnmappedSemesters = p.unmapped

	for _, d := range m.Drops {
		logger.Debug("fact rows dropped",
			zap.String("table", d.Table),
			zap.String("reason", d.Reason),
			zap.Int("count", d.Count))
	}
	return m, nil
}

type planner struct {
	semesters *SemesterLookup
	index     *calendar.Index
	students  map[string]struct{}
	courses   map[string]struct{}
	drops     map[[2]string]int
	unmapped  int
}

func (p *planner) drop(table, reason string) {
	p.drops[[2]string{table, reason}]++
}

func (p *planner) dropList() []Drop {
	out := make([]Drop, 0, len(p.drops))
	for k, n := range p.drops {
		out = append(out, Drop{Table: k[0], Reason: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

func (p *planner) semester(v interface{}) int {
	k, ok := p.semesters.Key(conform.TextValue(v))
	if !ok {
		p.unmapped++
	}
	return k
}

// dateKey resolves v against dim_time.
func (p *planner) dateKey(v interface{}) (string, bool) {
	d, ok := conform.ParseDate(v)
	if !ok {
		return "", false
	}
	return p.index.Resolve(d)
}

// member checks student and course keys against the planned dimensions.
func (p *planner) member(table string, row core.Row, needCourse bool) (string, string, bool) {
	student := conform.KeyValue(row["student_id"])
	if _, ok := p.students[student]; !ok {
		p.drop(table, ReasonUnknownStudent)
		return "", "", false
	}
	if !needCourse {
		return student, "", true
	}
	course := conform.KeyValue(row["course_code"])
	if _, ok := p.courses[course]; !ok {
		p.drop(table, ReasonUnknownCourse)
		return "", "", false
	}
	return student, course, true
}

func (p *planner) dimStudent(t *core.Table) TableData {
	rows := sortedByKey(t.Rows, "student_id")
	td := TableData{Def: DimStudent, Rows: make([][]interface{}, 0, len(rows))}
	for _, r := range rows {
		key := conform.KeyValue(r["student_id"])
		p.students[key] = struct{}{}
		td.Rows = append(td.Rows, []interface{}{
			key,
			conform.TextValue(r["first_name"]),
			conform.TextValue(r["last_name"]),
			conform.IdentityValue(r["email"]),
			conform.TextValue(r["gender"]),
			conform.TextValue(r["nationality"]),
			nullableDate(r["admission_date"]),
		})
	}
	return td
}

func (p *planner) dimCourse(t *core.Table) TableData {
	rows := sortedByKey(t.Rows, "course_code")
	td := TableData{Def: DimCourse, Rows: make([][]interface{}, 0, len(rows))}
	for _, r := range rows {
		key := conform.KeyValue(r["course_code"])
		p.courses[key] = struct{}{}
		credits, _ := conform.ParseInteger(r["credits"])
		td.Rows = append(td.Rows, []interface{}{
			key,
			conform.TextValue(r["course_name"]),
			credits,
			conform.TextValue(r["department"]),
		})
	}
	return td
}

func dimTime(days []calendar.Day) TableData {
	td := TableData{Def: DimTime, Rows: make([][]interface{}, 0, len(days))}
	for _, d := range days {
		td.Rows = append(td.Rows, []interface{}{
			d.DateKey, d.Date, d.Year, d.Quarter, d.Month, d.MonthName,
			d.Day, d.DayOfWeek, d.DayName, d.IsWeekend,
		})
	}
	return td
}

func (b *Builder) dimSemester() TableData {
	terms := b.semesters.Terms()
	td := TableData{Def: DimSemester, Rows: make([][]interface{}, 0, len(terms))}
	for _, t := range terms {
		td.Rows = append(td.Rows, []interface{}{t.Key, t.Name, t.AcademicYear})
	}
	return td
}

func (p *planner) factEnrollment(t *core.Table) TableData {
	td := TableData{Def: FactEnrollment}
	for _, r := range sortedByKey(t.Rows, "enrollment_id") {
		dk, ok := p.dateKey(r["enrollment_date"])
		if !ok {
			p.drop(TableFactEnrollment, ReasonUnresolvedDate)
			continue
		}
		student, course, ok := p.member(TableFactEnrollment, r, true)
		if !ok {
			continue
		}
		td.Rows = append(td.Rows, []interface{}{
			conform.KeyValue(r["enrollment_id"]),
			student, course, dk,
			p.semester(r["semester"]),
			conform.TextValue(r["status"]),
		})
	}
	return td
}

type attendanceGroup struct {
	student, course, date string
}

type attendanceTotal struct {
	hours   float64
	present bool
}

// factAttendance aggregates events per student, course and day. A day counts
// as present once, however many events were marked Present.
func (p *planner) factAttendance(t *core.Table) TableData {
	totals := make(map[attendanceGroup]*attendanceTotal)
	for _, r := range sortedByKey(t.Rows, "attendance_id") {
		dk, ok := p.dateKey(r["attendance_date"])
		if !ok {
			p.drop(TableFactAttendance, ReasonUnresolvedDate)
			continue
		}
		student, course, ok := p.member(TableFactAttendance, r, true)
		if !ok {
			continue
		}
		g := attendanceGroup{student: student, course: course, date: dk}
		tot, ok := totals[g]
		if !ok {
			tot = &attendanceTotal{}
			totals[g] = tot
		}
		hours, _ := conform.ParseNumber(r["hours_attended"])
		tot.hours += hours
		if strings.EqualFold(strings.TrimSpace(conform.TextValue(r["status"])), "present") {
			tot.present = true
		}
	}

	groups := make([]attendanceGroup, 0, len(totals))
	for g := range totals {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.student != b.student {
			return a.student < b.student
		}
		if a.course != b.course {
			return a.course < b.course
		}
		return a.date < b.date
	})

	td := TableData{Def: FactAttendance, Rows: make([][]interface{}, 0, len(groups))}
	for _, g := range groups {
		tot := totals[g]
		present := 0
		if tot.present {
			present = 1
		}
		td.Rows = append(td.Rows, []interface{}{g.student, g.course, g.date, round2(tot.hours), present})
	}
	return td
}

func (p *planner) factPayment(t *core.Table) TableData {
	td := TableData{Def: FactPayment}
	for _, r := range sortedByKey(t.Rows, "payment_id") {
		dk, ok := p.dateKey(r["payment_date"])
		if !ok {
			p.drop(TableFactPayment, ReasonUnresolvedDate)
			continue
		}
		student, _, ok := p.member(TableFactPayment, r, false)
		if !ok {
			continue
		}
		amount, _ := conform.ParseNumber(r["amount"])
		td.Rows = append(td.Rows, []interface{}{
			conform.KeyValue(r["payment_id"]),
			student, dk,
			p.semester(r["semester"]),
			round2(amount),
			conform.TextValue(r["payment_method"]),
			conform.TextValue(r["status"]),
		})
	}
	return td
}

func (p *planner) factGrade(t *core.Table) TableData {
	td := TableData{Def: FactGrade}
	for _, r := range sortedByKey(t.Rows, "grade_id") {
		dk, ok := p.dateKey(r["exam_date"])
		if !ok {
			p.drop(TableFactGrade, ReasonUnresolvedDate)
			continue
		}
		student, course, ok := p.member(TableFactGrade, r, true)
		if !ok {
			continue
		}
		grade, _ := conform.ParseNumber(r["grade"])
		td.Rows = append(td.Rows, []interface{}{
			conform.KeyValue(r["grade_id"]),
			student, course, dk,
			p.semester(r["semester"]),
			grade,
			conform.TextValue(r["letter_grade"]),
		})
	}
	return td
}

// sortedByKey returns rows ordered by key without modifying the input.
func sortedByKey(rows []core.Row, key string) []core.Row {
	out := append([]core.Row(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		return conform.KeyValue(out[i][key]) < conform.KeyValue(out[j][key])
	})
	return out
}

func nullableDate(v interface{}) interface{} {
	d, ok := conform.ParseDate(v)
	if !ok {
		return nil
	}
	return d
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
