package source

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/core"
)

func TestFieldTypeFor(t *testing.T) {
	tests := map[string]core.FieldType{
		"INT":          core.FieldTypeInt,
		"UNSIGNED INT": core.FieldTypeInt,
		"int8":         core.FieldTypeInt,
		"DOUBLE":       core.FieldTypeFloat,
		"DECIMAL":      core.FieldTypeString,
		"numeric":      core.FieldTypeString,
		"DATE":         core.FieldTypeTimestamp,
		"timestamptz":  core.FieldTypeTimestamp,
		"VARCHAR":      core.FieldTypeString,
		"bool":         core.FieldTypeBool,
	}
	for dbType, want := range tests {
		assert.Equal(t, want, fieldTypeFor(dbType), dbType)
	}
}

func TestConvertValue(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ft   core.FieldType
		in   interface{}
		want interface{}
	}{
		{"null", core.FieldTypeInt, nil, nil},
		{"text protocol int", core.FieldTypeInt, []byte("42"), int64(42)},
		{"int32", core.FieldTypeInt, int32(7), int64(7)},
		{"unsigned in range", core.FieldTypeInt, uint64(math.MaxInt64), int64(math.MaxInt64)},
		{"unsigned above int64", core.FieldTypeInt, uint64(math.MaxUint64), "18446744073709551615"},
		{"unsigned text above int64", core.FieldTypeInt, []byte("9223372036854775808"), "9223372036854775808"},
		{"float bytes", core.FieldTypeFloat, []byte("1.5"), 1.5},
		{"decimal text", core.FieldTypeString, []byte("1200.50"), "1200.50"},
		{"time", core.FieldTypeTimestamp, day, day},
		{"date text", core.FieldTypeTimestamp, []byte("2024-03-01"), day},
		{"zero date text", core.FieldTypeTimestamp, []byte("0000-00-00"), "0000-00-00"},
		{"time as text", core.FieldTypeString, day, "2024-03-01T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convertValue(tt.ft, tt.in))
		})
	}
}

func TestSettleDowngradesMixedColumns(t *testing.T) {
	table := core.NewTable("attendance_db2", core.NewSchema("attendance_db2",
		core.Field{Name: "attendance_date", Type: core.FieldTypeTimestamp},
		core.Field{Name: "hours_attended", Type: core.FieldTypeFloat},
	))
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	table.Append(core.Row{"attendance_date": day, "hours_attended": 1.5})
	table.Append(core.Row{"attendance_date": "0000-00-00", "hours_attended": nil})

	settle(table)

	f, _ := table.Schema.Field("attendance_date")
	assert.Equal(t, core.FieldTypeString, f.Type)
	assert.Equal(t, "2024-03-01T00:00:00Z", table.Rows[0]["attendance_date"])
	assert.Equal(t, "0000-00-00", table.Rows[1]["attendance_date"])

	f, _ = table.Schema.Field("hours_attended")
	assert.Equal(t, core.FieldTypeFloat, f.Type)
	assert.Nil(t, table.Rows[1]["hours_attended"])
}

func TestSettleKeepsLargeUnsignedExact(t *testing.T) {
	table := core.NewTable("students_db1", core.NewSchema("students_db1",
		core.Field{Name: "external_id", Type: core.FieldTypeInt},
	))
	table.Append(core.Row{"external_id": convertValue(core.FieldTypeInt, uint64(1))})
	table.Append(core.Row{"external_id": convertValue(core.FieldTypeInt, uint64(math.MaxUint64))})

	settle(table)

	f, _ := table.Schema.Field("external_id")
	assert.Equal(t, core.FieldTypeString, f.Type)
	assert.Equal(t, "1", table.Rows[0]["external_id"])
	assert.Equal(t, "18446744073709551615", table.Rows[1]["external_id"])
}

func TestDirectives(t *testing.T) {
	cfg := config.Default().Sources.LMS
	d := Directives(cfg)
	assert.Equal(t, []Directive{
		{Name: "students_db2", Table: "students"},
		{Name: "courses_db2", Table: "courses"},
		{Name: "attendance_db2", Table: "attendance"},
	}, d)
}
