package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ajitpratap0/scholar/pkg/logger"
)

// DateLayout is the layout of calendar bounds in configuration.
const DateLayout = "2006-01-02"

// Config is the complete configuration of one pipeline deployment.
type Config struct {
	Run       RunConfig       `mapstructure:"run" yaml:"run"`
	Sources   SourcesConfig   `mapstructure:"sources" yaml:"sources"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Conform   ConformConfig   `mapstructure:"conform" yaml:"conform"`
	Calendar  CalendarConfig  `mapstructure:"calendar" yaml:"calendar"`
	Semesters SemesterConfig  `mapstructure:"semesters" yaml:"semesters"`
	Warehouse WarehouseConfig `mapstructure:"warehouse" yaml:"warehouse"`
	RunLog    RunLogConfig    `mapstructure:"run_log" yaml:"run_log"`
	Log       logger.Config   `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Schedule  ScheduleConfig  `mapstructure:"schedule" yaml:"schedule"`
}

// RunConfig bounds a single run.
type RunConfig struct {
	// Timeout cancels the run context after the given duration. Zero means
	// the run is never cancelled.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SourcesConfig names the four upstream collaborators.
type SourcesConfig struct {
	Registrar SourceConfig `mapstructure:"registrar" yaml:"registrar"`
	LMS       SourceConfig `mapstructure:"lms" yaml:"lms"`
	Payments  SourceConfig `mapstructure:"payments" yaml:"payments"`
	Grades    SourceConfig `mapstructure:"grades" yaml:"grades"`
}

// All returns the sources in extraction order.
func (s SourcesConfig) All() []SourceConfig {
	return []SourceConfig{s.Registrar, s.LMS, s.Payments, s.Grades}
}

// SourceConfig describes one upstream system: a relational database for the
// mysql and postgres drivers, or a single extract file for csv.
type SourceConfig struct {
	Name     string         `mapstructure:"name" yaml:"name" validate:"required"`
	Driver   string         `mapstructure:"driver" yaml:"driver" validate:"oneof=mysql postgres csv"`
	Host     string         `mapstructure:"host" yaml:"host" validate:"required_unless=Driver csv"`
	Port     int            `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
	User     string         `mapstructure:"user" yaml:"user"`
	Password string         `mapstructure:"password" yaml:"password"`
	Database string         `mapstructure:"database" yaml:"database" validate:"required_unless=Driver csv"`
	SSLMode  string         `mapstructure:"sslmode" yaml:"sslmode"`
	Path     string         `mapstructure:"path" yaml:"path" validate:"required_if=Driver csv"`
	Tables   []TableMapping `mapstructure:"tables" yaml:"tables" validate:"required,min=1,dive"`
}

// TableMapping maps a source table (or, for csv, the file) to the logical
// name its Bronze snapshot is stored under.
type TableMapping struct {
	Table string `mapstructure:"table" yaml:"table"`
	As    string `mapstructure:"as" yaml:"as" validate:"required"`
}

// MySQLDSN renders the go-sql-driver DSN for this source.
func (s SourceConfig) MySQLDSN() string {
	return mysqlDSN(s.User, s.Password, s.Host, s.Port, s.Database)
}

// PostgresDSN renders a libpq style connection URL for this source.
func (s SourceConfig) PostgresDSN() string {
	sslmode := s.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		s.User, s.Password, net.JoinHostPort(s.Host, strconv.Itoa(s.Port)), s.Database, sslmode)
}

// StorageConfig selects the snapshot store for Bronze and Silver.
type StorageConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend" validate:"oneof=local s3 gcs"`
	Root        string `mapstructure:"root" yaml:"root" validate:"required_if=Backend local"`
	Bucket      string `mapstructure:"bucket" yaml:"bucket" validate:"required_unless=Backend local"`
	Prefix      string `mapstructure:"prefix" yaml:"prefix"`
	Region      string `mapstructure:"region" yaml:"region"`
	Credentials string `mapstructure:"credentials_file" yaml:"credentials_file"`
	Compression string `mapstructure:"compression" yaml:"compression" validate:"oneof=none snappy gzip zstd"`
}

// ConformConfig overrides the source precedence of multi-source entities.
// The first source listed wins on natural key collisions.
type ConformConfig struct {
	StudentPrecedence []string `mapstructure:"student_precedence" yaml:"student_precedence" validate:"required,min=1"`
	CoursePrecedence  []string `mapstructure:"course_precedence" yaml:"course_precedence" validate:"required,min=1"`
}

// CalendarConfig is the inclusive date horizon of dim_time.
type CalendarConfig struct {
	Start string `mapstructure:"start" yaml:"start" validate:"required,datetime=2006-01-02"`
	End   string `mapstructure:"end" yaml:"end" validate:"required,datetime=2006-01-02"`
}

// Bounds parses the configured horizon.
func (c CalendarConfig) Bounds() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, c.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("calendar.start: %w", err)
	}
	end, err := time.Parse(DateLayout, c.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("calendar.end: %w", err)
	}
	return start, end, nil
}

// SemesterConfig is the semester lookup table. Labels not found in Terms
// resolve to Fallback, which must be one of the configured keys.
type SemesterConfig struct {
	Fallback int            `mapstructure:"fallback" yaml:"fallback" validate:"required"`
	Terms    []SemesterTerm `mapstructure:"terms" yaml:"terms" validate:"required,min=1,dive"`
}

// SemesterTerm is one row of dim_semester.
type SemesterTerm struct {
	Key          int    `mapstructure:"key" yaml:"key" validate:"required"`
	Name         string `mapstructure:"name" yaml:"name" validate:"required"`
	AcademicYear string `mapstructure:"academic_year" yaml:"academic_year"`
}

// Warehouse load modes.
const (
	ModeRebuild = "rebuild"
	ModeMerge   = "merge"
)

// WarehouseConfig describes the Gold MySQL target.
type WarehouseConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" validate:"required"`
	Port            int           `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	User            string        `mapstructure:"user" yaml:"user" validate:"required"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Database        string        `mapstructure:"database" yaml:"database" validate:"required"`
	Mode            string        `mapstructure:"mode" yaml:"mode" validate:"oneof=rebuild merge"`
	BatchSize       int           `mapstructure:"batch_size" yaml:"batch_size" validate:"min=1,max=5000"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	CreateDatabase  bool          `mapstructure:"create_database" yaml:"create_database"`
}

// DSN renders the go-sql-driver DSN for the warehouse.
func (w WarehouseConfig) DSN() string {
	return mysqlDSN(w.User, w.Password, w.Host, w.Port, w.Database)
}

// ServerDSN is DSN without a database name, used to create the database.
func (w WarehouseConfig) ServerDSN() string {
	return mysqlDSN(w.User, w.Password, w.Host, w.Port, "")
}

func mysqlDSN(user, password, host string, port int, database string) string {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// RunLogConfig controls the etl_run_log audit table.
type RunLogConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// MetricsConfig controls Prometheus metrics for batch runs.
type MetricsConfig struct {
	Namespace      string `mapstructure:"namespace" yaml:"namespace"`
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url" validate:"omitempty,url"`
	Job            string `mapstructure:"job" yaml:"job"`
}

// TracingConfig controls OpenTelemetry tracing of pipeline stages.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio" validate:"min=0,max=1"`
}

// ScheduleConfig controls the schedule command. Cron wins over Every.
type ScheduleConfig struct {
	Every time.Duration `mapstructure:"every" yaml:"every"`
	Cron  string        `mapstructure:"cron" yaml:"cron"`
}

// Redacted returns a copy of c with every password masked.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	out := c
	out.Sources.Registrar.Password = mask(c.Sources.Registrar.Password)
	out.Sources.LMS.Password = mask(c.Sources.LMS.Password)
	out.Sources.Payments.Password = mask(c.Sources.Payments.Password)
	out.Sources.Grades.Password = mask(c.Sources.Grades.Password)
	out.Warehouse.Password = mask(c.Warehouse.Password)
	return out
}
