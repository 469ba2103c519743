package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "SCHOLAR"

// searchPaths are tried in order when Load is given no path.
var searchPaths = []string{"scholar.yaml", "config/scholar.yaml"}

// Load reads the configuration from path (or the first of the default search
// paths that exists), applies environment overrides and validates the result.
// A missing default file is not an error; defaults and environment are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		data, err := os.ReadFile(file) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.ReadConfig(bytes.NewReader(substituteEnvVars(data))); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the validated default configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static and decode cleanly.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Write renders cfg as YAML.
func Write(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}

func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file %s: %w", path, err)
		}
		return path, nil
	}
	for _, candidate := range searchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(data []byte) []byte {
	content := string(data)
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		content = content[:start] + os.Getenv(varName) + content[end+1:]
	}
	return []byte(content)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.timeout", "0s")

	v.SetDefault("sources.registrar.name", "registrar")
	v.SetDefault("sources.registrar.driver", "mysql")
	v.SetDefault("sources.registrar.host", "localhost")
	v.SetDefault("sources.registrar.port", 3306)
	v.SetDefault("sources.registrar.user", "root")
	v.SetDefault("sources.registrar.password", "")
	v.SetDefault("sources.registrar.database", "university_db1")
	v.SetDefault("sources.registrar.tables", []map[string]interface{}{
		{"table": "students", "as": "students_db1"},
		{"table": "courses", "as": "courses_db1"},
		{"table": "enrollments", "as": "enrollments_db1"},
	})

	v.SetDefault("sources.lms.name", "lms")
	v.SetDefault("sources.lms.driver", "mysql")
	v.SetDefault("sources.lms.host", "localhost")
	v.SetDefault("sources.lms.port", 3306)
	v.SetDefault("sources.lms.user", "root")
	v.SetDefault("sources.lms.password", "")
	v.SetDefault("sources.lms.database", "university_db2")
	v.SetDefault("sources.lms.tables", []map[string]interface{}{
		{"table": "students", "as": "students_db2"},
		{"table": "courses", "as": "courses_db2"},
		{"table": "attendance", "as": "attendance_db2"},
	})

	v.SetDefault("sources.payments.name", "payments")
	v.SetDefault("sources.payments.driver", "csv")
	v.SetDefault("sources.payments.path", "data/payments.csv")
	v.SetDefault("sources.payments.tables", []map[string]interface{}{{"as": "payments"}})

	v.SetDefault("sources.grades.name", "grades")
	v.SetDefault("sources.grades.driver", "csv")
	v.SetDefault("sources.grades.path", "data/grades.csv")
	v.SetDefault("sources.grades.tables", []map[string]interface{}{{"as": "grades"}})

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.root", "data_lake")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.credentials_file", "")
	v.SetDefault("storage.compression", "snappy")

	v.SetDefault("conform.student_precedence", []string{"students_db1", "students_db2"})
	v.SetDefault("conform.course_precedence", []string{"courses_db1", "courses_db2"})

	v.SetDefault("calendar.start", "2023-01-01")
	v.SetDefault("calendar.end", "2025-12-31")

	v.SetDefault("semesters.fallback", 1)
	v.SetDefault("semesters.terms", []map[string]interface{}{
		{"key": 1, "name": "Fall 2023", "academic_year": "2023-2024"},
		{"key": 2, "name": "Spring 2024", "academic_year": "2023-2024"},
		{"key": 3, "name": "Fall 2024", "academic_year": "2024-2025"},
		{"key": 4, "name": "Spring 2025", "academic_year": "2024-2025"},
	})

	v.SetDefault("warehouse.host", "localhost")
	v.SetDefault("warehouse.port", 3306)
	v.SetDefault("warehouse.user", "root")
	v.SetDefault("warehouse.password", "")
	v.SetDefault("warehouse.database", "student_analytics_dw")
	v.SetDefault("warehouse.mode", ModeRebuild)
	v.SetDefault("warehouse.batch_size", 1000)
	v.SetDefault("warehouse.max_open_conns", 10)
	v.SetDefault("warehouse.max_idle_conns", 5)
	v.SetDefault("warehouse.conn_max_lifetime", "1h")
	v.SetDefault("warehouse.create_database", true)

	v.SetDefault("run_log.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.development", false)

	v.SetDefault("metrics.namespace", "scholar")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "scholar_etl")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "scholar")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("schedule.every", "24h")
	v.SetDefault("schedule.cron", "")
}
