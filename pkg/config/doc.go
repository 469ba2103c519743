// Package config provides configuration management for the scholar ETL.
//
// A single Config structure describes one pipeline deployment. It is organized
// into sections:
//   - Sources: the two relational systems (registrar, lms) and the two flat
//     extracts (payments, grades)
//   - Storage: where Bronze and Silver snapshots are kept (local, s3, gcs)
//   - Conform: source precedence for entities fed by more than one source
//   - Calendar: the date horizon of dim_time
//   - Semesters: the semester lookup table and its fallback key
//   - Warehouse: the Gold MySQL target and its load mode
//   - Log, Metrics, Tracing, Schedule and RunLog: ambient concerns
//
// # Loading
//
// Load layers values in the following order, later layers winning:
//
//  1. Defaults (see Default)
//  2. A YAML file, after ${VAR_NAME} substitution
//  3. SCHOLAR_* environment variables, with "." replaced by "_"
//     (for example SCHOLAR_WAREHOUSE_PASSWORD)
//
// The result is validated before it is returned:
//
//	cfg, err := config.Load("scholar.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Environment Variable Substitution
//
// Any ${VAR_NAME} in the YAML file is replaced with the value of the
// environment variable before parsing. Unset variables become empty strings.
//
//	warehouse:
//	  password: ${WAREHOUSE_PASSWORD}
package config
