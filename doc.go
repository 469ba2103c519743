// Package scholar is a batch ETL that turns student records scattered over two
// relational databases and two flat extracts into a MySQL star schema for
// reporting and model features.
//
// A run moves data through three layers:
//
//   - Bronze: every source table is read as-is and written once as an
//     immutable, timestamped Parquet snapshot (local disk, S3 or GCS).
//   - Silver: the latest Bronze snapshots are concatenated in source
//     precedence order, deduplicated by natural key (first seen wins) and
//     normalized: nulls filled, dates and numbers parsed tolerantly, emails
//     lower-cased.
//   - Gold: the warehouse tables are dropped and rebuilt in a fixed order
//     (facts, then dimensions, then dimensions loaded, then facts loaded)
//     with a generated calendar dimension. Fact rows whose date falls outside
//     the calendar are dropped.
//
// # Quick Start
//
//	scholar config show            # effective configuration, secrets masked
//	scholar run                    # extract, stage, conform and load
//	scholar replay                 # rebuild Silver and Gold from Bronze
//	scholar schedule --cron "0 2 * * *"
//	scholar features --student S001
//
// Embedding the pipeline:
//
//	cfg, _ := config.Load("scholar.yaml")
//	store, _ := storage.Open(ctx, cfg.Storage)
//	db, _ := warehouse.Open(ctx, cfg.Warehouse)
//
//	runner, _ := pipeline.New(cfg, pipeline.Dependencies{
//	    Stager:    snapshot.NewStager(store, cfg.Storage.Compression),
//	    Warehouse: db,
//	})
//	res, err := runner.Run(ctx)
//
// # Key Packages
//
//	pkg/source         - MySQL, PostgreSQL and CSV readers
//	pkg/storage        - create-only snapshot stores (local, s3, gcs)
//	pkg/snapshot       - Bronze and Silver Parquet snapshots
//	internal/conform   - Silver entity conformance
//	internal/calendar  - dim_time generation
//	internal/warehouse - Gold schema, row planning and loading
//	internal/pipeline  - run orchestration
//	pkg/features       - per-student aggregate queries on Gold
//	pkg/config         - layered YAML and environment configuration
//	pkg/errors         - typed errors
//	pkg/logger         - structured logging
//	pkg/metrics        - per-run Prometheus metrics
//	pkg/observability  - OpenTelemetry tracing
package scholar
