// Package pipeline runs the medallion ETL end to end.
//
// A run is strictly sequential. Each stage completes and its output is fully
// materialized before the next begins:
//
//  1. extract  - read every configured source table
//  2. stage    - write each raw table as an immutable Bronze snapshot
//  3. conform  - build and snapshot the six Silver entities
//  4. calendar - generate the dim_time horizon
//  5. build    - plan and load the Gold star schema
//
// The first fatal error aborts the run and is returned wrapped in a
// StageError naming the stage. Degraded cells (bad dates, unmapped
// semesters, orphan keys) are not errors; they are counted in metrics and
// logged at debug level.
//
// # Basic Usage
//
//	runner, err := pipeline.New(cfg, pipeline.Dependencies{
//	    Stager:    snapshot.NewStager(store, cfg.Storage.Compression),
//	    Warehouse: db,
//	})
//	if err != nil {
//	    return err
//	}
//	result, err := runner.Run(ctx)
//
// Replay skips extraction and rebuilds Silver and Gold from the latest Bronze
// snapshot of every source table.
package pipeline
