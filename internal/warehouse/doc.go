// Package warehouse builds the Gold star schema.
//
// Building is split in two. Builder.Plan is pure: it resolves every fact row
// against the planned dimensions and the calendar, drops what does not
// resolve, aggregates attendance and returns a Model. Loader.Apply writes a
// Model to MySQL in a fixed order:
//
//  1. drop facts
//  2. drop dimensions
//  3. create and load dimensions (dim_time included)
//  4. create and load facts
//
// In merge mode the drops are skipped, tables are created if missing and rows
// are upserted by business key. Inserts are multi-row and chunked by the
// configured batch size.
package warehouse
