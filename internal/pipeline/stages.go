package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/scholar/internal/calendar"
	"github.com/ajitpratap0/scholar/internal/warehouse"
	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/logger"
	"github.com/ajitpratap0/scholar/pkg/snapshot"
	"github.com/ajitpratap0/scholar/pkg/source"
)

// extract reads every configured table, source by source. order is the
// extraction order of the logical names.
func (r *Runner) extract(ctx context.Context, res *Result) (core.Tables, []string, error) {
	raw := make(core.Tables)
	var order []string
	res.Extracted = make(map[string]int)

	for _, src := range r.cfg.Sources.All() {
		sctx := logger.WithSource(ctx, src.Name)
		reader, err := r.deps.OpenSource(sctx, src)
		if err != nil {
			return nil, nil, err
		}

		for _, d := range source.Directives(src) {
			table, err := reader.Read(sctx, d)
			if err != nil {
				_ = reader.Close()
				return nil, nil, err
			}
			table.Name = d.Name
			raw.Put(table)
			order = append(order, d.Name)
			res.Extracted[d.Name] = table.Len()
			r.deps.Metrics.RowsExtracted.WithLabelValues(d.Name).Add(float64(table.Len()))

			logger.WithContext(sctx).Info("Table extracted",
				zap.String("table", d.Name),
				zap.Int("rows", table.Len()))
		}

		if err := reader.Close(); err != nil {
			logger.WithContext(sctx).Warn("Failed to close source", zap.Error(err))
		}
	}
	return raw, order, nil
}

// stageBronze writes every raw table at the run timestamp.
func (r *Runner) stageBronze(ctx context.Context, res *Result, raw core.Tables, order []string) error {
	for _, name := range order {
		snap, err := r.deps.Stager.Stage(ctx, snapshot.Bronze, raw[name], res.StartedAt)
		if err != nil {
			return err
		}
		res.Bronze = append(res.Bronze, snap)
	}
	return nil
}

// loadBronze reads back the Bronze snapshots of the newest run that staged
// every table the conformer needs.
func (r *Runner) loadBronze(ctx context.Context, res *Result) (core.Tables, []string, error) {
	raw := make(core.Tables)
	names := r.conformer.Sources()
	res.Extracted = make(map[string]int, len(names))

	snaps, err := r.deps.Stager.LatestRun(ctx, snapshot.Bronze, names)
	if err != nil {
		return nil, nil, err
	}
	for _, snap := range snaps {
		table, err := r.deps.Stager.Load(ctx, snap)
		if err != nil {
			return nil, nil, err
		}
		table.Name = snap.Name
		raw.Put(table)
		snap.Rows = table.Len()
		res.Bronze = append(res.Bronze, snap)
		res.Extracted[snap.Name] = table.Len()

		logger.WithContext(ctx).Info("Bronze snapshot loaded",
			zap.String("key", snap.Key),
			zap.Time("taken_at", snap.TakenAt),
			zap.Int("rows", table.Len()))
	}
	return raw, names, nil
}

// conform builds the Silver entities and snapshots them.
func (r *Runner) conform(ctx context.Context, res *Result, raw core.Tables) (core.Tables, error) {
	silver, stats, err := r.conformer.Conform(ctx, raw)
	if err != nil {
		return nil, err
	}
	res.Conformed = stats

	for _, st := range stats {
		r.deps.Metrics.RowsConformed.WithLabelValues(st.Entity).Add(float64(st.RowsOut))
		r.deps.Metrics.RowsDropped.WithLabelValues(st.Entity, "duplicate_key").Add(float64(st.Duplicates))
		r.deps.Metrics.RowsDropped.WithLabelValues(st.Entity, "empty_key").Add(float64(st.EmptyKeys))
	}

	for _, spec := range r.conformer.Specs() {
		snap, err := r.deps.Stager.Stage(ctx, snapshot.Silver, silver[spec.Name], res.StartedAt)
		if err != nil {
			return nil, err
		}
		res.Silver = append(res.Silver, snap)
	}
	return silver, nil
}

// build plans the Gold model and applies it.
func (r *Runner) build(ctx context.Context, res *Result, silver core.Tables, days []calendar.Day) error {
	model, err := r.builder.Plan(silver, days)
	if err != nil {
		return err
	}
	res.Dropped = model.Drops
	for _, d := range model.Drops {
		r.deps.Metrics.RowsDropped.WithLabelValues(d.Table, d.Reason).Add(float64(d.Count))
	}
	if model.UnmappedSemesters > 0 {
		logger.WithContext(ctx).Debug("Semester labels resolved to fallback",
			zap.Int("rows", model.UnmappedSemesters))
	}

	loader := warehouse.NewLoader(r.deps.Warehouse, r.cfg.Warehouse.Mode, r.cfg.Warehouse.BatchSize)
	start := time.Now()
	loaded, err := loader.Apply(ctx, model)
	res.Loaded = loaded
	for table, n := range loaded {
		r.deps.Metrics.RowsLoaded.WithLabelValues(table).Add(float64(n))
	}
	if err != nil {
		return err
	}
	logger.WithContext(ctx).Info("Warehouse loaded",
		zap.String("mode", r.cfg.Warehouse.Mode),
		zap.Duration("duration", time.Since(start)))
	return nil
}

