package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/scholar/internal/calendar"
	"github.com/ajitpratap0/scholar/internal/conform"
	"github.com/ajitpratap0/scholar/internal/runlog"
	"github.com/ajitpratap0/scholar/internal/warehouse"
	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/core"
	"github.com/ajitpratap0/scholar/pkg/errors"
	"github.com/ajitpratap0/scholar/pkg/logger"
	"github.com/ajitpratap0/scholar/pkg/metrics"
	"github.com/ajitpratap0/scholar/pkg/observability"
	"github.com/ajitpratap0/scholar/pkg/snapshot"
	"github.com/ajitpratap0/scholar/pkg/source"
)

// OpenFunc opens the reader of one configured source.
type OpenFunc func(ctx context.Context, cfg config.SourceConfig) (source.Reader, error)

// Dependencies are the collaborators of a Runner. Stager and Warehouse are
// required.
type Dependencies struct {
	// OpenSource defaults to source.Open.
	OpenSource OpenFunc
	Stager     *snapshot.Stager
	Warehouse  warehouse.Execer
	// RunLog is optional; nil disables run recording.
	RunLog *runlog.Repository
	// Metrics defaults to a fresh registry per runner.
	Metrics *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
	// NewRunID defaults to a random UUID.
	NewRunID func() string
}

// Result summarizes a completed run.
type Result struct {
	RunID      string              `json:"run_id"`
	Replay     bool                `json:"replay"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Extracted  map[string]int      `json:"extracted"`
	Bronze     []snapshot.Snapshot `json:"bronze"`
	Silver     []snapshot.Snapshot `json:"silver"`
	Conformed  []conform.Stats     `json:"conformed"`
	Days       int                 `json:"days"`
	Loaded     map[string]int      `json:"loaded"`
	Dropped    []warehouse.Drop    `json:"dropped"`
}

// RowCounts flattens the per-table counts recorded in the run log.
func (r *Result) RowCounts() map[string]int {
	out := make(map[string]int, len(r.Extracted)+len(r.Loaded))
	for k, v := range r.Extracted {
		out["bronze."+k] = v
	}
	for _, st := range r.Conformed {
		out["silver."+st.Entity] = st.RowsOut
	}
	for k, v := range r.Loaded {
		out["gold."+k] = v
	}
	return out
}

// Runner executes pipeline runs for one configuration.
type Runner struct {
	cfg       *config.Config
	deps      Dependencies
	conformer *conform.Conformer
	builder   *warehouse.Builder
}

// New validates the dependencies and prepares the fixed stage collaborators.
func New(cfg *config.Config, deps Dependencies) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	if deps.Stager == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "snapshot stager is required")
	}
	if deps.Warehouse == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "warehouse connection is required")
	}
	if deps.OpenSource == nil {
		deps.OpenSource = source.Open
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(cfg.Metrics.Namespace)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = func() string { return uuid.New().String() }
	}

	return &Runner{
		cfg:       cfg,
		deps:      deps,
		conformer: conform.New(conform.DefaultEntities(cfg.Conform)),
		builder:   warehouse.NewBuilder(warehouse.NewSemesterLookup(cfg.Semesters)),
	}, nil
}

// Metrics returns the collectors the runner records into.
func (r *Runner) Metrics() *metrics.Metrics {
	return r.deps.Metrics
}

// Run executes a full run against the live sources.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	return r.execute(ctx, false)
}

// Replay rebuilds Silver and Gold from the latest Bronze snapshots without
// reading the sources.
func (r *Runner) Replay(ctx context.Context) (*Result, error) {
	return r.execute(ctx, true)
}

func (r *Runner) execute(ctx context.Context, replay bool) (*Result, error) {
	if r.cfg.Run.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Run.Timeout)
		defer cancel()
	}

	res := &Result{
		RunID:     r.deps.NewRunID(),
		Replay:    replay,
		StartedAt: r.deps.Now().UTC(),
	}
	ctx = logger.WithRun(ctx, res.RunID)
	log := logger.WithContext(ctx)
	ctx, span := observability.StartSpan(ctx, "pipeline.run")
	span.SetAttribute("run_id", res.RunID)
	span.SetAttribute("replay", replay)

	r.recordStart(ctx, res)
	log.Info("Pipeline run started", zap.Bool("replay", replay))

	err := r.stages(ctx, res, replay)

	res.FinishedAt = r.deps.Now().UTC()
	r.deps.Metrics.RunFinished(err == nil)
	r.recordFinish(ctx, res, err)
	span.End(err)

	if pushErr := r.deps.Metrics.Push(ctx, r.cfg.Metrics); pushErr != nil {
		log.Warn("Failed to push metrics", zap.Error(pushErr))
	}

	if err != nil {
		stage, _ := errors.FailedStage(err)
		log.Error("Pipeline run failed",
			zap.String("failed_stage", string(stage)),
			zap.Error(err))
		return res, err
	}

	log.Info("Pipeline run completed",
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
		zap.Any("loaded", res.Loaded))
	return res, nil
}

func (r *Runner) stages(ctx context.Context, res *Result, replay bool) error {
	var raw core.Tables
	var order []string

	if replay {
		err := r.stage(ctx, errors.StageExtract, func(ctx context.Context) error {
			var err error
			raw, order, err = r.loadBronze(ctx, res)
			return err
		})
		if err != nil {
			return err
		}
	} else {
		err := r.stage(ctx, errors.StageExtract, func(ctx context.Context) error {
			var err error
			raw, order, err = r.extract(ctx, res)
			return err
		})
		if err != nil {
			return err
		}
		err = r.stage(ctx, errors.StageStage, func(ctx context.Context) error {
			return r.stageBronze(ctx, res, raw, order)
		})
		if err != nil {
			return err
		}
	}

	var silver core.Tables
	err := r.stage(ctx, errors.StageConform, func(ctx context.Context) error {
		var err error
		silver, err = r.conform(ctx, res, raw)
		return err
	})
	if err != nil {
		return err
	}

	var days []calendar.Day
	err = r.stage(ctx, errors.StageCalendar, func(ctx context.Context) error {
		start, end, err := r.cfg.Calendar.Bounds()
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid calendar horizon")
		}
		days, err = calendar.Generate(start, end)
		res.Days = len(days)
		return err
	})
	if err != nil {
		return err
	}

	return r.stage(ctx, errors.StageBuild, func(ctx context.Context) error {
		return r.build(ctx, res, silver, days)
	})
}

// stage runs fn as one named stage with its own span, timer and log fields.
func (r *Runner) stage(ctx context.Context, name errors.Stage, fn func(context.Context) error) error {
	ctx = logger.WithStage(ctx, string(name))
	ctx, span := observability.StartSpan(ctx, "stage."+string(name))
	timer := r.deps.Metrics.StageTimer(string(name))

	start := time.Now()
	err := fn(ctx)
	timer.ObserveDuration()
	span.End(err)

	if err != nil {
		return errors.AtStage(name, err)
	}
	logger.WithContext(ctx).Info("Stage completed", zap.Duration("duration", time.Since(start)))
	return nil
}

func (r *Runner) recordStart(ctx context.Context, res *Result) {
	if r.deps.RunLog == nil || !r.cfg.RunLog.Enabled {
		return
	}
	log := logger.WithContext(ctx)
	if err := r.deps.RunLog.EnsureTable(ctx); err != nil {
		log.Warn("Failed to create run log table", zap.Error(err))
		return
	}
	if err := r.deps.RunLog.Start(ctx, res.RunID, res.StartedAt); err != nil {
		log.Warn("Failed to record run start", zap.Error(err))
	}
}

func (r *Runner) recordFinish(ctx context.Context, res *Result, runErr error) {
	if r.deps.RunLog == nil || !r.cfg.RunLog.Enabled {
		return
	}
	stage, _ := errors.FailedStage(runErr)
	// The run context may already be cancelled; the outcome is still recorded.
	err := r.deps.RunLog.Finish(context.WithoutCancel(ctx), res.RunID, runlog.Outcome{
		FinishedAt:  res.FinishedAt,
		FailedStage: string(stage),
		Err:         runErr,
		RowCounts:   res.RowCounts(),
	})
	if err != nil {
		logger.WithContext(ctx).Warn("Failed to record run outcome", zap.Error(err))
	}
}
