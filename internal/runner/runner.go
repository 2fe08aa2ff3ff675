// Package runner orchestrates one timing analysis: discover the run's log
// files, extract each one, and fold the results. Files are independent, so
// extraction fans out over a bounded errgroup; fold order follows
// discovery order regardless of completion order.
package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chronoline/cadence/internal/aggregate"
	"github.com/chronoline/cadence/internal/discover"
	"github.com/chronoline/cadence/internal/extract"
	"github.com/chronoline/cadence/internal/model"
)

// Runner executes timing analyses for CI runs under one logs root.
type Runner struct {
	extractor *extract.Extractor
	logsRoot  string
	workers   int
	logger    *zap.Logger
}

// New creates a runner. workers bounds concurrent file extraction; values
// below 1 mean sequential processing.
func New(extractor *extract.Extractor, logsRoot string, workers int, logger *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{extractor: extractor, logsRoot: logsRoot, workers: workers, logger: logger}
}

// Run analyzes all log files of one CI run and returns the summed timings.
// Any malformed file fails the whole run; there is no partial result.
func (r *Runner) Run(ctx context.Context, repo, runID string) (*model.RunTiming, error) {
	paths, err := discover.RunLogs(r.logsRoot, repo, runID)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no run log files under %s", discover.Dir(r.logsRoot, repo, runID))
	}

	r.logger.Info("analyzing run",
		zap.String("repo", repo),
		zap.String("run_id", runID),
		zap.Int("files", len(paths)),
		zap.Int("workers", r.workers))

	results := make([]*model.FileTiming, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ft, err := r.extractor.ExtractFile(path)
			if err != nil {
				return err
			}
			results[i] = ft
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return aggregate.Sum(repo, runID, results), nil
}
