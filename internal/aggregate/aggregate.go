// Package aggregate folds per-file timing records into run totals. The
// fold is associative and commutative over the numeric fields, so files
// may be extracted in any order (or in parallel) before summing.
package aggregate

import "github.com/chronoline/cadence/internal/model"

// Fold adds one file's timings into the run aggregate. Per-item sequences
// concatenate in fold order; that order is diagnostic only.
func Fold(run *model.RunTiming, file *model.FileTiming) {
	run.Files++
	run.Items += file.Items
	run.Setup += file.Setup
	run.ItemTime += file.ItemTime
	run.Download += file.Download
	run.Job += file.Job
	for kind, d := range file.Commands {
		run.Commands[kind] += d
	}
	run.PerItem = append(run.PerItem, file.PerItem...)
}

// Sum builds the run aggregate for a set of file results.
func Sum(repo, runID string, files []*model.FileTiming) *model.RunTiming {
	run := model.NewRunTiming(repo, runID)
	for _, f := range files {
		Fold(run, f)
	}
	return run
}
