package model

import "time"

// CommandKind names one known analysis-tool subcommand. The set of valid
// kinds is configuration (see marker.DefaultVocabulary), not a closed Go
// enum, so new CLI versions can extend it without code changes.
type CommandKind string

// KindQueryEval is the pseudo-kind used by the legacy extractor for the
// evaluator's self-reported duration. It never appears as a span-derived
// kind in the generalized extractor.
const KindQueryEval CommandKind = "query evaluation"

// ItemTiming records the elapsed wall time for one processed item
// (one repository database within a job).
type ItemTiming struct {
	Name    string
	Elapsed time.Duration
}

// FileTiming is the aggregate produced by a single pass over one log file.
// It is only valid once the job-end marker has been observed.
type FileTiming struct {
	Items    int
	Setup    time.Duration
	ItemTime time.Duration
	Download time.Duration
	Job      time.Duration
	Commands map[CommandKind]time.Duration
	PerItem  []ItemTiming
}

// NewFileTiming returns a zeroed result with the command map allocated.
func NewFileTiming() *FileTiming {
	return &FileTiming{Commands: make(map[CommandKind]time.Duration)}
}

// RunTiming is the sum of FileTiming records across all log files of one
// CI run. Counts and accumulators add, the command map merges key-wise,
// and per-item sequences concatenate in fold order.
type RunTiming struct {
	Repo     string
	RunID    string
	Files    int
	Items    int
	Setup    time.Duration
	ItemTime time.Duration
	Download time.Duration
	Job      time.Duration
	Commands map[CommandKind]time.Duration
	PerItem  []ItemTiming
}

// NewRunTiming returns an empty run aggregate for the given run identity.
func NewRunTiming(repo, runID string) *RunTiming {
	return &RunTiming{
		Repo:     repo,
		RunID:    runID,
		Commands: make(map[CommandKind]time.Duration),
	}
}
