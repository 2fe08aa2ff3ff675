// Package discover locates the log files of one CI run on disk. Logs are
// materialized ahead of time (see README) under logs/<repo>/<run-id>/;
// only the runner's "<n>_run (<label>).txt" step logs carry timing markers.
package discover

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// ErrMissingLogsDir reports that the expected per-run directory is absent.
var ErrMissingLogsDir = errors.New("logs directory not found")

var runLogPattern = regexp.MustCompile(`^\d+_run \(.*\)\.txt$`)

// Dir returns the conventional directory for one run's logs.
func Dir(root, repo, runID string) string {
	return filepath.Join(root, repo, runID)
}

// RunLogs lists the run-step log files for one CI run, sorted by name so
// repeated invocations process files in a stable order.
func RunLogs(root, repo, runID string) ([]string, error) {
	dir := Dir(root, repo, runID)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s (repo %q run %q)", ErrMissingLogsDir, dir, repo, runID)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !runLogPattern.MatchString(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
