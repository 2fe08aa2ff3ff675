package extract

import "errors"

// The extractor is fail-fast: aggregate statistics are only meaningful
// over complete, well-formed logs, so any structural defect aborts the
// file instead of producing misleading partial numbers.
var (
	// ErrMalformedSpan reports an end marker with no matching open span.
	ErrMalformedSpan = errors.New("marker closes a span that was never opened")

	// ErrUnterminatedJob reports a file that ended before the job-end
	// marker, leaving setup and job totals uncomputable.
	ErrUnterminatedJob = errors.New("log ended before job completion")

	// ErrEmptyResult reports a well-terminated job that processed no
	// items. Folding such a file into run totals would corrupt per-item
	// averages, so it is rejected as format drift.
	ErrEmptyResult = errors.New("log contains no item timings")
)
