// Package extract implements the single-pass timing state machine over one
// CI job log. Marker recognition lives in internal/marker; this package
// only tracks open spans and accumulates elapsed time per category.
package extract

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/chronoline/cadence/internal/logline"
	"github.com/chronoline/cadence/internal/marker"
	"github.com/chronoline/cadence/internal/model"
)

// maxLineBytes bounds scanner buffering; tool output lines can be long.
const maxLineBytes = 1024 * 1024

// Extractor turns one log file into a FileTiming. It is stateless across
// files and safe for concurrent use from multiple goroutines.
type Extractor struct {
	rec    *marker.Recognizer
	logger *zap.Logger
}

// New creates an extractor over the given marker grammar. The recognizer's
// legacy flag selects between the generalized span model and the original
// marker shape.
func New(rec *marker.Recognizer, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{rec: rec, logger: logger}
}

// ExtractFile processes the log file at path.
func (e *Extractor) ExtractFile(path string) (*model.FileTiming, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()
	return e.Extract(path, f)
}

// Extract processes one log, reading lines from r. The name is only used
// in diagnostics. The result is complete once the job-end marker has been
// seen; a log without one fails with ErrUnterminatedJob.
func (e *Extractor) Extract(name string, r io.Reader) (*model.FileTiming, error) {
	st := newFileState(name, e.rec.Legacy())

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		payload, ok := logline.Payload(raw)
		if !ok {
			continue
		}

		m, err := e.rec.Classify(payload)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}
		if m.Kind == marker.None {
			continue
		}

		ts, err := logline.Timestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, lineNo, err)
		}

		if err := st.apply(m, ts, lineNo); err != nil {
			return nil, err
		}
		if st.finished {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	if !st.finished {
		return nil, fmt.Errorf("%s: %w", name, ErrUnterminatedJob)
	}
	if st.res.Items == 0 || st.res.ItemTime <= 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyResult)
	}

	e.logger.Debug("extracted file timing",
		zap.String("file", name),
		zap.Int("items", st.res.Items),
		zap.Duration("job", st.res.Job),
		zap.Duration("setup", st.res.Setup),
		zap.Duration("items_total", st.res.ItemTime),
		zap.Duration("download", st.res.Download))

	return st.res, nil
}

// fileState holds the open spans and accumulators for one file. Nothing
// survives across files.
type fileState struct {
	name   string
	legacy bool

	jobStart time.Time
	started  bool
	finished bool

	itemStart time.Time
	itemName  string
	itemOpen  bool
	seenItem  bool

	// downloadOpen is set from item-begin until the first tool
	// invocation within that item.
	downloadOpen bool

	cmdStart time.Time
	cmdKind  model.CommandKind
	cmdOpen  bool

	// lastItemEnd is only tracked in legacy mode, where items close
	// before the job does and the tail counts as setup.
	lastItemEnd time.Time

	res *model.FileTiming
}

func newFileState(name string, legacy bool) *fileState {
	return &fileState{name: name, legacy: legacy, res: model.NewFileTiming()}
}

func (st *fileState) apply(m marker.Marker, ts time.Time, lineNo int) error {
	if st.legacy {
		return st.applyLegacy(m, ts, lineNo)
	}
	return st.applyGeneralized(m, ts, lineNo)
}

func (st *fileState) applyGeneralized(m marker.Marker, ts time.Time, lineNo int) error {
	switch m.Kind {
	case marker.JobStart:
		if st.started {
			return st.malformed(lineNo, "job start while a job is already open")
		}
		st.started = true
		st.jobStart = ts

	case marker.ItemBegin:
		if !st.started {
			return st.malformed(lineNo, "item begun outside a job")
		}
		st.closeCommand(ts)
		if st.itemOpen {
			st.closeItem(ts)
		} else {
			// First item: everything since job start is setup.
			st.res.Setup += ts.Sub(st.jobStart)
		}
		st.openItem(m.Item, ts)

	case marker.ToolInvocation:
		if !st.itemOpen {
			return st.malformed(lineNo, "tool invocation outside an item")
		}
		st.closeCommand(ts)
		if st.downloadOpen {
			st.res.Download += ts.Sub(st.itemStart)
			st.downloadOpen = false
		}
		st.cmdKind = m.Command
		st.cmdStart = ts
		st.cmdOpen = true

	case marker.JobEnd:
		if !st.started {
			return st.malformed(lineNo, "job end without a job start")
		}
		st.closeCommand(ts)
		if st.itemOpen {
			st.closeItem(ts)
		}
		st.res.Job = ts.Sub(st.jobStart)
		st.finished = true
	}
	return nil
}

// closeCommand accumulates an open command span ending at ts.
func (st *fileState) closeCommand(ts time.Time) {
	if !st.cmdOpen {
		return
	}
	st.res.Commands[st.cmdKind] += ts.Sub(st.cmdStart)
	st.cmdOpen = false
}

// closeItem accumulates the open item span ending at ts. An item that
// never saw a tool invocation counts entirely as download.
func (st *fileState) closeItem(ts time.Time) {
	elapsed := ts.Sub(st.itemStart)
	st.res.Items++
	st.res.ItemTime += elapsed
	st.res.PerItem = append(st.res.PerItem, model.ItemTiming{Name: st.itemName, Elapsed: elapsed})
	if st.downloadOpen {
		st.res.Download += elapsed
		st.downloadOpen = false
	}
	st.itemOpen = false
}

func (st *fileState) openItem(name string, ts time.Time) {
	st.itemStart = ts
	st.itemName = name
	st.itemOpen = true
	st.seenItem = true
	st.downloadOpen = true
}

func (st *fileState) malformed(lineNo int, detail string) error {
	return fmt.Errorf("%s:%d: %w: %s", st.name, lineNo, ErrMalformedSpan, detail)
}
