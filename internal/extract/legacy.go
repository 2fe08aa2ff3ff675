package extract

import (
	"time"

	"github.com/chronoline/cadence/internal/marker"
	"github.com/chronoline/cadence/internal/model"
)

// Legacy marker shape: download runs from item-begin to a bare
// "Running query" line, the evaluator self-reports its duration, and the
// bqrs interpret invocation closes the item. Kept behind the legacy flag
// for logs produced by older workflow versions.

// legacyItemCloser is the invocation that ends an item span in legacy logs.
const legacyItemCloser model.CommandKind = "bqrs interpret"

func (st *fileState) applyLegacy(m marker.Marker, ts time.Time, lineNo int) error {
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
		if st.itemOpen {
			return st.malformed(lineNo, "item begun while previous item is still open")
		}
		if !st.seenItem {
			st.res.Setup += ts.Sub(st.jobStart)
		}
		st.openItem(m.Item, ts)

	case marker.RunningQuery:
		if !st.itemOpen {
			return st.malformed(lineNo, "query start outside an item")
		}
		if st.downloadOpen {
			st.res.Download += ts.Sub(st.itemStart)
			st.downloadOpen = false
		}

	case marker.QueryDone:
		st.res.Commands[model.KindQueryEval] += secondsToDuration(m.Seconds)

	case marker.ToolInvocation:
		// Only the interpret step bounds an item; other invocations are
		// not timed in legacy logs.
		if m.Command != legacyItemCloser {
			return nil
		}
		if !st.itemOpen {
			return st.malformed(lineNo, "item end without an open item")
		}
		// Download only counts up to the "Running query" line here; an
		// item that never reached it contributes no download time.
		st.downloadOpen = false
		st.closeItem(ts)
		st.lastItemEnd = ts

	case marker.JobEnd:
		if !st.started {
			return st.malformed(lineNo, "job end without a job start")
		}
		if st.itemOpen || st.lastItemEnd.IsZero() {
			return st.malformed(lineNo, "job end with an unterminated item")
		}
		st.res.Setup += ts.Sub(st.lastItemEnd)
		st.res.Job = ts.Sub(st.jobStart)
		st.finished = true
	}
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
