package extract

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/chronoline/cadence/internal/marker"
	"github.com/chronoline/cadence/internal/model"
)

var base = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// logAt renders one raw log line with the 29-character machine prefix the
// CI runner writes: a 7-digit-fraction ISO instant, "Z", one space.
func logAt(offset time.Duration, payload string) string {
	return base.Add(offset).Format("2006-01-02T15:04:05.0000000") + "Z " + payload
}

func buildLog(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func generalized(t *testing.T) *Extractor {
	t.Helper()
	// The synthetic payloads invoke the bare binary name.
	return New(marker.NewRecognizer(marker.Config{ToolPathPrefix: "codeql "}), nil)
}

const sec = time.Second

func TestExtract_TwoItemScenario(t *testing.T) {
	log := buildLog(
		logAt(0, "##[debug]Starting: Set up job"),
		logAt(2*sec, "Getting database for repoA"),
		logAt(5*sec, "codeql database run-queries --threads=4"),
		logAt(9*sec, "Getting database for repoB"),
		logAt(10*sec, "codeql database run-queries --threads=4"),
		logAt(15*sec, "##[debug]Finishing: Complete job"),
	)

	res, err := generalized(t).Extract("scenario.txt", strings.NewReader(log))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Items != 2 {
		t.Errorf("Items = %d, want 2", res.Items)
	}
	wantPerItem := []model.ItemTiming{
		{Name: "repoA", Elapsed: 7 * sec},
		{Name: "repoB", Elapsed: 6 * sec},
	}
	if len(res.PerItem) != len(wantPerItem) {
		t.Fatalf("PerItem length = %d, want %d", len(res.PerItem), len(wantPerItem))
	}
	for i, want := range wantPerItem {
		if res.PerItem[i] != want {
			t.Errorf("PerItem[%d] = %+v, want %+v", i, res.PerItem[i], want)
		}
	}
	if res.ItemTime != 13*sec {
		t.Errorf("ItemTime = %v, want 13s", res.ItemTime)
	}
	// Downloads: repoA 2s..5s, repoB 9s..10s.
	if res.Download != 4*sec {
		t.Errorf("Download = %v, want 4s", res.Download)
	}
	// run-queries spans: 5s..9s and 10s..15s.
	if got := res.Commands["database run-queries"]; got != 9*sec {
		t.Errorf("Commands[run-queries] = %v, want 9s", got)
	}
	if res.Job != 15*sec {
		t.Errorf("Job = %v, want 15s", res.Job)
	}
	// Setup is exactly job time outside item spans.
	if res.Setup != 2*sec {
		t.Errorf("Setup = %v, want 2s", res.Setup)
	}
}

func TestExtract_Accounting(t *testing.T) {
	log := buildLog(
		logAt(0, "##[debug]Starting: Set up job"),
		logAt(3*sec, "Getting database for one"),
		logAt(4*sec, "codeql database unbundle db.zip"),
		logAt(6*sec, "codeql resolve queries suite.qls"),
		logAt(7*sec, "codeql database run-queries --threads=2"),
		logAt(20*sec, "codeql database interpret-results --format=sarif"),
		logAt(24*sec, "Getting database for two"),
		logAt(26*sec, "codeql database unbundle db.zip"),
		logAt(27*sec, "codeql database run-queries --threads=2"),
		logAt(39*sec, "codeql database interpret-results --format=sarif"),
		logAt(42*sec, "##[debug]Finishing: Complete job"),
	)

	res, err := generalized(t).Extract("accounting.txt", strings.NewReader(log))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	// Per-item durations must sum to the reported item time.
	var perItemSum time.Duration
	for _, it := range res.PerItem {
		perItemSum += it.Elapsed
	}
	if perItemSum != res.ItemTime {
		t.Errorf("sum(PerItem) = %v, ItemTime = %v", perItemSum, res.ItemTime)
	}

	// Setup + item time must equal total job time.
	if res.Setup+res.ItemTime != res.Job {
		t.Errorf("Setup(%v) + ItemTime(%v) != Job(%v)", res.Setup, res.ItemTime, res.Job)
	}

	wantCommands := map[model.CommandKind]time.Duration{
		"database unbundle":          3 * sec,  // 4..6 and 26..27
		"resolve queries":            1 * sec,  // 6..7
		"database run-queries":       25 * sec, // 7..20 and 27..39
		"database interpret-results": 7 * sec,  // 20..24 and 39..42
	}
	for kind, want := range wantCommands {
		if got := res.Commands[kind]; got != want {
			t.Errorf("Commands[%s] = %v, want %v", kind, got, want)
		}
	}

	// Downloads: 3..4 and 24..26.
	if res.Download != 3*sec {
		t.Errorf("Download = %v, want 3s", res.Download)
	}
}

func TestExtract_ItemWithoutInvocationIsAllDownload(t *testing.T) {
	log := buildLog(
		logAt(0, "##[debug]Starting: Set up job"),
		logAt(1*sec, "Getting database for only"),
		logAt(8*sec, "##[debug]Finishing: Complete job"),
	)

	res, err := generalized(t).Extract("download.txt", strings.NewReader(log))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Download != 7*sec {
		t.Errorf("Download = %v, want 7s", res.Download)
	}
	if res.ItemTime != 7*sec {
		t.Errorf("ItemTime = %v, want 7s", res.ItemTime)
	}
}

func TestExtract_Malformed(t *testing.T) {
	tests := []struct {
		name string
		log  string
		want error
	}{
		{
			"tool invocation before any span",
			buildLog(
				logAt(0, "codeql database run-queries --threads=4"),
				logAt(5*sec, "##[debug]Finishing: Complete job"),
			),
			ErrMalformedSpan,
		},
		{
			"item before job start",
			buildLog(
				logAt(0, "Getting database for repoA"),
			),
			ErrMalformedSpan,
		},
		{
			"job end without job start",
			buildLog(
				logAt(0, "##[debug]Finishing: Complete job"),
			),
			ErrMalformedSpan,
		},
		{
			"missing job end",
			buildLog(
				logAt(0, "##[debug]Starting: Set up job"),
				logAt(2*sec, "Getting database for repoA"),
				logAt(5*sec, "codeql database run-queries --threads=4"),
			),
			ErrUnterminatedJob,
		},
		{
			"empty file",
			"",
			ErrUnterminatedJob,
		},
		{
			"job with no items",
			buildLog(
				logAt(0, "##[debug]Starting: Set up job"),
				logAt(9*sec, "##[debug]Finishing: Complete job"),
			),
			ErrEmptyResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := generalized(t).Extract("bad.txt", strings.NewReader(tt.log))
			if !errors.Is(err, tt.want) {
				t.Errorf("Extract err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExtract_UnrecognizedCommand(t *testing.T) {
	log := buildLog(
		logAt(0, "##[debug]Starting: Set up job"),
		logAt(2*sec, "Getting database for repoA"),
		logAt(5*sec, "codeql database brand-new-subcommand out"),
		logAt(9*sec, "##[debug]Finishing: Complete job"),
	)

	_, err := generalized(t).Extract("unknown.txt", strings.NewReader(log))
	if !errors.Is(err, marker.ErrUnrecognizedCommand) {
		t.Fatalf("err = %v, want ErrUnrecognizedCommand", err)
	}
}

func TestExtract_NonMarkerLinesIgnored(t *testing.T) {
	log := buildLog(
		logAt(0, "##[debug]Starting: Set up job"),
		logAt(1*sec, "Preparing runner environment"),
		logAt(2*sec, "Getting database for repoA"),
		logAt(3*sec, "Downloaded 412 MB"),
		"short line",
		logAt(5*sec, "codeql database run-queries --threads=4"),
		logAt(6*sec, "[42/310] evaluated predicates"),
		logAt(9*sec, "##[debug]Finishing: Complete job"),
	)

	res, err := generalized(t).Extract("noise.txt", strings.NewReader(log))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Items != 1 || res.Job != 9*sec {
		t.Errorf("Items = %d Job = %v, want 1 item over 9s", res.Items, res.Job)
	}
}

func TestExtract_FinishingRunQueryEndsJob(t *testing.T) {
	log := buildLog(
		logAt(0, "##[debug]Starting: Set up job"),
		logAt(2*sec, "Getting database for repoA"),
		logAt(4*sec, "codeql database run-queries --threads=4"),
		logAt(8*sec, "##[debug]Finishing: Run query"),
	)

	res, err := generalized(t).Extract("runquery.txt", strings.NewReader(log))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Job != 8*sec {
		t.Errorf("Job = %v, want 8s", res.Job)
	}
}

func TestExtract_Legacy(t *testing.T) {
	rec := marker.NewRecognizer(marker.Config{
		ToolPathPrefix: "[command]/opt/hostedtoolcache/CodeQL/",
		Legacy:         true,
	})
	ex := New(rec, nil)

	log := buildLog(
		logAt(0, "##[debug]Starting: Set up job"),
		logAt(3*sec, "Getting database for repoA"),
		logAt(7*sec, "Running query"),
		logAt(12*sec, "[1/1 eval 4.25s] Evaluation done; writing results to out.bqrs"),
		logAt(14*sec, "[command]/opt/hostedtoolcache/CodeQL/2.15.5/x64/codeql/codeql bqrs interpret --format=sarif"),
		logAt(20*sec, "##[debug]Finishing: Complete job"),
	)

	res, err := ex.Extract("legacy.txt", strings.NewReader(log))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Items != 1 {
		t.Errorf("Items = %d, want 1", res.Items)
	}
	// Item runs from its begin marker to the interpret invocation.
	if res.ItemTime != 11*sec {
		t.Errorf("ItemTime = %v, want 11s", res.ItemTime)
	}
	// Download is bounded by the "Running query" line.
	if res.Download != 4*sec {
		t.Errorf("Download = %v, want 4s", res.Download)
	}
	// Setup covers both sides of the item: 0..3 and 14..20.
	if res.Setup != 9*sec {
		t.Errorf("Setup = %v, want 9s", res.Setup)
	}
	got := res.Commands[model.KindQueryEval].Seconds()
	if math.Abs(got-4.25) > 1e-9 {
		t.Errorf("query evaluation = %vs, want 4.25s", got)
	}
	if res.Job != 20*sec {
		t.Errorf("Job = %v, want 20s", res.Job)
	}
}

func TestExtract_LegacyMalformed(t *testing.T) {
	rec := marker.NewRecognizer(marker.Config{
		ToolPathPrefix: "[command]/opt/hostedtoolcache/CodeQL/",
		Legacy:         true,
	})
	ex := New(rec, nil)

	tests := []struct {
		name string
		log  string
	}{
		{
			"second item while first still open",
			buildLog(
				logAt(0, "##[debug]Starting: Set up job"),
				logAt(2*sec, "Getting database for repoA"),
				logAt(4*sec, "Getting database for repoB"),
			),
		},
		{
			"running query outside an item",
			buildLog(
				logAt(0, "##[debug]Starting: Set up job"),
				logAt(2*sec, "Running query"),
			),
		},
		{
			"job end with unterminated item",
			buildLog(
				logAt(0, "##[debug]Starting: Set up job"),
				logAt(2*sec, "Getting database for repoA"),
				logAt(9*sec, "##[debug]Finishing: Complete job"),
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ex.Extract("bad.txt", strings.NewReader(tt.log))
			if !errors.Is(err, ErrMalformedSpan) {
				t.Errorf("err = %v, want ErrMalformedSpan", err)
			}
		})
	}
}
