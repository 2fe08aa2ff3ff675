// Package marker classifies log payload lines into the closed set of
// span markers the timing extractor reacts to. All marker grammar lives
// here; the state machine in internal/extract only sees tagged variants.
package marker

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/chronoline/cadence/internal/model"
)

// ErrUnrecognizedCommand reports a tool invocation whose subcommand is not
// in the known vocabulary. This is deliberate: time must never be silently
// mis-bucketed, so new subcommands have to be added to the vocabulary
// before their logs can be analyzed.
var ErrUnrecognizedCommand = errors.New("unrecognized tool subcommand")

// Kind tags the marker variant a payload line was classified as.
type Kind int

const (
	// None means the line carries no marker and contributes nothing.
	None Kind = iota
	JobStart
	JobEnd
	ItemBegin
	ToolInvocation
	// RunningQuery and QueryDone only exist in legacy-format logs.
	RunningQuery
	QueryDone
)

// Marker is the classification result for one payload line.
type Marker struct {
	Kind    Kind
	Item    string            // ItemBegin: trailing identifier, may be empty
	Command model.CommandKind // ToolInvocation: resolved subcommand
	Seconds float64           // QueryDone: self-reported evaluation seconds
}

// Marker literals written by the CI runner. Job boundaries arrive on the
// debug channel, so the channel tag is part of the match.
const (
	jobStartLine     = "##[debug]Starting: Set up job"
	jobEndLine       = "##[debug]Finishing: Complete job"
	jobEndQueryLine  = "##[debug]Finishing: Run query"
	itemBeginPrefix  = "Getting database for"
	runningQueryLine = "Running query"
)

var queryDonePattern = regexp.MustCompile(`^\[1/1 eval ([\d.]+)s\] Evaluation done; writing results to`)

// DefaultToolPathPrefix matches command-channel invocations of the
// installed analysis tool. The hosted-toolcache path is versioned, so this
// is configuration that must track the CI environment, not protocol.
const DefaultToolPathPrefix = "[command]/opt/hostedtoolcache/CodeQL/"

// DefaultCLIAnnouncePrefix matches the debug-channel announcement the
// action emits before shelling out to the CLI.
const DefaultCLIAnnouncePrefix = "##[debug]Running using CLI: "

// DefaultVocabulary returns the known subcommand set, most specific names
// first. Substring containment decides membership, so order only matters
// when one name contains another.
func DefaultVocabulary() []model.CommandKind {
	return []model.CommandKind{
		"database unbundle",
		"database run-queries",
		"database interpret-results",
		"bqrs interpret",
		"bqrs info",
		"resolve queries",
		"resolve metadata",
		"resolve database",
	}
}

// Config carries the environment-dependent matching constants.
type Config struct {
	ToolPathPrefix    string
	CLIAnnouncePrefix string
	Vocabulary        []model.CommandKind
	// Legacy enables the original marker shape: the bare "Running query"
	// line and the evaluator's self-reported duration.
	Legacy bool
}

// Recognizer classifies payload lines against the configured grammar.
type Recognizer struct {
	toolPathPrefix    string
	cliAnnouncePrefix string
	vocabulary        []model.CommandKind
	legacy            bool
}

// NewRecognizer builds a recognizer, filling empty config fields with the
// defaults above.
func NewRecognizer(cfg Config) *Recognizer {
	if cfg.ToolPathPrefix == "" {
		cfg.ToolPathPrefix = DefaultToolPathPrefix
	}
	if cfg.CLIAnnouncePrefix == "" {
		cfg.CLIAnnouncePrefix = DefaultCLIAnnouncePrefix
	}
	if len(cfg.Vocabulary) == 0 {
		cfg.Vocabulary = DefaultVocabulary()
	}
	return &Recognizer{
		toolPathPrefix:    cfg.ToolPathPrefix,
		cliAnnouncePrefix: cfg.CLIAnnouncePrefix,
		vocabulary:        cfg.Vocabulary,
		legacy:            cfg.Legacy,
	}
}

// Legacy reports whether the recognizer emits the legacy-only markers.
func (r *Recognizer) Legacy() bool { return r.legacy }

// Classify maps one payload line to its marker. Most lines match nothing
// and return Kind None. The only error condition is a tool invocation
// naming a subcommand outside the vocabulary.
func (r *Recognizer) Classify(payload string) (Marker, error) {
	switch payload {
	case jobStartLine:
		return Marker{Kind: JobStart}, nil
	case jobEndLine, jobEndQueryLine:
		return Marker{Kind: JobEnd}, nil
	}

	if rest, ok := strings.CutPrefix(payload, itemBeginPrefix); ok {
		return Marker{Kind: ItemBegin, Item: itemIdentifier(rest)}, nil
	}

	if invocation, ok := r.cutInvocation(payload); ok {
		kind, err := r.classifyCommand(invocation)
		if err != nil {
			return Marker{}, err
		}
		return Marker{Kind: ToolInvocation, Command: kind}, nil
	}

	if r.legacy {
		if payload == runningQueryLine {
			return Marker{Kind: RunningQuery}, nil
		}
		if m := queryDonePattern.FindStringSubmatch(payload); m != nil {
			secs, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return Marker{}, fmt.Errorf("parsing evaluation seconds %q: %w", m[1], err)
			}
			return Marker{Kind: QueryDone, Seconds: secs}, nil
		}
	}

	return Marker{Kind: None}, nil
}

// cutInvocation returns the invocation text after the matched prefix when
// the payload is a tool invocation line.
func (r *Recognizer) cutInvocation(payload string) (string, bool) {
	if rest, ok := strings.CutPrefix(payload, r.toolPathPrefix); ok {
		return rest, true
	}
	if rest, ok := strings.CutPrefix(payload, r.cliAnnouncePrefix); ok {
		return rest, true
	}
	return "", false
}

// classifyCommand resolves an invocation to a known subcommand by
// substring containment, first match wins.
func (r *Recognizer) classifyCommand(invocation string) (model.CommandKind, error) {
	for _, kind := range r.vocabulary {
		if strings.Contains(invocation, string(kind)) {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnrecognizedCommand, strings.TrimSpace(invocation))
}

// itemIdentifier extracts the trimmed trailing identifier from an
// item-begin line, dropping a leading colon-like separator if present.
func itemIdentifier(rest string) string {
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, ":")
	return strings.TrimSpace(rest)
}
