package tracetree

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/deepnoodle-ai/tracetree/artifact"
	"github.com/deepnoodle-ai/tracetree/logscan"
	"github.com/deepnoodle-ai/tracetree/slogger"
)

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// Logger receives progress and diagnostics. Defaults to a no-op logger.
	Logger slogger.Logger

	// Store persists run outputs. Optional: without a store, Run still
	// builds the tree and artifact in memory.
	Store *artifact.Store
}

// Pipeline reconstructs and persists the execution tree for test runs. A
// Pipeline holds no per-run state; concurrent Run calls with distinct inputs
// are independent.
type Pipeline struct {
	logger slogger.Logger
	store  *artifact.Store
}

// NewPipeline creates a Pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	return &Pipeline{logger: logger, store: opts.Store}
}

// RunInput identifies one test run and its source logs.
type RunInput struct {
	FixtureID string
	TestID    string

	// RunID labels log output for this invocation. Generated when empty. It
	// never appears inside the artifact, which must stay reproducible.
	RunID string

	// TranscriptPath and TracePath locate the two source logs.
	TranscriptPath string
	TracePath      string

	// RunStart anchors elapsed-time computation. When zero, the earliest
	// transcript timestamp is used.
	RunStart time.Time

	// RunTime names the history directory for this run. Defaults to now.
	RunTime time.Time

	// LogDir and LogGlobs select the captured process logs scanned by the
	// warning policy. No globs means no log scan.
	LogDir   string
	LogGlobs []string

	// LogOverride suppresses the log-warning-is-failure policy. It requires
	// a justification and is recorded in the artifact's diagnostics.
	LogOverride *logscan.Override
}

// RunResult is everything one run produced. On failure Err is set and the
// other fields hold whatever was computed before the failing phase, so
// diagnostics can still be persisted and inspected.
type RunResult struct {
	TestID    string
	Tree      *TimelineTree
	Stats     *Stats
	Agents    map[string]*AgentSummary
	Artifact  *artifact.EnrichedArtifact
	LogReport *logscan.Report
	Written   *artifact.WriteResult
	Warnings  []Warning
	Err       *Error
}

// Failed reports whether the run ended in a fatal error.
func (r *RunResult) Failed() bool {
	return r.Err != nil
}

// Run executes the full pipeline for one test run: decode and index both
// logs, correlate agent contexts, build and order the tree, aggregate
// statistics, evaluate the log policy, then persist the enriched artifact
// beside verbatim copies of the sources.
//
// A fatal error in any phase short-circuits the remaining computation but
// never the reporting: Run still assembles a best-effort artifact, persists
// it when a store is configured, and returns the partial result.
func (p *Pipeline) Run(ctx context.Context, input RunInput) *RunResult {
	if input.RunID == "" {
		input.RunID = uuid.NewString()
	}
	if input.RunTime.IsZero() {
		input.RunTime = time.Now()
	}
	logger := p.logger.With("test_id", input.TestID, "run_id", input.RunID)

	res := &RunResult{TestID: input.TestID}

	transcript, err := os.ReadFile(input.TranscriptPath)
	if err != nil {
		res.Err = NewError(PhaseIndex, "read transcript", err, "path", input.TranscriptPath)
	}
	var trace []byte
	if res.Err == nil {
		trace, err = os.ReadFile(input.TracePath)
		if err != nil {
			res.Err = NewError(PhaseIndex, "read trace", err, "path", input.TracePath)
		}
	}

	if res.Err == nil {
		p.build(transcript, trace, input.RunStart, res)
	}

	p.scanLogs(input, res, logger)

	res.Artifact = p.assembleArtifact(input, res)

	if p.store != nil {
		written, werr := p.store.Write(ctx, artifact.WriteRequest{
			TestID:     input.TestID,
			RunTime:    input.RunTime,
			Transcript: transcript,
			Trace:      trace,
			Artifact:   res.Artifact,
		})
		if werr != nil {
			logger.Error("artifact write failed", "error", werr)
			if res.Err == nil {
				res.Err = NewError(PhaseArtifactWrite, "persist run outputs", werr)
			}
		} else {
			res.Written = written
		}
	}

	if res.Err != nil {
		logger.Error("run failed", "phase", string(res.Err.Phase), "error", res.Err.Message)
	} else {
		logger.Info("run complete",
			"nodes", res.Stats.TotalNodes,
			"max_depth", res.Stats.MaxDepth,
			"agents", res.Stats.AgentCount,
			"tool_calls", res.Stats.ToolCallCount,
			"warnings", len(res.Warnings))
	}
	return res
}

// BuildTree runs the in-memory phases only (no file I/O, no persistence):
// decode, index, correlate, link, order, aggregate. Useful for callers that
// already hold both logs as bytes.
func (p *Pipeline) BuildTree(transcript, trace []byte, runStart time.Time) *RunResult {
	res := &RunResult{}
	p.build(transcript, trace, runStart, res)
	return res
}

func (p *Pipeline) build(transcript, trace []byte, runStart time.Time, res *RunResult) {
	records, warnings, err := DecodeTranscript(bytes.NewReader(transcript))
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		res.Err = NewError(PhaseIndex, "decode transcript", err)
		return
	}
	events, warnings, err := DecodeTrace(bytes.NewReader(trace))
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		res.Err = NewError(PhaseIndex, "decode trace", err)
		return
	}

	index, warnings, ierr := indexTranscript(records)
	res.Warnings = append(res.Warnings, warnings...)
	if ierr != nil {
		res.Err = ierr
		return
	}

	ordered, warnings := orderTrace(events)
	res.Warnings = append(res.Warnings, warnings...)
	corr, warnings := correlate(ordered)
	res.Warnings = append(res.Warnings, warnings...)
	res.Agents = corr.Agents

	if runStart.IsZero() {
		runStart = earliestTimestamp(records)
	}
	tree, warnings, terr := buildTree(records, index, runStart)
	res.Warnings = append(res.Warnings, warnings...)
	if terr != nil {
		res.Tree = tree
		res.Err = terr
		return
	}

	if derr := computeDepthAndSeq(tree); derr != nil {
		res.Tree = tree
		res.Err = derr
		return
	}
	applyAttribution(tree, corr)
	res.Tree = tree
	res.Stats = computeStats(tree)
}

func (p *Pipeline) scanLogs(input RunInput, res *RunResult, logger slogger.Logger) {
	if len(input.LogGlobs) == 0 {
		return
	}
	report, err := logscan.Scan(input.LogDir, input.LogGlobs)
	if err != nil {
		if res.Err == nil {
			res.Err = NewError(PhaseLogPolicy, "scan run logs", err)
		}
		return
	}
	if aerr := report.Apply(input.LogOverride); aerr != nil {
		res.Warnings = append(res.Warnings, newWarning(PhaseLogPolicy, WarningLogPolicy,
			"log policy override rejected", "error", aerr.Error()))
	}
	res.LogReport = report
	for _, entry := range report.Entries {
		res.Warnings = append(res.Warnings, newWarning(PhaseLogPolicy, WarningLogPolicy,
			"leveled entry in run log",
			"file", entry.File, "line", entry.Line, "level", entry.Level))
	}
	if report.Failed && res.Err == nil {
		res.Err = NewError(PhaseLogPolicy, "unapproved warnings in run logs", nil,
			"entries", len(report.Entries))
	}
	if report.Override != nil {
		logger.Warn("log policy overridden", "justification", report.Override.Justification)
	}
}

// assembleArtifact builds the persisted document from whatever the run
// computed, including for failed runs.
func (p *Pipeline) assembleArtifact(input RunInput, res *RunResult) *artifact.EnrichedArtifact {
	doc := &artifact.EnrichedArtifact{
		TestContext: artifact.TestContext{
			FixtureID:        input.FixtureID,
			TestID:           input.TestID,
			TranscriptSource: input.TranscriptPath,
			TraceSource:      input.TracePath,
		},
		Tree:   map[string]artifact.NodeRef{},
		Agents: map[string]artifact.Agent{},
	}

	if res.Tree != nil {
		for id, n := range res.Tree.Nodes {
			doc.Tree[id] = artifact.NodeRef{
				ParentID: n.ParentID,
				NodeType: string(n.Type),
				Depth:    n.Depth,
				Seq:      n.Seq,
				AgentID:  n.AgentID,
				Children: n.Children,
			}
		}
	}
	for id, agent := range res.Agents {
		doc.Agents[id] = artifact.Agent{
			AgentType: agent.AgentType,
			StartID:   agent.StartID,
			StopID:    agent.StopID,
			ToolCount: agent.ToolCount,
		}
	}
	if res.Stats != nil {
		doc.Stats = artifact.Stats{
			TotalNodes:          res.Stats.TotalNodes,
			MaxDepth:            res.Stats.MaxDepth,
			AgentCount:          res.Stats.AgentCount,
			ToolCallCount:       res.Stats.ToolCallCount,
			InputTokens:         res.Stats.Usage.InputTokens,
			OutputTokens:        res.Stats.Usage.OutputTokens,
			CacheCreationTokens: res.Stats.Usage.CacheCreationTokens,
			CacheReadTokens:     res.Stats.Usage.CacheReadTokens,
			SubagentTokens:      res.Stats.Usage.SubagentTokens,
			TotalBillable:       res.Stats.TotalBillable,
			TotalAll:            res.Stats.TotalAll,
		}
	}

	for _, w := range res.Warnings {
		doc.Diagnostics.Warnings = append(doc.Diagnostics.Warnings, artifact.Diagnostic{
			Phase:   string(w.Phase),
			Kind:    string(w.Kind),
			Message: w.Message,
			Context: w.Context,
		})
	}
	if res.Err != nil {
		doc.Diagnostics.FailurePhase = string(res.Err.Phase)
		doc.Diagnostics.FailureReason = res.Err.Error()
	}
	if res.LogReport != nil && res.LogReport.Override != nil {
		doc.Diagnostics.LogOverride = &artifact.LogOverride{
			Justification: res.LogReport.Override.Justification,
		}
	}
	return doc
}

func earliestTimestamp(records []*TranscriptRecord) time.Time {
	var earliest time.Time
	for _, rec := range records {
		if rec.Timestamp.IsZero() {
			continue
		}
		if earliest.IsZero() || rec.Timestamp.Before(earliest) {
			earliest = rec.Timestamp
		}
	}
	return earliest
}
