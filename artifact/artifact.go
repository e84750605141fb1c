// Package artifact defines the persisted enrichment document and the store
// that writes it beside immutable copies of the source logs.
//
// The enriched artifact is derived and fully regenerable: it is safe to
// delete and rebuild at any time from the two preserved source logs. It holds
// tree structure and statistics only; full node content is resolved lazily by
// consumers looking up a node's id in the preserved transcript copy.
package artifact

import (
	"bytes"
	"encoding/json"
)

// Filenames used inside every run directory.
const (
	TranscriptFileName = "transcript.jsonl"
	TraceFileName      = "trace.jsonl"
	ArtifactFileName   = "enriched.json"
)

// TestContext identifies the test run the artifact was derived from.
type TestContext struct {
	FixtureID        string `json:"fixture_id,omitempty"`
	TestID           string `json:"test_id"`
	TranscriptSource string `json:"transcript_source,omitempty"`
	TraceSource      string `json:"trace_source,omitempty"`
}

// Paths locates the run's files relative to the directory holding the
// artifact, so the same document is valid in both the latest and history
// locations. An empty Transcript or Trace means that source log was never
// read and no copy exists beside the artifact.
type Paths struct {
	Transcript string `json:"transcript,omitempty"`
	Trace      string `json:"trace,omitempty"`
	Artifact   string `json:"artifact"`
}

// NodeRef is the structure-only projection of one timeline node. Content
// stays in the transcript copy.
type NodeRef struct {
	ParentID string   `json:"parent_id,omitempty"`
	NodeType string   `json:"node_type"`
	Depth    int      `json:"depth"`
	Seq      int      `json:"seq,omitempty"`
	AgentID  string   `json:"agent_id,omitempty"`
	Children []string `json:"children,omitempty"`
}

// Agent is the persisted per-agent summary.
type Agent struct {
	AgentType string `json:"agent_type,omitempty"`
	StartID   string `json:"start_id,omitempty"`
	StopID    string `json:"stop_id,omitempty"`
	ToolCount int    `json:"tool_count"`
}

// Stats is the persisted aggregate block.
type Stats struct {
	TotalNodes          int `json:"total_nodes"`
	MaxDepth            int `json:"max_depth"`
	AgentCount          int `json:"agent_count"`
	ToolCallCount       int `json:"tool_call_count"`
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
	SubagentTokens      int `json:"subagent_tokens"`
	TotalBillable       int `json:"total_billable"`
	TotalAll            int `json:"total_all"`
}

// Diagnostic is one recorded warning.
type Diagnostic struct {
	Phase   string         `json:"phase"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// LogOverride records an explicit, pre-approved suppression of the
// log-warning-is-failure policy. It is auditable and never a default.
type LogOverride struct {
	Justification string `json:"justification"`
}

// Diagnostics carries every non-fatal warning plus the failure reason for
// runs that aborted. A failed run still persists its best-effort artifact;
// nothing fails silently.
type Diagnostics struct {
	Warnings      []Diagnostic `json:"warnings,omitempty"`
	FailurePhase  string       `json:"failure_phase,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	LogOverride   *LogOverride `json:"log_override,omitempty"`
}

// EnrichedArtifact is the persisted document for one test run.
type EnrichedArtifact struct {
	TestContext   TestContext        `json:"test_context"`
	ArtifactPaths Paths              `json:"artifact_paths"`
	Tree          map[string]NodeRef `json:"tree"`
	Agents        map[string]Agent   `json:"agents,omitempty"`
	Stats         Stats              `json:"stats"`
	Diagnostics   Diagnostics        `json:"diagnostics"`
}

// Encode renders the artifact as deterministic, indented JSON. Identical
// inputs always produce byte-identical output: map keys are sorted and the
// document embeds no wall-clock or run-identity values.
func (a *EnrichedArtifact) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses an encoded artifact.
func Decode(data []byte) (*EnrichedArtifact, error) {
	var a EnrichedArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
