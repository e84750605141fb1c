package tracetree

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"time"
)

// TranscriptRecord is one line of the session transcript. Decoding is
// schema-tolerant: unknown fields are ignored for typing purposes but
// preserved verbatim in Raw, which downstream stages carry untouched into the
// tree as the node's native payload.
type TranscriptRecord struct {
	ID          string      `json:"id"`
	ParentID    string      `json:"parent_id"`
	Type        string      `json:"type"`
	Timestamp   time.Time   `json:"timestamp"`
	DurationMS  int64       `json:"duration_ms"`
	ToolName    string      `json:"tool_name"`
	ToolUseID   string      `json:"tool_use_id"`
	AgentID     string      `json:"agent_id"`
	AgentType   string      `json:"agent_type"`
	IsSidechain bool        `json:"is_sidechain"`
	Usage       *TokenUsage `json:"usage"`

	// Raw is the source line exactly as read, byte-identical.
	Raw json.RawMessage `json:"-"`

	// srcSeq is the zero-based position in the source stream.
	srcSeq int
}

// TraceEventKind identifies a hook trace lifecycle marker.
type TraceEventKind string

const (
	TraceSubagentStart TraceEventKind = "subagent_start"
	TraceSubagentStop  TraceEventKind = "subagent_stop"
	TraceToolPre       TraceEventKind = "tool_pre"
	TraceToolPost      TraceEventKind = "tool_post"
)

// TraceEvent is one line of the hook trace.
type TraceEvent struct {
	Event     TraceEventKind `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	AgentID   string         `json:"agent_id"`
	AgentType string         `json:"agent_type"`
	ToolUseID string         `json:"tool_use_id"`
	ToolName  string         `json:"tool_name"`

	Raw    json.RawMessage `json:"-"`
	srcSeq int
}

// scanBufferSize bounds a single JSONL line. Transcript records embed full
// message payloads, so the default bufio limit is far too small.
const scanBufferSize = 16 * 1024 * 1024

// DecodeTranscript reads newline-delimited transcript records. Malformed
// lines are recorded as indexing warnings and skipped; the run never dies on
// a single bad line. Blank lines are ignored.
func DecodeTranscript(r io.Reader) ([]*TranscriptRecord, []Warning, error) {
	var records []*TranscriptRecord
	var warnings []Warning

	err := scanLines(r, func(lineNo int, line []byte) {
		var rec TranscriptRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			warnings = append(warnings, newWarning(PhaseIndex, WarningIndexing,
				"malformed transcript record",
				"line", lineNo, "error", err.Error()))
			return
		}
		rec.Raw = append(json.RawMessage(nil), line...)
		rec.srcSeq = len(records)
		records = append(records, &rec)
	})
	if err != nil {
		return nil, warnings, err
	}
	return records, warnings, nil
}

// DecodeTrace reads newline-delimited hook trace events. Same tolerance
// rules as DecodeTranscript.
func DecodeTrace(r io.Reader) ([]*TraceEvent, []Warning, error) {
	var events []*TraceEvent
	var warnings []Warning

	err := scanLines(r, func(lineNo int, line []byte) {
		var evt TraceEvent
		if err := json.Unmarshal(line, &evt); err != nil {
			warnings = append(warnings, newWarning(PhaseIndex, WarningIndexing,
				"malformed trace event",
				"line", lineNo, "error", err.Error()))
			return
		}
		evt.Raw = append(json.RawMessage(nil), line...)
		evt.srcSeq = len(events)
		events = append(events, &evt)
	})
	if err != nil {
		return nil, warnings, err
	}
	return events, warnings, nil
}

func scanLines(r io.Reader, handle func(lineNo int, line []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		handle(lineNo, line)
	}
	return scanner.Err()
}
