package tracetree

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecodeTranscript(t *testing.T, lines ...string) []*TranscriptRecord {
	t.Helper()
	records, warnings, err := DecodeTranscript(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	require.Empty(t, warnings)
	return records
}

func mustDecodeTrace(t *testing.T, lines ...string) []*TraceEvent {
	t.Helper()
	events, warnings, err := DecodeTrace(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	require.Empty(t, warnings)
	return events
}

func TestIndexTranscript(t *testing.T) {
	records := mustDecodeTranscript(t,
		`{"id":"a","type":"prompt"}`,
		`{"id":"b","parent_id":"a","type":"response"}`,
	)
	index, warnings, err := indexTranscript(records)
	require.Nil(t, err)
	assert.Empty(t, warnings)
	assert.Len(t, index, 2)
	assert.Equal(t, records[0], index["a"])
}

func TestIndexTranscriptDuplicateIDIsFatal(t *testing.T) {
	records := mustDecodeTranscript(t,
		`{"id":"a","type":"prompt"}`,
		`{"id":"a","type":"response"}`,
	)
	_, _, err := indexTranscript(records)
	require.NotNil(t, err)
	assert.Equal(t, PhaseIndex, err.Phase)
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Equal(t, "a", err.Context["id"])
}

func TestIndexTranscriptMissingIDWarnsAndExcludes(t *testing.T) {
	records := mustDecodeTranscript(t,
		`{"id":"a","type":"prompt"}`,
		`{"type":"response"}`,
	)
	index, warnings, err := indexTranscript(records)
	require.Nil(t, err)
	assert.Len(t, index, 1)
	require.Len(t, warnings, 1)
	assert.Equal(t, WarningIndexing, warnings[0].Kind)
	assert.Equal(t, "response", warnings[0].Context["type"])
}

func TestOrderTraceSortsByTimestamp(t *testing.T) {
	events := mustDecodeTrace(t,
		`{"event":"subagent_stop","timestamp":"2025-03-01T10:00:05Z","agent_id":"A"}`,
		`{"event":"subagent_start","timestamp":"2025-03-01T10:00:01Z","agent_id":"A"}`,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:03Z","tool_use_id":"t1"}`,
	)
	ordered, warnings := orderTrace(events)
	assert.Empty(t, warnings)
	require.Len(t, ordered, 3)
	assert.Equal(t, TraceSubagentStart, ordered[0].Event)
	assert.Equal(t, TraceToolPre, ordered[1].Event)
	assert.Equal(t, TraceSubagentStop, ordered[2].Event)
}

func TestOrderTraceTieBreakKeepsStreamOrder(t *testing.T) {
	events := mustDecodeTrace(t,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:01Z","tool_use_id":"first"}`,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:01Z","tool_use_id":"second"}`,
	)
	ordered, _ := orderTrace(events)
	require.Len(t, ordered, 2)
	assert.Equal(t, "first", ordered[0].ToolUseID)
	assert.Equal(t, "second", ordered[1].ToolUseID)
}

func TestOrderTraceExcludesInvalidEvents(t *testing.T) {
	events := []*TraceEvent{
		{Event: "mystery", Timestamp: time.Now(), srcSeq: 0},
		{Event: TraceToolPre, srcSeq: 1}, // no timestamp
		{Event: TraceToolPre, Timestamp: time.Now(), ToolUseID: "t1", srcSeq: 2},
	}
	ordered, warnings := orderTrace(events)
	assert.Len(t, ordered, 1)
	assert.Len(t, warnings, 2)
}
