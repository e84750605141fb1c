package tracetree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func correlateLines(t *testing.T, lines ...string) (*correlation, []Warning) {
	t.Helper()
	events := mustDecodeTrace(t, lines...)
	ordered, warnings := orderTrace(events)
	require.Empty(t, warnings)
	return correlate(ordered)
}

func TestCorrelateTopLevelTool(t *testing.T) {
	corr, warnings := correlateLines(t,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:00Z","tool_use_id":"t1"}`,
	)
	assert.Empty(t, warnings)
	attr, ok := corr.ByToolUseID["t1"]
	require.True(t, ok)
	assert.Equal(t, "", attr.AgentID)
}

func TestCorrelateToolInsideAgent(t *testing.T) {
	corr, warnings := correlateLines(t,
		`{"event":"subagent_start","timestamp":"2025-03-01T10:00:00Z","agent_id":"A","agent_type":"explorer"}`,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:01Z","tool_use_id":"t2"}`,
		`{"event":"subagent_stop","timestamp":"2025-03-01T10:00:02Z","agent_id":"A"}`,
	)
	assert.Empty(t, warnings)
	attr := corr.ByToolUseID["t2"]
	assert.Equal(t, "A", attr.AgentID)
	assert.Equal(t, "explorer", attr.AgentType)
	require.Contains(t, corr.Agents, "A")
}

func TestCorrelateNestedAgents(t *testing.T) {
	corr, warnings := correlateLines(t,
		`{"event":"subagent_start","timestamp":"2025-03-01T10:00:00Z","agent_id":"outer"}`,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:01Z","tool_use_id":"t-outer"}`,
		`{"event":"subagent_start","timestamp":"2025-03-01T10:00:02Z","agent_id":"inner"}`,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:03Z","tool_use_id":"t-inner"}`,
		`{"event":"subagent_stop","timestamp":"2025-03-01T10:00:04Z","agent_id":"inner"}`,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:05Z","tool_use_id":"t-outer-2"}`,
		`{"event":"subagent_stop","timestamp":"2025-03-01T10:00:06Z","agent_id":"outer"}`,
	)
	assert.Empty(t, warnings)

	// Tools belong to the innermost open context at the time they fire.
	assert.Equal(t, "outer", corr.ByToolUseID["t-outer"].AgentID)
	assert.Equal(t, "inner", corr.ByToolUseID["t-inner"].AgentID)
	assert.Equal(t, "outer", corr.ByToolUseID["t-outer-2"].AgentID)
}

func TestCorrelateUnmatchedStartStaysOpen(t *testing.T) {
	corr, warnings := correlateLines(t,
		`{"event":"subagent_start","timestamp":"2025-03-01T10:00:00Z","agent_id":"A"}`,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:01Z","tool_use_id":"t1"}`,
	)
	// The crashed agent's context stays open through end-of-run: tools are
	// still attributed, and the dangling start is flagged.
	assert.Equal(t, "A", corr.ByToolUseID["t1"].AgentID)
	require.Len(t, warnings, 1)
	assert.Equal(t, WarningCorrelation, warnings[0].Kind)
	assert.Contains(t, warnings[0].Message, "no matching stop")
}

func TestCorrelateUnmatchedStopIgnored(t *testing.T) {
	corr, warnings := correlateLines(t,
		`{"event":"subagent_stop","timestamp":"2025-03-01T10:00:00Z","agent_id":"ghost"}`,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:01Z","tool_use_id":"t1"}`,
	)
	assert.Equal(t, "", corr.ByToolUseID["t1"].AgentID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "no open matching context")
}

func TestCorrelateOutOfOrderStop(t *testing.T) {
	corr, warnings := correlateLines(t,
		`{"event":"subagent_start","timestamp":"2025-03-01T10:00:00Z","agent_id":"A"}`,
		`{"event":"subagent_start","timestamp":"2025-03-01T10:00:01Z","agent_id":"B"}`,
		`{"event":"subagent_stop","timestamp":"2025-03-01T10:00:02Z","agent_id":"A"}`,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:03Z","tool_use_id":"t1"}`,
		`{"event":"subagent_stop","timestamp":"2025-03-01T10:00:04Z","agent_id":"B"}`,
	)
	// A closed while B was still innermost: flagged, and B keeps receiving
	// tools until its own stop.
	assert.Equal(t, "B", corr.ByToolUseID["t1"].AgentID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "out of nesting order")
}

func TestCorrelateToolPostCarriesNoAttribution(t *testing.T) {
	corr, warnings := correlateLines(t,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:00Z","tool_use_id":"t1"}`,
		`{"event":"tool_post","timestamp":"2025-03-01T10:00:01Z","tool_use_id":"t1"}`,
	)
	assert.Empty(t, warnings)
	assert.Len(t, corr.ByToolUseID, 1)
}

func TestCorrelateMissingFields(t *testing.T) {
	corr, warnings := correlateLines(t,
		`{"event":"subagent_start","timestamp":"2025-03-01T10:00:00Z"}`,
		`{"event":"tool_pre","timestamp":"2025-03-01T10:00:01Z","tool_name":"bash"}`,
	)
	assert.Empty(t, corr.ByToolUseID)
	assert.Empty(t, corr.Agents)
	assert.Len(t, warnings, 2)
}
