package tracetree

// attribution is the agent context resolved for one tool_use_id. Empty
// AgentID means the tool ran in the top-level session.
type attribution struct {
	AgentID   string
	AgentType string
}

// correlation is the correlator's output: which agent issued each tool call,
// plus a per-agent lifecycle summary.
type correlation struct {
	// ByToolUseID attributes each observed tool_use_id to an agent context.
	ByToolUseID map[string]attribution

	// Agents summarizes every agent that opened a context during the run.
	// Tool counts are filled in later from the attributed tool_call nodes,
	// not from trace events, so the two logs diverging never skews them.
	Agents map[string]*AgentSummary
}

// correlate derives agent attribution from hook trace lifecycle events.
//
// It scans events in timestamp order maintaining a stack of currently-open
// agent contexts: subagent_start pushes, the matching subagent_stop pops, and
// a tool_pre seen while the stack is non-empty belongs to the innermost open
// context. The stack rule is deliberate: timestamp-range overlap breaks under
// concurrent agents and process-id correlation is unreliable across
// environments, while lifecycle order is deterministic.
//
// Unmatched lifecycle events never discard data. A start with no stop keeps
// its context open through end-of-run (crashed or unterminated agent) and is
// flagged; a stop with no open context is flagged and ignored.
func correlate(events []*TraceEvent) (*correlation, []Warning) {
	out := &correlation{
		ByToolUseID: make(map[string]attribution),
		Agents:      make(map[string]*AgentSummary),
	}
	var warnings []Warning
	var stack []*AgentSummary

	for _, evt := range events {
		switch evt.Event {
		case TraceSubagentStart:
			if evt.AgentID == "" {
				warnings = append(warnings, newWarning(PhaseCorrelate, WarningCorrelation,
					"subagent_start missing agent_id; context ignored",
					"src_seq", evt.srcSeq))
				continue
			}
			agent := &AgentSummary{
				AgentID:   evt.AgentID,
				AgentType: evt.AgentType,
			}
			if _, seen := out.Agents[evt.AgentID]; seen {
				warnings = append(warnings, newWarning(PhaseCorrelate, WarningCorrelation,
					"subagent_start for already-seen agent_id",
					"agent_id", evt.AgentID))
			}
			out.Agents[evt.AgentID] = agent
			stack = append(stack, agent)

		case TraceSubagentStop:
			idx := -1
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].AgentID == evt.AgentID {
					idx = i
					break
				}
			}
			if idx < 0 {
				warnings = append(warnings, newWarning(PhaseCorrelate, WarningCorrelation,
					"subagent_stop with no open matching context; ignored",
					"agent_id", evt.AgentID))
				continue
			}
			if idx != len(stack)-1 {
				warnings = append(warnings, newWarning(PhaseCorrelate, WarningCorrelation,
					"subagent_stop out of nesting order",
					"agent_id", evt.AgentID,
					"innermost", stack[len(stack)-1].AgentID))
			}
			stack = append(stack[:idx], stack[idx+1:]...)

		case TraceToolPre:
			if evt.ToolUseID == "" {
				warnings = append(warnings, newWarning(PhaseCorrelate, WarningCorrelation,
					"tool_pre missing tool_use_id; not attributable",
					"tool_name", evt.ToolName, "src_seq", evt.srcSeq))
				continue
			}
			attr := attribution{}
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				attr = attribution{AgentID: top.AgentID, AgentType: top.AgentType}
			}
			out.ByToolUseID[evt.ToolUseID] = attr

		case TraceToolPost:
			// Attribution happens at tool_pre; the post marker carries no
			// additional context.
		}
	}

	// Contexts still open at end-of-run belong to agents that crashed or
	// never terminated. Their attributions stand.
	for _, agent := range stack {
		warnings = append(warnings, newWarning(PhaseCorrelate, WarningCorrelation,
			"subagent_start with no matching stop before end of run",
			"agent_id", agent.AgentID, "agent_type", agent.AgentType))
	}

	return out, warnings
}
