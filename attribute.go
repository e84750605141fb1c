package tracetree

// applyAttribution stamps correlator output onto the finished tree and fills
// the tree's lookup indices. Runs after depth/seq assignment so that the
// per-agent node lists come out in rendering order.
//
// Native agent fields on a record win over correlation: subagent lifecycle
// markers in the transcript already name their agent, and the correlator only
// exists to resolve the nodes that do not.
//
// Per-agent tool counts are tallied here from the attributed tool_call nodes,
// not from trace events: a trace entry with no transcript counterpart (or a
// duplicated one) must not inflate them.
func applyAttribution(tree *TimelineTree, corr *correlation) {
	tree.Walk(func(n *TimelineNode) bool {
		if n == tree.Root {
			return true
		}
		if n.ToolUseID != "" {
			if attr, ok := corr.ByToolUseID[n.ToolUseID]; ok && n.AgentID == "" {
				n.AgentID = attr.AgentID
				n.AgentType = attr.AgentType
			}
			if n.Type == NodeTypeToolCall {
				tree.ByToolUseID[n.ToolUseID] = n.ID
			}
		}
		if n.AgentID != "" {
			tree.ByAgentID[n.AgentID] = append(tree.ByAgentID[n.AgentID], n.ID)
		}
		if n.Type == NodeTypeToolCall && n.AgentID != "" {
			agent := corr.Agents[n.AgentID]
			if agent == nil {
				agent = &AgentSummary{AgentID: n.AgentID, AgentType: n.AgentType}
				corr.Agents[n.AgentID] = agent
			}
			agent.ToolCount++
		}

		// Anchor agent summaries to their transcript lifecycle nodes.
		if agent, ok := corr.Agents[n.AgentID]; ok {
			switch n.Type {
			case NodeTypeSubagentStart:
				if agent.StartID == "" {
					agent.StartID = n.ID
				}
			case NodeTypeSubagentStop:
				if agent.StopID == "" {
					agent.StopID = n.ID
				}
			}
		}
		return true
	})

	tree.AgentCount = len(tree.ByAgentID)
}
