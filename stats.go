package tracetree

// Stats holds the aggregate counts for one run. All token figures are plain
// integer sums of what the producing system reported; there is no estimation
// or rounding.
type Stats struct {
	TotalNodes    int `json:"total_nodes"`
	MaxDepth      int `json:"max_depth"`
	AgentCount    int `json:"agent_count"`
	ToolCallCount int `json:"tool_call_count"`

	Usage TokenUsage `json:"usage"`

	// TotalBillable is input + output + cache creation. Cache reads are not
	// billed and are excluded.
	TotalBillable int `json:"total_billable"`

	// TotalAll sums every token category including cache reads.
	TotalAll int `json:"total_all"`
}

// computeStats makes a single pass over the finished tree.
func computeStats(tree *TimelineTree) *Stats {
	stats := &Stats{
		TotalNodes: tree.TotalNodes,
		MaxDepth:   tree.MaxDepth,
		AgentCount: tree.AgentCount,
	}

	tree.Walk(func(n *TimelineNode) bool {
		if n == tree.Root {
			return true
		}
		if n.Type == NodeTypeToolCall {
			stats.ToolCallCount++
		}
		if n.Type == NodeTypeResponse && n.Usage != nil {
			stats.Usage.Add(n.Usage)
			if n.AgentID != "" {
				stats.Usage.SubagentTokens += n.Usage.TotalAll()
			}
		}
		return true
	})

	stats.TotalBillable = stats.Usage.TotalBillable()
	stats.TotalAll = stats.Usage.TotalAll()
	return stats
}
