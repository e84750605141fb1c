package tracetree

import (
	"encoding/json"
	"time"
)

// NodeType identifies the kind of a timeline node.
type NodeType string

const (
	NodeTypeRoot          NodeType = "root"
	NodeTypePrompt        NodeType = "prompt"
	NodeTypeResponse      NodeType = "response"
	NodeTypeToolCall      NodeType = "tool_call"
	NodeTypeToolResult    NodeType = "tool_result"
	NodeTypeSubagentStart NodeType = "subagent_start"
	NodeTypeSubagentStop  NodeType = "subagent_stop"
)

func (t NodeType) String() string {
	return string(t)
}

// RootNodeID is the id of the synthetic session root. Transcript ids are
// producer-native; a transcript record reusing this id is reported as a
// duplicate-id indexing error rather than silently renamed.
const RootNodeID = "root"

// TimelineNode is one element of the reconstructed execution tree.
//
// Nodes are created once by the tree builder and read-only thereafter.
// Children are referenced by id rather than by embedded pointers; the tree is
// stored as an id-keyed map to keep ownership acyclic.
type TimelineNode struct {
	// ID is the native identifier from the transcript, unique across a run.
	ID string `json:"id"`

	// Type classifies the node.
	Type NodeType `json:"node_type"`

	// ParentID references the originating node. Empty only for the synthetic
	// root and for diagnosed orphans reattached beneath it.
	ParentID string `json:"parent_id,omitempty"`

	// Children holds the ids of child nodes in final rendering order.
	Children []string `json:"children,omitempty"`

	// Depth is 0 for the synthetic root; a child's depth is always its
	// parent's depth plus one.
	Depth int `json:"depth"`

	// Timestamp is the record's native timestamp. The synthetic root takes
	// the minimum timestamp of its direct children, or the run start time
	// when it has none.
	Timestamp time.Time `json:"timestamp"`

	// ElapsedMS is the offset from run start, when known.
	ElapsedMS int64 `json:"elapsed_ms,omitempty"`

	// DurationMS is the native duration of the event, when known.
	DurationMS int64 `json:"duration_ms,omitempty"`

	// AgentID and AgentType carry the attribution resolved by the
	// correlator. Empty means the node executed in the top-level session.
	AgentID   string `json:"agent_id,omitempty"`
	AgentType string `json:"agent_type,omitempty"`

	// IsSidechain is true when the native record marks a branching
	// sub-agent conversation.
	IsSidechain bool `json:"is_sidechain,omitempty"`

	// ToolName and ToolUseID are present only on tool_call and tool_result
	// nodes.
	ToolName  string `json:"tool_name,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`

	// NativePayload is the original transcript record, byte-identical to the
	// source line it was built from. Never transformed.
	NativePayload json.RawMessage `json:"native_payload,omitempty"`

	// Seq is the final depth-first rendering order, a permutation of 1..N
	// assigned once per tree. The synthetic root has no seq.
	Seq int `json:"seq,omitempty"`

	// Usage holds token usage reported on response-type records.
	Usage *TokenUsage `json:"usage,omitempty"`

	// srcSeq is the record's position in the original transcript stream,
	// used as the stable tie-break when siblings share a timestamp.
	srcSeq int
}

// TimelineTree is the reconstructed execution tree for one test run, stored
// as an id-keyed node map with lookup indices.
type TimelineTree struct {
	// Root is the synthetic session root, depth 0, always present.
	Root *TimelineNode `json:"root"`

	// Nodes indexes every node (including the root) by id.
	Nodes map[string]*TimelineNode `json:"nodes"`

	// ByToolUseID maps a tool_use_id to the id of its tool_call node.
	ByToolUseID map[string]string `json:"by_tool_use_id,omitempty"`

	// ByAgentID maps an agent id to the ids of nodes attributed to it, in
	// rendering order.
	ByAgentID map[string][]string `json:"by_agent_id,omitempty"`

	// TotalNodes counts real nodes; the synthetic root is excluded.
	TotalNodes int `json:"total_nodes"`

	// MaxDepth is the deepest node depth in the tree.
	MaxDepth int `json:"max_depth"`

	// AgentCount is the number of distinct attributed agent ids.
	AgentCount int `json:"agent_count"`
}

// Node returns the node with the given id, or nil.
func (t *TimelineTree) Node(id string) *TimelineNode {
	return t.Nodes[id]
}

// ChildrenOf returns the child nodes of the given node in rendering order.
func (t *TimelineTree) ChildrenOf(n *TimelineNode) []*TimelineNode {
	children := make([]*TimelineNode, 0, len(n.Children))
	for _, id := range n.Children {
		if child := t.Nodes[id]; child != nil {
			children = append(children, child)
		}
	}
	return children
}

// Walk visits every node depth-first in rendering order, starting at the
// root. The visit function returning false stops the walk.
func (t *TimelineTree) Walk(visit func(n *TimelineNode) bool) {
	var walk func(n *TimelineNode) bool
	walk = func(n *TimelineNode) bool {
		if !visit(n) {
			return false
		}
		for _, child := range t.ChildrenOf(n) {
			if !walk(child) {
				return false
			}
		}
		return true
	}
	if t.Root != nil {
		walk(t.Root)
	}
}

// AgentSummary describes one sub-agent observed during a run.
type AgentSummary struct {
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type,omitempty"`

	// StartID and StopID reference the transcript nodes marking the agent's
	// lifecycle. StopID is empty when the agent never terminated.
	StartID string `json:"start_id,omitempty"`
	StopID  string `json:"stop_id,omitempty"`

	// ToolCount is the number of tool_call nodes attributed to this agent.
	ToolCount int `json:"tool_count"`
}

// TokenUsage accumulates token counts across a run. All values are plain
// integer sums of what the producing system reported.
type TokenUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`

	// SubagentTokens sums usage on response nodes attributed to a sub-agent,
	// so nested spend is separable from top-level spend.
	SubagentTokens int `json:"subagent_tokens"`
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.SubagentTokens += other.SubagentTokens
}

// TotalBillable returns the billable token total. Cache reads are not billed.
func (u *TokenUsage) TotalBillable() int {
	return u.InputTokens + u.OutputTokens + u.CacheCreationTokens
}

// TotalAll returns the total of every token category.
func (u *TokenUsage) TotalAll() int {
	return u.InputTokens + u.OutputTokens + u.CacheCreationTokens + u.CacheReadTokens
}
