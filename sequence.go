package tracetree

import "sort"

// computeDepthAndSeq assigns tree depth and the final depth-first rendering
// order in one pass from the root.
//
// Depth is recursive and unbounded: a child is always one deeper than its
// parent, and the tree reports nesting as it actually happened. Any visual
// compression of deep trees is a rendering concern, not a modeling one.
//
// Sequence is depth-first: at each node children are sorted by timestamp
// ascending with a stable tie-break on original stream position, so two
// same-millisecond events keep their input order. Seq starts at 1 on the
// root's first child and increments once per visit, producing a permutation
// of 1..TotalNodes.
func computeDepthAndSeq(tree *TimelineTree) *Error {
	if tree == nil || tree.Root == nil {
		return NewError(PhaseDepthCompute, "no tree to order", nil)
	}

	seq := 0
	maxDepth := 0

	var visit func(n *TimelineNode, depth int)
	visit = func(n *TimelineNode, depth int) {
		n.Depth = depth
		if depth > maxDepth {
			maxDepth = depth
		}
		if n != tree.Root {
			seq++
			n.Seq = seq
		}

		sort.SliceStable(n.Children, func(i, j int) bool {
			a, b := tree.Nodes[n.Children[i]], tree.Nodes[n.Children[j]]
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.srcSeq < b.srcSeq
		})
		for _, id := range n.Children {
			visit(tree.Nodes[id], depth+1)
		}
	}
	visit(tree.Root, 0)

	tree.MaxDepth = maxDepth
	tree.TotalNodes = seq
	return nil
}
