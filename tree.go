package tracetree

import "time"

// buildTree links indexed transcript records into a parent-to-children tree.
//
// Linking follows declared parent references only. A record whose parent_id
// names an unknown node becomes a root-level orphan: it is attached directly
// under the synthetic root and an orphan warning is recorded. Inferring a
// parent from timestamp proximity is rejected outright; that heuristic is
// exactly the fragility this package exists to remove.
//
// Records are visited in original stream order so that child lists are
// deterministic before the sequence pass re-sorts them.
func buildTree(records []*TranscriptRecord, index map[string]*TranscriptRecord, runStart time.Time) (*TimelineTree, []Warning, *Error) {
	root := &TimelineNode{
		ID:        RootNodeID,
		Type:      NodeTypeRoot,
		Timestamp: runStart,
	}
	tree := &TimelineTree{
		Root:        root,
		Nodes:       map[string]*TimelineNode{root.ID: root},
		ByToolUseID: make(map[string]string),
		ByAgentID:   make(map[string][]string),
	}
	var warnings []Warning

	if _, taken := index[RootNodeID]; taken {
		return tree, warnings, NewError(PhaseTreeBuild, "transcript id collides with synthetic root", ErrDuplicateID,
			"id", RootNodeID)
	}

	// Cycle check runs on the raw parent references before any node is
	// attached: a parent chain that revisits a record is a producer bug and
	// no tree is built from it.
	if err := checkCycles(index); err != nil {
		return tree, warnings, err
	}

	for _, rec := range records {
		if rec.ID == "" {
			continue // excluded by the indexer, warning already recorded
		}
		node := &TimelineNode{
			ID:            rec.ID,
			Type:          NodeType(rec.Type),
			ParentID:      rec.ParentID,
			Timestamp:     rec.Timestamp,
			DurationMS:    rec.DurationMS,
			IsSidechain:   rec.IsSidechain,
			ToolName:      rec.ToolName,
			ToolUseID:     rec.ToolUseID,
			AgentID:       rec.AgentID,
			AgentType:     rec.AgentType,
			Usage:         rec.Usage,
			NativePayload: rec.Raw,
			srcSeq:        rec.srcSeq,
		}
		if !rec.Timestamp.IsZero() && !runStart.IsZero() {
			node.ElapsedMS = rec.Timestamp.Sub(runStart).Milliseconds()
		}
		tree.Nodes[node.ID] = node
	}

	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		node := tree.Nodes[rec.ID]
		switch {
		case rec.ParentID == "":
			// A null parent is a legitimate top-level record.
			node.ParentID = root.ID
			root.Children = append(root.Children, node.ID)
		case tree.Nodes[rec.ParentID] != nil:
			parent := tree.Nodes[rec.ParentID]
			parent.Children = append(parent.Children, node.ID)
		default:
			warnings = append(warnings, newWarning(PhaseTreeBuild, WarningOrphan,
				"record references unknown parent; reattached at root",
				"id", node.ID, "parent_id", rec.ParentID))
			node.ParentID = root.ID
			root.Children = append(root.Children, node.ID)
		}
	}

	// The synthetic root takes the earliest timestamp among its direct
	// children; run start applies only when no child carries one.
	var earliest time.Time
	for _, id := range root.Children {
		child := tree.Nodes[id]
		if child.Timestamp.IsZero() {
			continue
		}
		if earliest.IsZero() || child.Timestamp.Before(earliest) {
			earliest = child.Timestamp
		}
	}
	if !earliest.IsZero() {
		root.Timestamp = earliest
	}

	return tree, warnings, nil
}

// checkCycles walks each record's ancestor chain toward a root. Revisiting a
// record on the way up is fatal.
func checkCycles(index map[string]*TranscriptRecord) *Error {
	// checked holds records already proven to reach a root.
	checked := make(map[string]bool, len(index))

	for id, rec := range index {
		if checked[id] {
			continue
		}
		visited := map[string]bool{}
		cur := rec
		for {
			if checked[cur.ID] {
				break
			}
			if visited[cur.ID] {
				return NewError(PhaseTreeBuild, "cycle detected in parent chain", ErrCycle,
					"id", cur.ID, "start_id", id)
			}
			visited[cur.ID] = true
			parent, ok := index[cur.ParentID]
			if cur.ParentID == "" || !ok {
				break // reached a root or an orphan boundary
			}
			cur = parent
		}
		for v := range visited {
			checked[v] = true
		}
	}
	return nil
}
