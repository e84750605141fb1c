package tracetree

import "sort"

// indexTranscript builds the id-keyed record index. A duplicate id within the
// transcript is a fatal indexing error: overwriting would silently discard a
// record, and guessing which copy is authoritative is worse than failing.
// Records with no id cannot participate in the tree; they are excluded with a
// warning.
func indexTranscript(records []*TranscriptRecord) (map[string]*TranscriptRecord, []Warning, *Error) {
	index := make(map[string]*TranscriptRecord, len(records))
	var warnings []Warning

	for _, rec := range records {
		if rec.ID == "" {
			warnings = append(warnings, newWarning(PhaseIndex, WarningIndexing,
				"transcript record missing id; excluded from tree",
				"src_seq", rec.srcSeq, "type", rec.Type))
			continue
		}
		if prev, ok := index[rec.ID]; ok {
			return index, warnings, NewError(PhaseIndex, "duplicate transcript id", ErrDuplicateID,
				"id", rec.ID, "first_src_seq", prev.srcSeq, "second_src_seq", rec.srcSeq)
		}
		index[rec.ID] = rec
	}
	return index, warnings, nil
}

// orderTrace validates trace events and returns them in timestamp order with
// a stable tie-break on original stream position. Events with no recognized
// kind or no timestamp cannot be correlated; they are excluded with a
// warning.
func orderTrace(events []*TraceEvent) ([]*TraceEvent, []Warning) {
	ordered := make([]*TraceEvent, 0, len(events))
	var warnings []Warning

	for _, evt := range events {
		switch evt.Event {
		case TraceSubagentStart, TraceSubagentStop, TraceToolPre, TraceToolPost:
		default:
			warnings = append(warnings, newWarning(PhaseIndex, WarningIndexing,
				"unknown trace event kind; excluded from correlation",
				"event", string(evt.Event), "src_seq", evt.srcSeq))
			continue
		}
		if evt.Timestamp.IsZero() {
			warnings = append(warnings, newWarning(PhaseIndex, WarningIndexing,
				"trace event missing timestamp; excluded from correlation",
				"event", string(evt.Event), "src_seq", evt.srcSeq))
			continue
		}
		ordered = append(ordered, evt)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].srcSeq < ordered[j].srcSeq
	})
	return ordered, warnings
}
