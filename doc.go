// Package tracetree reconstructs a faithful execution tree from the two
// partially-redundant event logs produced by an AI-agent test run: the
// hierarchical session transcript (one JSONL record per turn or tool event,
// linked by parent references) and the flatter hook trace (lifecycle markers
// for sub-agent spawns and tool invocations).
//
// The two logs disagree on granularity and linkage and may contain nested or
// concurrent sub-agents. The pipeline merges them into a single tree that
// attributes every tool call to the exact agent context that issued it,
// without mutating either source log. Enrichment is strictly additive: every
// node carries its original record verbatim.
//
// The core types are:
//
//   - [Pipeline] runs one test run's logs through all phases and persists the
//     enriched artifact.
//   - [TimelineNode] and [TimelineTree] model the reconstructed tree.
//   - [Result] carries a phase's value together with accumulated warnings, or
//     a phase-tagged error plus the best-available partial value.
//
// Persistence lives in [github.com/deepnoodle-ai/tracetree/artifact] and the
// run-log warning policy in [github.com/deepnoodle-ai/tracetree/logscan].
// Rendering is an external concern: viewers read the persisted artifact for
// structure and resolve full content lazily from the preserved transcript
// copy by node id.
package tracetree
