package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArtifact(testID string) *EnrichedArtifact {
	return &EnrichedArtifact{
		TestContext: TestContext{TestID: testID},
		Tree: map[string]NodeRef{
			"root": {NodeType: "root", Children: []string{"a"}},
			"a":    {ParentID: "root", NodeType: "prompt", Depth: 1, Seq: 1},
		},
		Stats: Stats{TotalNodes: 1, MaxDepth: 1},
	}
}

func writeRun(t *testing.T, store *Store, testID string, runTime time.Time) *WriteResult {
	t.Helper()
	res, err := store.Write(context.Background(), WriteRequest{
		TestID:     testID,
		RunTime:    runTime,
		Transcript: []byte(`{"id":"a","type":"prompt"}` + "\n"),
		Trace:      []byte(`{"event":"tool_pre"}` + "\n"),
		Artifact:   testArtifact(testID),
	})
	require.NoError(t, err)
	return res
}

func TestStoreWriteLayout(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(StoreConfig{BaseDir: base})
	require.NoError(t, err)

	runTime := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	res := writeRun(t, store, "my-test", runTime)

	assert.Equal(t, filepath.Join(base, "latest", "my-test"), res.LatestDir)
	assert.Equal(t, filepath.Join(base, "history", "my-test", "20250301T103000.000Z"), res.HistoryDir)

	for _, dir := range []string{res.LatestDir, res.HistoryDir} {
		for _, name := range []string{TranscriptFileName, TraceFileName, ArtifactFileName} {
			assert.FileExists(t, filepath.Join(dir, name))
		}
	}
}

func TestStoreLatestOverwritten(t *testing.T) {
	store, err := NewStore(StoreConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	writeRun(t, store, "t", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	second := testArtifact("t")
	second.Stats.TotalNodes = 99
	_, err = store.Write(context.Background(), WriteRequest{
		TestID:     "t",
		RunTime:    time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
		Transcript: []byte("x\n"),
		Trace:      []byte("y\n"),
		Artifact:   second,
	})
	require.NoError(t, err)

	latest, err := store.ReadLatest(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, 99, latest.Stats.TotalNodes)

	runs, err := store.HistoryRuns("t")
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStoreHistoryRetentionCap(t *testing.T) {
	store, err := NewStore(StoreConfig{BaseDir: t.TempDir(), HistoryLimit: 2})
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		writeRun(t, store, "capped", base.Add(time.Duration(i)*time.Minute))
	}

	runs, err := store.HistoryRuns("capped")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Oldest-by-lexicographic-timestamp pruned first.
	assert.Equal(t, "20250301T100100.000Z", runs[0])
	assert.Equal(t, "20250301T100200.000Z", runs[1])
}

func TestStoreRetentionIsPerTestID(t *testing.T) {
	store, err := NewStore(StoreConfig{BaseDir: t.TempDir(), HistoryLimit: 1})
	require.NoError(t, err)

	runTime := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	writeRun(t, store, "one", runTime)
	writeRun(t, store, "two", runTime)

	runs, err := store.HistoryRuns("one")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	runs, err = store.HistoryRuns("two")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStoreArtifactPathsRelative(t *testing.T) {
	store, err := NewStore(StoreConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	res := writeRun(t, store, "paths", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	data, err := os.ReadFile(filepath.Join(res.LatestDir, ArtifactFileName))
	require.NoError(t, err)
	doc, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TranscriptFileName, doc.ArtifactPaths.Transcript)
	assert.Equal(t, TraceFileName, doc.ArtifactPaths.Trace)
	assert.Equal(t, ArtifactFileName, doc.ArtifactPaths.Artifact)
}

func TestStoreNoTruncatedArtifacts(t *testing.T) {
	store, err := NewStore(StoreConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	res := writeRun(t, store, "atomic", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	// No staging leftovers after a successful write.
	entries, err := os.ReadDir(filepath.Dir(res.HistoryDir))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, entry.Name()[0] == '.', "staging dir left behind: %s", entry.Name())
	}
	entries, err = os.ReadDir(res.LatestDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestStoreOmitsUnreadSources(t *testing.T) {
	store, err := NewStore(StoreConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	// First a complete run, then one whose sources were never read.
	res := writeRun(t, store, "partial", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	assert.FileExists(t, filepath.Join(res.LatestDir, TranscriptFileName))

	res, err = store.Write(context.Background(), WriteRequest{
		TestID:   "partial",
		RunTime:  time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
		Artifact: testArtifact("partial"),
	})
	require.NoError(t, err)

	// No zero-byte stand-ins, and no stale copies from the earlier run.
	assert.NoFileExists(t, filepath.Join(res.LatestDir, TranscriptFileName))
	assert.NoFileExists(t, filepath.Join(res.LatestDir, TraceFileName))
	assert.NoFileExists(t, filepath.Join(res.HistoryDir, TranscriptFileName))
	assert.FileExists(t, filepath.Join(res.LatestDir, ArtifactFileName))

	latest, err := store.ReadLatest(context.Background(), "partial")
	require.NoError(t, err)
	assert.Equal(t, "", latest.ArtifactPaths.Transcript)
	assert.Equal(t, "", latest.ArtifactPaths.Trace)
	assert.Equal(t, ArtifactFileName, latest.ArtifactPaths.Artifact)
}

func TestStoreRejectsBadTestIDs(t *testing.T) {
	store, err := NewStore(StoreConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)

	for _, id := range []string{"", ".", "..", "a/b", `a\b`, "a..b"} {
		_, err := store.Write(context.Background(), WriteRequest{
			TestID:   id,
			RunTime:  time.Now(),
			Artifact: testArtifact("x"),
		})
		assert.ErrorIs(t, err, ErrInvalidTestID, "id %q", id)
	}
}

func TestStoreRequiresRunTime(t *testing.T) {
	store, err := NewStore(StoreConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	_, err = store.Write(context.Background(), WriteRequest{
		TestID:   "t",
		Artifact: testArtifact("t"),
	})
	assert.Error(t, err)
}

func TestEncodeDeterministic(t *testing.T) {
	a := testArtifact("det")
	first, err := a.Encode()
	require.NoError(t, err)
	second, err := a.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	diff, err := Diff(first, second)
	require.NoError(t, err)
	assert.Equal(t, "", diff)
}

func TestDiffReportsChanges(t *testing.T) {
	a := testArtifact("d")
	first, err := a.Encode()
	require.NoError(t, err)
	a.Stats.TotalNodes = 2
	second, err := a.Encode()
	require.NoError(t, err)

	diff, err := Diff(first, second)
	require.NoError(t, err)
	assert.Contains(t, diff, `"total_nodes": 1`)
	assert.Contains(t, diff, `"total_nodes": 2`)
}
