package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTestID is returned when a test id contains path separators or
// relative components that could escape the store directory.
var ErrInvalidTestID = errors.New("invalid test id")

// historyTimestampFormat names history run directories. Fixed-width UTC so
// lexicographic order is chronological order.
const historyTimestampFormat = "20060102T150405.000Z"

// Store persists run outputs under an explicit base directory:
//
//	{base}/latest/{test-id}/   exactly the most recent run, overwritten
//	{base}/history/{test-id}/{run-timestamp}/   bounded archive
//
// Each run directory holds verbatim copies of the two source logs, which are
// never opened for write after creation, plus the enriched artifact. Every
// file lands via write-temp-then-rename, so a crash mid-write leaves either
// the old file or the new one, never a truncated mix.
//
// Concurrent runs for different test ids never share paths. The shared
// history tree is pruned with an atomic rename-then-remove per entry, which
// stays safe when two runs prune at once.
type Store struct {
	config StoreConfig
}

// NewStore creates a Store rooted at the configured base directory, creating
// it if needed.
func NewStore(config StoreConfig) (*Store, error) {
	if config.BaseDir == "" {
		return nil, errors.New("artifact store: base_dir is required")
	}
	if strings.HasPrefix(config.BaseDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		config.BaseDir = filepath.Join(home, config.BaseDir[2:])
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, err
	}
	return &Store{config: config}, nil
}

// Config returns the store's configuration.
func (s *Store) Config() StoreConfig {
	return s.config
}

// WriteRequest is one run's output.
type WriteRequest struct {
	TestID string

	// RunTime names the history directory. Must be set by the caller (the
	// artifact itself stays free of wall-clock values).
	RunTime time.Time

	// Transcript and Trace are the source logs, copied verbatim.
	Transcript []byte
	Trace      []byte

	// Artifact is the enrichment document. Its ArtifactPaths are filled in
	// by the store before encoding.
	Artifact *EnrichedArtifact
}

// WriteResult reports where a run landed.
type WriteResult struct {
	LatestDir  string
	HistoryDir string
	Pruned     []string
}

// validateTestID rejects ids that could escape the store directory.
func validateTestID(id string) error {
	if id == "" || id == "." || id == ".." ||
		strings.ContainsAny(id, "/\\") ||
		strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidTestID, id)
	}
	return nil
}

// Write persists one run: history first (write-once), then the latest
// pointers, then history pruning.
func (s *Store) Write(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	if err := validateTestID(req.TestID); err != nil {
		return nil, err
	}
	if req.Artifact == nil {
		return nil, errors.New("artifact store: nil artifact")
	}
	if req.RunTime.IsZero() {
		return nil, errors.New("artifact store: run time is required")
	}

	// A nil source log was never read (a failed run can reach here before
	// either file was opened). It is omitted rather than persisted as a
	// zero-byte file masquerading as a verbatim copy; the artifact's paths
	// block reflects which copies exist. A non-nil empty slice is a real
	// empty log and is copied as usual.
	files := map[string][]byte{}
	req.Artifact.ArtifactPaths = Paths{Artifact: ArtifactFileName}
	if req.Transcript != nil {
		files[TranscriptFileName] = req.Transcript
		req.Artifact.ArtifactPaths.Transcript = TranscriptFileName
	}
	if req.Trace != nil {
		files[TraceFileName] = req.Trace
		req.Artifact.ArtifactPaths.Trace = TraceFileName
	}
	encoded, err := req.Artifact.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	files[ArtifactFileName] = encoded

	historyDir, err := s.writeHistory(req.TestID, req.RunTime, files)
	if err != nil {
		return nil, err
	}
	latestDir, err := s.writeLatest(req.TestID, files)
	if err != nil {
		return nil, err
	}
	pruned, err := s.pruneHistory(req.TestID)
	if err != nil {
		return nil, err
	}

	return &WriteResult{
		LatestDir:  latestDir,
		HistoryDir: historyDir,
		Pruned:     pruned,
	}, nil
}

// ReadLatest loads the most recent artifact for a test id.
func (s *Store) ReadLatest(ctx context.Context, testID string) (*EnrichedArtifact, error) {
	if err := validateTestID(testID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.latestDir(testID), ArtifactFileName))
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// HistoryRuns returns the retained history timestamps for a test id, oldest
// first.
func (s *Store) HistoryRuns(testID string) ([]string, error) {
	if err := validateTestID(testID); err != nil {
		return nil, err
	}
	return s.listHistory(testID)
}

func (s *Store) latestDir(testID string) string {
	return filepath.Join(s.config.BaseDir, "latest", testID)
}

func (s *Store) historyRoot(testID string) string {
	return filepath.Join(s.config.BaseDir, "history", testID)
}

// writeHistory stages the run in a temp directory and renames it into place,
// so a history entry either exists completely or not at all.
func (s *Store) writeHistory(testID string, runTime time.Time, files map[string][]byte) (string, error) {
	root := s.historyRoot(testID)
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", err
	}
	staging := filepath.Join(root, ".tmp-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0755); err != nil {
		return "", err
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(staging, name), data, 0644); err != nil {
			os.RemoveAll(staging)
			return "", fmt.Errorf("write history %s: %w", name, err)
		}
	}
	final := filepath.Join(root, runTime.UTC().Format(historyTimestampFormat))
	if err := os.Rename(staging, final); err != nil {
		os.RemoveAll(staging)
		return "", fmt.Errorf("finalize history run: %w", err)
	}
	return final, nil
}

// writeLatest replaces each file in the latest directory atomically. The old
// copy is never opened for write; it is displaced whole by a rename.
func (s *Store) writeLatest(testID string, files map[string][]byte) (string, error) {
	dir := s.latestDir(testID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	for name, data := range files {
		if err := writeFileAtomic(filepath.Join(dir, name), data); err != nil {
			return "", fmt.Errorf("write latest %s: %w", name, err)
		}
	}
	// Files omitted from this run must not linger from a previous one, or
	// the latest directory would pair this run's artifact with stale logs.
	for _, name := range []string{TranscriptFileName, TraceFileName, ArtifactFileName} {
		if _, ok := files[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("remove stale latest %s: %w", name, err)
		}
	}
	return dir, nil
}

// pruneHistory removes the oldest runs past the configured cap. Each victim
// is renamed aside first; if the rename fails because another pruner already
// claimed it, the entry is skipped.
func (s *Store) pruneHistory(testID string) ([]string, error) {
	limit := s.config.historyLimit()
	if limit < 0 {
		return nil, nil
	}
	runs, err := s.listHistory(testID)
	if err != nil {
		return nil, err
	}
	if len(runs) <= limit {
		return nil, nil
	}

	root := s.historyRoot(testID)
	var pruned []string
	for _, name := range runs[:len(runs)-limit] {
		victim := filepath.Join(root, name)
		trash := filepath.Join(root, ".trash-"+name+"-"+uuid.NewString())
		if err := os.Rename(victim, trash); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return pruned, fmt.Errorf("prune history run %s: %w", name, err)
		}
		if err := os.RemoveAll(trash); err != nil {
			return pruned, fmt.Errorf("remove pruned run %s: %w", name, err)
		}
		pruned = append(pruned, name)
	}
	return pruned, nil
}

// listHistory returns finalized run directory names sorted lexicographically,
// which for the timestamp format means oldest first.
func (s *Store) listHistory(testID string) ([]string, error) {
	entries, err := os.ReadDir(s.historyRoot(testID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var runs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		runs = append(runs, entry.Name())
	}
	sort.Strings(runs)
	return runs, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over the destination.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
