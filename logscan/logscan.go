// Package logscan enforces the log-warning-is-failure policy for a test run.
//
// It scans the run's captured process logs for WARNING and ERROR level
// entries. By default any such entry marks the run as failed; there is no
// silent degradation. The only way to suppress the failure is an explicit
// Override carrying a human-readable justification, and the override is
// itself recorded in the run's diagnostics.
package logscan

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrOverrideJustification is returned when an override is supplied without
// a justification string.
var ErrOverrideJustification = errors.New("log policy override requires a justification")

// levelPattern matches leveled log lines. It looks for a WARNING or ERROR
// token in the common prefix shapes ("ERROR:", "[WARNING]", "level=error",
// "WARN ") rather than anywhere in the line, so messages that merely mention
// the word "error" do not trip the policy.
var levelPattern = regexp.MustCompile(`(?i)(?:^|[\s\[|])(?:level=)?(warn(?:ing)?|error)(?:$|[\s\]:=|,])`)

// Entry is one offending log line.
type Entry struct {
	File  string `json:"file"`
	Line  int    `json:"line"`
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Override is an explicit, pre-approved suppression of the failure policy.
type Override struct {
	// Justification explains, for a human auditor, why warnings in this
	// run's logs are acceptable. Required.
	Justification string `json:"justification"`
}

// Report is the outcome of scanning one run's logs.
type Report struct {
	// Entries lists every WARNING/ERROR line found, in file order.
	Entries []Entry `json:"entries,omitempty"`

	// Override records the suppression applied to this run, if any.
	Override *Override `json:"override,omitempty"`

	// Failed is true when entries were found and no valid override applies.
	Failed bool `json:"failed"`
}

// Scan reads the log files selected by the given glob patterns, rooted at
// root, and collects WARNING/ERROR entries. Patterns use doublestar syntax
// (for example "logs/**/*.log"). A pattern matching nothing is not an error;
// an unreadable matched file is.
func Scan(root string, patterns []string) (*Report, error) {
	report := &Report{}
	seen := map[string]bool{}

	for _, pattern := range patterns {
		matches, err := doublestar.Glob(os.DirFS(root), pattern)
		if err != nil {
			return nil, fmt.Errorf("bad log glob %q: %w", pattern, err)
		}
		for _, rel := range matches {
			if seen[rel] {
				continue
			}
			seen[rel] = true
			entries, err := scanFile(root, rel)
			if err != nil {
				return nil, err
			}
			report.Entries = append(report.Entries, entries...)
		}
	}

	report.Failed = len(report.Entries) > 0
	return report, nil
}

// Apply evaluates an override against the report. A valid override clears
// the failure but stays recorded; an override without a justification is
// rejected and the failure stands.
func (r *Report) Apply(override *Override) error {
	if override == nil {
		return nil
	}
	if strings.TrimSpace(override.Justification) == "" {
		return ErrOverrideJustification
	}
	r.Override = override
	r.Failed = false
	return nil
}

func scanFile(root, rel string) ([]Entry, error) {
	path := filepath.Join(root, rel)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log %q: %w", rel, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		m := levelPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		level := strings.ToUpper(m[1])
		if level == "WARN" {
			level = "WARNING"
		}
		entries = append(entries, Entry{
			File:  rel,
			Line:  lineNo,
			Level: level,
			Text:  strings.TrimSpace(line),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log %q: %w", rel, err)
	}
	return entries, nil
}
