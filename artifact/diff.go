package artifact

import (
	"github.com/pmezard/go-difflib/difflib"
)

// Diff returns a unified diff between two encoded artifacts, or "" when they
// are byte-identical. Rebuilding an artifact from the same source logs must
// produce an empty diff; callers use this to verify regeneration.
func Diff(a, b []byte) (string, error) {
	if string(a) == string(b) {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: "artifact.a",
		ToFile:   "artifact.b",
		Context:  3,
	})
}
