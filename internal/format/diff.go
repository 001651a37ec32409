package format

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ExplanationDiff marks what changed between two explanations: removed
// text as [-...-], inserted text as {+...+}. Identical input yields "".
func ExplanationDiff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}
