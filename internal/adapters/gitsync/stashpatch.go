package gitsync

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// summarizePatch renders a one-line-per-file summary of a stash patch, e.g.
// "src/app.js +3 -1". Unparseable patches yield an empty summary.
func summarizePatch(patch string) string {
	if strings.TrimSpace(patch) == "" {
		return ""
	}
	files, err := diff.NewMultiFileDiffReader(strings.NewReader(patch + "\n")).ReadAllFiles()
	if err != nil || len(files) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("stashed changes:")
	for _, fd := range files {
		st := fd.Stat()
		fmt.Fprintf(&b, "\n  %s +%d -%d", patchPath(fd), st.Added+st.Changed, st.Deleted+st.Changed)
	}
	return b.String()
}

func patchPath(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		name = fd.OrigName
	}
	name = strings.TrimPrefix(name, "b/")
	return strings.TrimPrefix(name, "a/")
}
