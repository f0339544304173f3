package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/xlab/treeprint"

	"ragcorpus/internal/domain"
	"ragcorpus/internal/service"
)

var (
	okMark  = color.New(color.FgGreen).Sprint("✓")
	errMark = color.New(color.FgRed).Sprint("✗")
	dim     = color.New(color.Faint).SprintFunc()
	bold    = color.New(color.Bold).SprintFunc()
	accent  = color.New(color.FgCyan).SprintFunc()
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeSource renders a one-line summary such as
// "notes.txt  document, 3 chunks, 12 kB, 2 minutes ago".
func describeSource(v service.SourceView) string {
	parts := []string{string(v.Kind)}
	if v.Kind == domain.KindWebsite && v.URL != "" {
		parts = append(parts, v.URL)
	}
	parts = append(parts, fmt.Sprintf("%d chunks", v.ChunkCount))
	if v.Size > 0 {
		parts = append(parts, humanize.Bytes(uint64(v.Size)))
	}
	if !v.UploadedAt.IsZero() {
		parts = append(parts, humanize.Time(v.UploadedAt))
	}
	return bold(v.Name) + "  " + dim(strings.Join(parts, ", "))
}

// sourceTree groups sources under their collections. A source in several
// collections appears under each.
func sourceTree(sources []service.SourceView, cols []service.CollectionView) string {
	tree := treeprint.NewWithRoot("corpus")
	branches := make(map[string]treeprint.Tree, len(cols))
	for _, c := range cols {
		branches[c.ID] = tree.AddBranch(fmt.Sprintf("%s (%d)", c.Name, c.Sources))
	}
	var unassigned treeprint.Tree
	for _, s := range sources {
		label := fmt.Sprintf("%s  [%s]", s.Name, s.ID)
		if len(s.CollectionIDs) == 0 {
			if unassigned == nil {
				unassigned = tree.AddBranch("(unassigned)")
			}
			unassigned.AddNode(label)
			continue
		}
		for _, id := range s.CollectionIDs {
			if b, ok := branches[id]; ok {
				b.AddNode(label)
			}
		}
	}
	return tree.String()
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func printBulk(w io.Writer, res service.BulkResult) {
	for _, it := range res.Items {
		if it.OK {
			fmt.Fprintf(w, "%s %s\n", okMark, it.ID)
		} else {
			fmt.Fprintf(w, "%s %s: %s\n", errMark, it.ID, it.Error)
		}
	}
	fmt.Fprintf(w, "%d succeeded, %d failed\n", res.Succeeded, res.Failed)
}
