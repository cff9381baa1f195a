// Package render draws a dag's history as a line-oriented, box-drawing
// ASCII graph: one row per commit in descending id order, with
// vertical pipes for straight ancestry and a fork glyph at the rows
// where a commit has more than one parent. Commits with several
// children get no special glyph.
package render

import (
	"fmt"
	"strings"

	"github.com/segdag/segdag/pkg/spanset"
)

// Id is a dense commit identifier, shared with the spanset package.
type Id = spanset.Id

// GetParents resolves an id to its parent ids, descending order not
// required.
type GetParents func(id Id) ([]Id, error)

// NameFunc renders an id's display label. If nil, the id's decimal
// form is used.
type NameFunc func(id Id) string

// Options controls the rendered output.
type Options struct {
	Name NameFunc
}

// Render draws the ancestry graph covering every id in ids (typically
// the output of a dag's Ancestors query), one row per id in descending
// order. Each node row shows the commit's glyph and label; the link
// row beneath it shows "│" for a single-parent edge, "├─╮" where the
// commit forks into two or more parents, and "~" for a root with no
// parents.
func Render(ids []Id, getParents GetParents, opts Options) (string, error) {
	name := opts.Name
	if name == nil {
		name = func(id Id) string { return fmt.Sprintf("%d", id) }
	}

	sorted := append([]Id(nil), ids...)
	sortDescending(sorted)

	var out strings.Builder
	for i, id := range sorted {
		parents, err := getParents(id)
		if err != nil {
			return "", err
		}
		if i > 0 {
			out.WriteString("\n")
		}
		fmt.Fprintf(&out, "o  %s", name(id))
		switch len(parents) {
		case 0:
			out.WriteString("\n~")
		case 1:
			out.WriteString("\n│")
		default:
			out.WriteString("\n├─" + strings.Repeat("┬─", len(parents)-2) + "╮")
		}
	}
	return out.String(), nil
}

func sortDescending(ids []Id) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] < ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
