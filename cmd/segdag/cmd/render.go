package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/segdag/segdag/internal/idmap"
	"github.com/segdag/segdag/internal/render"
	"github.com/segdag/segdag/pkg/spanset"
)

var (
	renderDagName string
	renderIds     string
	renderNames   bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Draw an ASCII ancestry graph",
	Long: `render draws a top-to-bottom ASCII graph of a dag's commits,
one row per id in descending order, with pipes and fork glyphs for the
parent edges. Defaults to the whole dag when --ids is omitted.`,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	binName := BinName()
	renderCmd.Example = `  # Render the whole dag
  ` + binName + ` render --dag main

  # Render only id 11, labelled with its assigned name
  ` + binName + ` render --dag main --ids 11 --names`

	renderCmd.Flags().StringVar(&renderDagName, "dag", "default", "Name of the dag to render")
	renderCmd.Flags().StringVar(&renderIds, "ids", "", "Comma-separated ids to render (default: the whole dag)")
	renderCmd.Flags().BoolVar(&renderNames, "names", false, "Label nodes with their assigned names instead of raw ids")
}

func runRender(cmd *cobra.Command, args []string) error {
	return withOpenedDag(renderDagName, func(od *openedDag) error {
		var set spanset.SpanSet
		if strings.TrimSpace(renderIds) == "" {
			set = od.Dag.All()
		} else {
			set = idSet(strings.Split(renderIds, ","))
		}

		opts := render.Options{}
		if renderNames {
			opts.Name = nameFunc(od.IdMap)
		}

		text, err := render.Render(set.Iter(), func(id spanset.Id) ([]spanset.Id, error) {
			p, err := od.Dag.Parents(spanset.Single(id))
			if err != nil {
				return nil, err
			}
			return p.Iter(), nil
		}, opts)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	})
}

func nameFunc(m *idmap.IdMap) func(spanset.Id) string {
	return func(id spanset.Id) string {
		if name, ok := m.FindNameById(id); ok {
			return string(name)
		}
		return strconv.FormatUint(uint64(id), 10)
	}
}

// withOpenedDag opens name read-only, runs fn with both stores, and
// always closes them.
func withOpenedDag(name string, fn func(od *openedDag) error) error {
	od, err := openDag(dagDirFor(name), false)
	if err != nil {
		return err
	}
	defer od.Close()
	return fn(od)
}
