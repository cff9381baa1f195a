package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/segdag/segdag/internal/engine"
	"github.com/segdag/segdag/pkg/spanset"
)

var queryDagName string

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run an ancestry query against a built dag",
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.PersistentFlags().StringVar(&queryDagName, "dag", "default", "Name of the dag to query")

	addQuerySubcommand("ancestors", "ancestors of a set of ids", func(d *engine.Dag, ids []string) (spanset.SpanSet, error) {
		return d.Ancestors(idSet(ids))
	})
	addQuerySubcommand("descendants", "descendants of a set of ids", func(d *engine.Dag, ids []string) (spanset.SpanSet, error) {
		return d.Descendants(idSet(ids))
	})
	addQuerySubcommand("parents", "immediate parents of a set of ids", func(d *engine.Dag, ids []string) (spanset.SpanSet, error) {
		return d.Parents(idSet(ids))
	})
	addQuerySubcommand("children", "immediate children of a set of ids", func(d *engine.Dag, ids []string) (spanset.SpanSet, error) {
		return d.Children(idSet(ids))
	})
	addQuerySubcommand("heads", "heads of a set of ids", func(d *engine.Dag, ids []string) (spanset.SpanSet, error) {
		return d.Heads(idSet(ids))
	})
	addQuerySubcommand("roots", "roots of a set of ids", func(d *engine.Dag, ids []string) (spanset.SpanSet, error) {
		return d.Roots(idSet(ids))
	})

	rangeCmd := &cobra.Command{
		Use:   "range",
		Short: "descendants of --roots that are also ancestors of --heads",
		RunE: func(cmd *cobra.Command, args []string) error {
			rootsFlag, _ := cmd.Flags().GetString("roots")
			headsFlag, _ := cmd.Flags().GetString("heads")
			return withDag(queryDagName, func(d *engine.Dag) error {
				res, err := d.Range(idSet(strings.Split(rootsFlag, ",")), idSet(strings.Split(headsFlag, ",")))
				if err != nil {
					return err
				}
				fmt.Println(res.String())
				return nil
			})
		},
	}
	rangeCmd.Flags().String("roots", "", "Comma-separated root ids")
	rangeCmd.Flags().String("heads", "", "Comma-separated head ids")
	queryCmd.AddCommand(rangeCmd)

	gcaCmd := &cobra.Command{
		Use:   "gca",
		Short: "greatest common ancestor(s) of two ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _ := cmd.Flags().GetUint64("a")
			b, _ := cmd.Flags().GetUint64("b")
			all, _ := cmd.Flags().GetBool("all")
			return withDag(queryDagName, func(d *engine.Dag) error {
				if all {
					res, err := d.GcaAll(spanset.Id(a), spanset.Id(b))
					if err != nil {
						return err
					}
					fmt.Println(res.String())
					return nil
				}
				res, ok, err := d.GcaOne(spanset.Id(a), spanset.Id(b))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("none")
					return nil
				}
				fmt.Println(res)
				return nil
			})
		},
	}
	gcaCmd.Flags().Uint64("a", 0, "First id")
	gcaCmd.Flags().Uint64("b", 0, "Second id")
	gcaCmd.Flags().Bool("all", false, "Print the full gca antichain instead of one element")
	queryCmd.AddCommand(gcaCmd)

	isAncCmd := &cobra.Command{
		Use:   "is-ancestor",
		Short: "report whether --a is an ancestor of --b",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _ := cmd.Flags().GetUint64("a")
			b, _ := cmd.Flags().GetUint64("b")
			return withDag(queryDagName, func(d *engine.Dag) error {
				res, err := d.IsAncestor(spanset.Id(a), spanset.Id(b))
				if err != nil {
					return err
				}
				fmt.Println(res)
				return nil
			})
		},
	}
	isAncCmd.Flags().Uint64("a", 0, "Candidate ancestor id")
	isAncCmd.Flags().Uint64("b", 0, "Candidate descendant id")
	queryCmd.AddCommand(isAncCmd)

	allCmd := &cobra.Command{
		Use:   "all",
		Short: "every id known to the dag",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDag(queryDagName, func(d *engine.Dag) error {
				fmt.Println(d.All().String())
				return nil
			})
		},
	}
	queryCmd.AddCommand(allCmd)
}

func addQuerySubcommand(use, short string, fn func(d *engine.Dag, ids []string) (spanset.SpanSet, error)) {
	sub := &cobra.Command{
		Use:   use + " --ids <id,id,...>",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			idsFlag, _ := cmd.Flags().GetString("ids")
			return withDag(queryDagName, func(d *engine.Dag) error {
				res, err := fn(d, strings.Split(idsFlag, ","))
				if err != nil {
					return err
				}
				fmt.Println(res.String())
				return nil
			})
		},
	}
	sub.Flags().String("ids", "", "Comma-separated ids")
	queryCmd.AddCommand(sub)
}

func idSet(tokens []string) spanset.SpanSet {
	ids := make([]spanset.Id, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.ParseUint(tok, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, spanset.Id(n))
	}
	return spanset.FromIds(ids)
}

// withDag opens name read-only, runs fn, and always closes it.
func withDag(name string, fn func(d *engine.Dag) error) error {
	od, err := openDag(dagDirFor(name), false)
	if err != nil {
		return err
	}
	defer od.Close()
	return fn(od.Dag)
}
