package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/segdag/segdag/internal/catalog"
)

var (
	buildDagName string
	buildInput   string
	buildHead    string
	buildTiming  bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Assign ids and build segments for a dag up to a head",
	Long: `build reads a text edge list (one commit per line: "name
parent1,parent2,..."), assigns dense ids to every name reachable from
the head in reverse-post-order via the id map, then builds the segment
hierarchy over those ids. Both stores are flushed durably on success.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	binName := BinName()
	buildCmd.Example = `  # Build "main" from an edge list, using the list's last entry as head
  ` + binName + ` build --dag main --input edges.txt

  # Build up to an explicit head name
  ` + binName + ` build --dag main --input edges.txt --head deadbeef`

	buildCmd.Flags().StringVar(&buildDagName, "dag", "default", "Name of the dag to build")
	buildCmd.Flags().StringVar(&buildInput, "input", "", "Path to the edge-list file (required)")
	buildCmd.Flags().StringVar(&buildHead, "head", "", "Head name to build up to (defaults to the edge list's last entry)")
	buildCmd.Flags().BoolVar(&buildTiming, "timing", false, "Print a per-level timing breakdown of the segment build")
	buildCmd.MarkFlagRequired("input")
}

func runBuild(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	graph, err := loadEdgeGraph(buildInput)
	if err != nil {
		return err
	}
	head := buildHead
	if head == "" {
		head, err = graph.defaultHead()
		if err != nil {
			return err
		}
	}

	dagDir := dagDirFor(buildDagName)
	od, err := openDag(dagDir, true)
	if err != nil {
		return err
	}
	defer od.Close()

	log.Info("Assigning ids for dag %q up to head %q...", buildDagName, head)
	if err := od.IdMap.AssignHead([]byte(head), graph.lookup); err != nil {
		return fmt.Errorf("id assignment failed: %w", err)
	}

	headId, ok := od.IdMap.FindIdByName([]byte(head))
	if !ok {
		return fmt.Errorf("head %q was not assigned an id", head)
	}

	getParentsByID := od.IdMap.BuildGetParentsByID(graph.lookup)

	od.Dag.EnableBuildTiming(buildTiming)

	log.Info("Building segments up to id %d...", headId)
	if err := od.Dag.BuildSegmentsVolatile(headId, getParentsByID); err != nil {
		return fmt.Errorf("segment build failed: %w", err)
	}

	if buildTiming {
		fmt.Print(od.Dag.BuildTiming().Summary())
	}

	if err := od.IdMap.Flush(); err != nil {
		return fmt.Errorf("id map flush failed: %w", err)
	}
	if err := od.Dag.Flush(); err != nil {
		return fmt.Errorf("segment store flush failed: %w", err)
	}

	log.Info("Built dag %q: head=%q id=%d state=%s", buildDagName, head, headId, od.Dag.State())

	if err := recordInCatalog(buildDagName, dagDir, head, uint64(headId)); err != nil {
		log.Warn("Failed to update catalog: %v", err)
	}

	return nil
}

func recordInCatalog(name, dagDir, head string, headId uint64) error {
	cfg := GetConfig()
	db, err := catalog.NewGormDB(&cfg.Catalog)
	if err != nil {
		return err
	}
	cat, err := catalog.Open(db)
	if err != nil {
		return err
	}
	defer cat.Close()
	return cat.Register(context.Background(), name, dagDir, headId, head)
}
