package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/segdag/segdag/internal/archive"
	"github.com/segdag/segdag/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the registry of known dag directories",
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list every dag registered in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCatalog(func(cat *catalog.Catalog) error {
				recs, err := cat.List(context.Background())
				if err != nil {
					return err
				}
				for _, r := range recs {
					fmt.Printf("%-20s head=%-10s id=%-8d dir=%s\n", r.Name, r.HeadName, r.HeadID, r.DataDir)
				}
				return nil
			})
		},
	}
	catalogCmd.AddCommand(listCmd)

	var pushName, pushKey string
	pushCmd := &cobra.Command{
		Use:   "push",
		Short: "tar a flushed dag directory and upload it to the configured archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetConfig()
			backend, err := archive.NewBackend(&cfg.Archive)
			if err != nil {
				return err
			}
			key := pushKey
			if key == "" {
				key = pushName + ".tar.gz"
			}
			if err := archive.PushSnapshot(context.Background(), backend, dagDirFor(pushName), key); err != nil {
				return err
			}
			fmt.Printf("Pushed snapshot of %q to %s\n", pushName, backend.URL(key))
			return nil
		},
	}
	pushCmd.Flags().StringVar(&pushName, "dag", "default", "Name of the dag to push")
	pushCmd.Flags().StringVar(&pushKey, "key", "", "Archive key (defaults to <dag>.tar.gz)")
	catalogCmd.AddCommand(pushCmd)

	var pullName, pullKey string
	pullCmd := &cobra.Command{
		Use:   "pull",
		Short: "download a snapshot from the configured archive into a dag directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := GetConfig()
			backend, err := archive.NewBackend(&cfg.Archive)
			if err != nil {
				return err
			}
			key := pullKey
			if key == "" {
				key = pullName + ".tar.gz"
			}
			if err := archive.PullSnapshot(context.Background(), backend, key, dagDirFor(pullName)); err != nil {
				return err
			}
			fmt.Printf("Pulled snapshot into %q\n", dagDirFor(pullName))
			return nil
		},
	}
	pullCmd.Flags().StringVar(&pullName, "dag", "default", "Name of the dag to pull into")
	pullCmd.Flags().StringVar(&pullKey, "key", "", "Archive key (defaults to <dag>.tar.gz)")
	catalogCmd.AddCommand(pullCmd)
}

func withCatalog(fn func(cat *catalog.Catalog) error) error {
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
	return fn(cat)
}
