package cli

import (
	"fmt"
	"sort"

	"github.com/BenjaminSRussell/go_gopher/internal/storage"
	"github.com/BenjaminSRussell/go_gopher/internal/types"
	"github.com/spf13/cobra"
)

func newStatsCmd(global *globalOptions) *cobra.Command {
	var (
		indexDB string
		failed  bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics from a crawl index",
		Long:  `Print aggregate counts and item types recorded in the SQLite index of a previous crawl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("index-db") {
				cfg, err := resolveConfig(global)
				if err != nil {
					return err
				}
				indexDB = cfg.IndexDB
			}
			if err := requireFile("index-db", indexDB); err != nil {
				return err
			}

			index, err := storage.NewIndex(indexDB)
			if err != nil {
				return fmt.Errorf("failed to open index: %w", err)
			}
			defer index.Close()

			out := cmd.OutOrStdout()

			stats, err := index.GetStats()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(stats))
			for name := range stats {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Fprintf(out, "Index: %s\n", indexDB)
			for _, name := range names {
				fmt.Fprintf(out, "  %-15s %d\n", name+":", stats[name])
			}

			counts, err := index.KindCounts()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Item types:")
			for _, kc := range counts {
				fmt.Fprintf(out, "  %-3q %d\n", kc.Kind, kc.Count)
			}

			if !failed {
				return nil
			}

			records, err := index.QueryFetches("")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Failed fetches:")
			for _, r := range records {
				if r.Error == "" && r.Complete {
					continue
				}
				fmt.Fprintf(out, "  %s [%s] %s\n", r.Selector, r.Mode, failure(r))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&indexDB, "index-db", "", "SQLite index written by crawl --index-db")
	cmd.Flags().BoolVar(&failed, "failed", false, "also list fetches that failed or were incomplete")

	return cmd
}

func failure(r types.FetchRecord) string {
	if r.Error != "" {
		return r.Error
	}
	return "incomplete body"
}
