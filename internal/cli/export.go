package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BenjaminSRussell/go_gopher/internal/report"
	"github.com/BenjaminSRussell/go_gopher/internal/storage"
	"github.com/spf13/cobra"
)

type exportOptions struct {
	dataDir        string
	format         string
	outputFile     string
	title          string
	includeIssues  bool
	includeSummary bool
}

func newExportCmd(global *globalOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a saved crawl report",
		Long:  `Render the report saved by a previous crawl as text, JSON, CSV or a gophermap`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("data-dir") {
				cfg, err := resolveConfig(global)
				if err != nil {
					return err
				}
				opts.dataDir = cfg.OutputDir
			}

			result, err := storage.LoadReport(opts.dataDir)
			if err != nil {
				return fmt.Errorf("failed to load report: %w", err)
			}

			out := cmd.OutOrStdout()

			if opts.format == "text" {
				if opts.outputFile == "" {
					return report.Render(out, result)
				}
				path := opts.outputFile
				if !filepath.IsAbs(path) {
					path = filepath.Join(opts.dataDir, path)
				}
				file, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				defer file.Close()
				return report.Render(file, result)
			}

			exporter, err := report.NewExporter(opts.dataDir)
			if err != nil {
				return err
			}

			output := opts.outputFile
			switch opts.format {
			case "json":
				if output == "" {
					output = "report-export.json"
				}
				err = exporter.ExportJSON(result, output)
			case "csv":
				if output == "" {
					output = "inventory.csv"
				}
				fetches, lerr := storage.LoadFetches(opts.dataDir)
				if lerr != nil {
					return lerr
				}
				err = exporter.ExportCSV(result, fetches, output)
			case "gophermap":
				if output == "" {
					output = "gophermap"
				}
				var count int
				count, err = exporter.ExportGophermap(result, report.MapConfig{
					OutputFile:     output,
					Title:          opts.title,
					IncludeIssues:  opts.includeIssues,
					IncludeSummary: opts.includeSummary,
				})
				if err == nil {
					fmt.Fprintf(out, "Exported %d items to %s\n", count, output)
				}
			default:
				return fmt.Errorf("unknown format %q (want text, json, csv or gophermap)", opts.format)
			}
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			return nil
		},
	}

	d := cmd.Flags()
	d.StringVar(&opts.dataDir, "data-dir", "./data", "output directory of the crawl")
	d.StringVar(&opts.format, "format", "text", "export format: text|json|csv|gophermap")
	d.StringVar(&opts.outputFile, "output", "", "output file (relative paths land in the data directory)")
	d.StringVar(&opts.title, "title", "", "gophermap title line")
	d.BoolVar(&opts.includeIssues, "include-issues", false, "keep selectors with issues in the gophermap")
	d.BoolVar(&opts.includeSummary, "include-summary", true, "add a summary line to the gophermap")

	return cmd
}
