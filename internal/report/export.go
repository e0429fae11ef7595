package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BenjaminSRussell/go_gopher/internal/types"
)

// Row categories written by ExportCSV
const (
	CategoryDirectory = "directory"
	CategoryText      = "text"
	CategoryBinary    = "binary"
	CategoryError     = "error_reference"
	CategoryIssue     = "issue"
	CategoryExternal  = "external"
)

type Exporter struct {
	outputDir string
}

func NewExporter(outputDir string) (*Exporter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Exporter{
		outputDir: outputDir,
	}, nil
}

// path resolves a relative output file against the output directory
func (e *Exporter) path(outputFile string) string {
	if filepath.IsAbs(outputFile) {
		return outputFile
	}
	return filepath.Join(e.outputDir, outputFile)
}

func (e *Exporter) ExportJSON(r *types.Report, outputFile string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(e.path(outputFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}

	return nil
}

// ExportCSV writes one row per inventory item. Leaf sizes come from the
// fetch records; items without a record have an empty size.
func (e *Exporter) ExportCSV(r *types.Report, fetches []types.FetchRecord, outputFile string) error {
	file, err := os.Create(e.path(outputFile))
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	headers := []string{"Category", "Path", "Size", "Host", "Port", "Up"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	sizes := make(map[string]int64, len(fetches))
	for _, f := range fetches {
		if f.Error == "" {
			sizes[f.Selector] = f.Size
		}
	}
	size := func(selector string) string {
		if n, ok := sizes[selector]; ok {
			return strconv.FormatInt(n, 10)
		}
		return ""
	}

	port := strconv.Itoa(r.Port)
	records := make([][]string, 0)
	for _, d := range r.Directories {
		records = append(records, []string{CategoryDirectory, d, "", r.Host, port, ""})
	}
	for _, p := range r.TextFiles {
		records = append(records, []string{CategoryText, p, size(p), r.Host, port, ""})
	}
	for _, p := range r.BinaryFiles {
		records = append(records, []string{CategoryBinary, p, size(p), r.Host, port, ""})
	}
	for _, p := range r.ErrorReferences {
		records = append(records, []string{CategoryError, p, "", r.Host, port, ""})
	}
	for _, p := range r.IssueReferences {
		records = append(records, []string{CategoryIssue, p, "", "", "", ""})
	}
	for _, s := range r.ExternalServers {
		records = append(records, []string{CategoryExternal, "", "", s.Host, s.Port, strconv.FormatBool(s.Up)})
	}

	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write CSV record: %w", err)
	}

	return nil
}
