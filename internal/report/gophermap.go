package report

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BenjaminSRussell/go_gopher/internal/gopher"
	"github.com/BenjaminSRussell/go_gopher/internal/types"
)

// MapConfig holds gophermap export options
type MapConfig struct {
	OutputFile string
	// Title is written as an informational header line
	Title          string
	IncludeIssues  bool
	IncludeSummary bool
}

// ExportGophermap writes every discovered directory and leaf as a gopher
// menu pointing back at the crawled server, so the inventory can be served
// or browsed with any gopher client. It returns the number of items written.
func (e *Exporter) ExportGophermap(r *types.Report, config MapConfig) (int, error) {
	var b strings.Builder
	port := strconv.Itoa(r.Port)

	info := func(text string) {
		b.WriteString(string(gopher.KindInformational) + text + gopher.FieldSeparator + gopher.FieldSeparator + "error.host" + gopher.FieldSeparator + "1" + gopher.LineTerminator)
	}
	item := func(kind gopher.Kind, selector string) {
		b.WriteString(string(kind) + Selector(selector) + gopher.FieldSeparator + selector + gopher.FieldSeparator + r.Host + gopher.FieldSeparator + port + gopher.LineTerminator)
	}

	title := config.Title
	if title == "" {
		title = fmt.Sprintf("Crawl of %s:%d", r.Host, r.Port)
	}
	info(title)
	if config.IncludeSummary {
		info(fmt.Sprintf("%d directories, %d text files, %d binary files", len(r.Directories), len(r.TextFiles), len(r.BinaryFiles)))
	}

	issues := make(map[string]bool, len(r.IssueReferences))
	for _, ref := range r.IssueReferences {
		issues[ref] = true
	}

	count := 0
	add := func(kind gopher.Kind, selectors []string) {
		for _, s := range selectors {
			if issues[s] && !config.IncludeIssues {
				continue
			}
			item(kind, s)
			count++
		}
	}

	info("")
	info("Directories")
	add(gopher.KindDirectory, r.Directories)
	info("")
	info("Text files")
	add(gopher.KindText, r.TextFiles)
	info("")
	info("Binary files")
	add(gopher.KindBinary, r.BinaryFiles)

	b.WriteString(gopher.Terminator)

	outputFile := config.OutputFile
	if outputFile == "" {
		outputFile = "gophermap"
	}
	if err := os.WriteFile(e.path(outputFile), []byte(b.String()), 0644); err != nil {
		return 0, fmt.Errorf("failed to write gophermap: %w", err)
	}

	return count, nil
}
