package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BenjaminSRussell/go_gopher/internal/types"
)

// Render writes the human-readable crawl report
func Render(w io.Writer, r *types.Report) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "\n----- Gopher Server Analysis: %s:%d -----\n\n", r.Host, r.Port)
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		fmt.Fprintf(bw, "Crawled %d selectors in %s\n\n", r.VisitedCount, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}

	fmt.Fprintf(bw, "Directories: %d\n", len(r.Directories))
	writeList(bw, r.Directories)

	fmt.Fprintf(bw, "Text files: %d\n", len(r.TextFiles))
	writeList(bw, r.TextFiles)

	fmt.Fprintf(bw, "Binary files: %d\n", len(r.BinaryFiles))
	writeList(bw, r.BinaryFiles)

	if r.SmallestText.IsSet() {
		fmt.Fprintf(bw, "Smallest text file (%s, %d bytes):\n", Selector(r.SmallestText.Path), r.SmallestText.Size)
		for _, line := range strings.Split(string(r.SmallestText.Content), "\n") {
			fmt.Fprintf(bw, "   %s\n", strings.TrimRight(line, "\r"))
		}
	} else {
		fmt.Fprintln(bw, "Smallest text file: none")
	}

	writeExtreme(bw, "Largest text file", r.LargestText)
	writeExtreme(bw, "Smallest binary file", r.SmallestBinary)
	writeExtreme(bw, "Largest binary file", r.LargestBinary)

	fmt.Fprintf(bw, "Invalid references: %d\n", len(r.ErrorReferences))
	writeList(bw, r.ErrorReferences)

	fmt.Fprintf(bw, "External servers: %d\n", len(r.ExternalServers))
	for _, s := range r.ExternalServers {
		fmt.Fprintf(bw, "   - %s:%s (%s)\n", s.Host, s.Port, status(s.Up))
	}

	fmt.Fprintf(bw, "References with issues: %d\n", len(r.IssueReferences))
	writeList(bw, r.IssueReferences)

	fmt.Fprintln(bw, "\n----- End of Analysis -----")

	return bw.Flush()
}

// Selector formats a selector for display. The root listing has an empty
// selector.
func Selector(s string) string {
	if s == "" {
		return "(root)"
	}
	return s
}

func writeList(w io.Writer, items []string) {
	for _, item := range items {
		fmt.Fprintf(w, "   - %s\n", Selector(item))
	}
}

func writeExtreme(w io.Writer, label string, fs types.FileStats) {
	if !fs.IsSet() {
		fmt.Fprintf(w, "%s: none\n", label)
		return
	}
	fmt.Fprintf(w, "%s (%s): %d bytes\n", label, Selector(fs.Path), fs.Size)
}

func status(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
