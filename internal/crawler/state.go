package crawler

import (
	"bytes"
	"sync"
	"time"

	"github.com/BenjaminSRussell/go_gopher/internal/types"
)

// orderedSet is a set that remembers insertion order for reporting
type orderedSet struct {
	index map[string]struct{}
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

func (s *orderedSet) has(v string) bool {
	_, ok := s.index[v]
	return ok
}

func (s *orderedSet) list() []string {
	return clone(s.order)
}

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// State accumulates everything a crawl learns. All methods are safe for
// concurrent use; with a single worker the lock is uncontended.
type State struct {
	mu sync.Mutex

	visited     *visitedSet
	directories *orderedSet
	textFiles   []string
	binaryFiles []string

	smallestText   types.FileStats
	largestText    types.FileStats
	smallestBinary types.FileStats
	largestBinary  types.FileStats

	errorRefs *orderedSet
	issueRefs *orderedSet

	external      map[string]types.ExternalServer
	externalOrder []string
}

// NewState creates an empty aggregator with unset extremum trackers
func NewState() *State {
	return &State{
		visited:        newVisitedSet(),
		directories:    newOrderedSet(),
		smallestText:   types.FileStats{Size: types.Unset},
		smallestBinary: types.FileStats{Size: types.Unset},
		errorRefs:      newOrderedSet(),
		issueRefs:      newOrderedSet(),
		external:       make(map[string]types.ExternalServer),
	}
}

// Visit marks selector visited and reports whether this call was the first
func (s *State) Visit(selector string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visited.add(selector)
}

func (s *State) AddDirectory(selector string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directories.add(selector)
}

func (s *State) HasDirectory(selector string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directories.has(selector)
}

// AddErrorRef records a listing that contained an error-type entry
func (s *State) AddErrorRef(selector string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorRefs.add(selector)
}

// AddIssue records a selector that could not be fetched cleanly
func (s *State) AddIssue(selector string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueRefs.add(selector)
}

// SetExternal records host as reachable. A later probe of the same host
// replaces the earlier one.
func (s *State) SetExternal(host, port string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.external[host]; !ok {
		s.externalOrder = append(s.externalOrder, host)
	}
	s.external[host] = types.ExternalServer{Host: host, Port: port, Up: true}
}

// RecordLeaf adds a fetched leaf to its inventory, unless it is already
// flagged as an issue, and updates the size extremes. Extremes only move
// on strict improvement so the first file of a given size wins.
func (s *State) RecordLeaf(mode types.FetchMode, selector string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := int64(len(payload))
	flagged := s.issueRefs.has(selector)

	switch mode {
	case types.ModeText:
		if !flagged {
			s.textFiles = append(s.textFiles, selector)
		}
		if size < s.smallestText.Size {
			s.smallestText = types.FileStats{Path: selector, Size: size, Content: bytes.Clone(payload)}
		}
		if size > s.largestText.Size {
			s.largestText = types.FileStats{Path: selector, Size: size}
		}
	default:
		if !flagged {
			s.binaryFiles = append(s.binaryFiles, selector)
		}
		if size < s.smallestBinary.Size {
			s.smallestBinary = types.FileStats{Path: selector, Size: size}
		}
		if size > s.largestBinary.Size {
			s.largestBinary = types.FileStats{Path: selector, Size: size}
		}
	}
}

// Progress is a point-in-time view of crawl counters
type Progress struct {
	Visited     int
	Directories int
	TextFiles   int
	BinaryFiles int
	Issues      int
}

func (s *State) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Progress{
		Visited:     s.visited.len(),
		Directories: len(s.directories.order),
		TextFiles:   len(s.textFiles),
		BinaryFiles: len(s.binaryFiles),
		Issues:      len(s.issueRefs.order),
	}
}

// Report copies the aggregated state into a report
func (s *State) Report(host string, port int, started, finished time.Time) *types.Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	servers := make([]types.ExternalServer, 0, len(s.externalOrder))
	for _, host := range s.externalOrder {
		servers = append(servers, s.external[host])
	}

	smallestText := s.smallestText
	smallestText.Content = bytes.Clone(smallestText.Content)

	return &types.Report{
		Host:            host,
		Port:            port,
		StartedAt:       started,
		FinishedAt:      finished,
		Directories:     s.directories.list(),
		TextFiles:       clone(s.textFiles),
		BinaryFiles:     clone(s.binaryFiles),
		VisitedCount:    s.visited.len(),
		ErrorReferences: s.errorRefs.list(),
		IssueReferences: s.issueRefs.list(),
		SmallestText:    smallestText,
		LargestText:     s.largestText,
		SmallestBinary:  s.smallestBinary,
		LargestBinary:   s.largestBinary,
		ExternalServers: servers,
	}
}
