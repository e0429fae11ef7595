package crawler

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BenjaminSRussell/go_gopher/internal/gopher"
	"github.com/BenjaminSRussell/go_gopher/internal/logging"
	"github.com/BenjaminSRussell/go_gopher/internal/metrics"
	"github.com/BenjaminSRussell/go_gopher/internal/storage"
	"github.com/BenjaminSRussell/go_gopher/internal/transport"
	"github.com/BenjaminSRussell/go_gopher/internal/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const progressInterval = 5 * time.Second

// Dialer opens connections to gopher servers
type Dialer interface {
	// Dial opens a connection used for one request
	Dial(ctx context.Context, host string, port int) (net.Conn, error)
	// DialProbe opens a connection that is closed without sending anything
	DialProbe(ctx context.Context, host string, port int) (net.Conn, error)
}

// Sink persists fetched leaves
type Sink interface {
	Store(bucket storage.Bucket, name string, content []byte) error
}

// FetchRecorder receives the outcome of every leaf fetch
type FetchRecorder interface {
	SaveFetch(record types.FetchRecord) error
}

// ListingRecorder receives every parsed listing. Recorders that also
// implement it get listings as well as fetches.
type ListingRecorder interface {
	SaveListing(listing string, entries []gopher.Entry) error
}

// Deps are the collaborators a Crawler works with. Dialer defaults to a
// transport.Dialer built from the config; Metrics and Logger may be nil.
type Deps struct {
	Dialer    Dialer
	Sink      Sink
	Recorders []FetchRecorder
	Metrics   *metrics.Collector
	Logger    *logrus.Logger
}

// Crawler walks one gopher server depth-first from its root listing
type Crawler struct {
	config    types.Config
	dialer    Dialer
	sink      Sink
	recorders []FetchRecorder
	metrics   *metrics.Collector
	log       *logrus.Logger

	state    *State
	frontier *Frontier
	safe     *SafeProcessor
	robots   *robotsPolicy

	// group runs leaf fetches and probes when Workers > 1. It is only
	// touched from the goroutine running Run.
	group *errgroup.Group
}

// New creates a new crawler instance
func New(config types.Config, deps Deps) (*Crawler, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("a persistence sink is required")
	}

	dialer := deps.Dialer
	if dialer == nil {
		d, err := transport.NewDialer(transport.Options{
			ConnectTimeout:    config.ConnectTimeout,
			RequestsPerSecond: config.RequestsPerSecond,
			TLS:               config.TLS,
			SOCKSProxy:        config.SOCKSProxy,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create dialer: %w", err)
		}
		dialer = d
	}

	log := deps.Logger
	if log == nil {
		log = logging.Discard()
	}

	c := &Crawler{
		config:    config,
		dialer:    dialer,
		sink:      deps.Sink,
		recorders: deps.Recorders,
		metrics:   deps.Metrics,
		log:       log,
		state:     NewState(),
		frontier:  NewFrontier(),
	}
	c.safe = NewSafeProcessor(c)

	return c, nil
}

// Run crawls the server and returns the report. Only a failure to read
// the root listing is fatal. When ctx is cancelled the partial report is
// returned along with the context error.
func (c *Crawler) Run(ctx context.Context) (*types.Report, error) {
	started := time.Now()

	c.log.WithFields(logrus.Fields{
		"host":    c.config.Host,
		"port":    c.config.Port,
		"workers": c.config.Workers,
	}).Info("Starting crawl")

	if c.config.RespectRobots {
		c.robots = c.loadRobots(ctx)
	}

	stop := make(chan struct{})
	defer close(stop)
	go c.reportProgress(stop, time.NewTicker(progressInterval))

	c.group = c.newGroup()

	root, _, err := c.index(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read root listing: %w", err)
	}
	c.frontier.Push(root.listing, root.entries)

	for ctx.Err() == nil {
		listing, e, ok := c.frontier.Next()
		if !ok {
			break
		}
		c.safe.Run(e.Selector, func() { c.dispatch(ctx, listing, e) })
	}
	c.join()

	report := c.state.Report(c.config.Host, c.config.Port, started, time.Now())

	c.log.WithFields(c.progressFields()).
		WithField("duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)).
		Info("Crawl finished")

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("crawl interrupted: %w", err)
	}
	return report, nil
}

// State exposes the aggregator, mainly for inspection after Run
func (c *Crawler) State() *State {
	return c.state
}

// index requests a listing and returns a frame over its entries. fresh
// is false when path had already been visited, in which case nothing is
// requested. A listing that cannot be read is flagged as an issue and
// its subtree is abandoned.
func (c *Crawler) index(ctx context.Context, path string) (*frame, bool, error) {
	if !c.state.Visit(path) {
		return nil, false, nil
	}

	body, err := c.request(ctx, path, "directory")
	if err != nil {
		return nil, true, err
	}
	c.state.AddDirectory(path)

	// listings are parsed leniently; invalid bytes never abort a walk
	entries := gopher.ParseListing(strings.ToValidUTF8(string(body), "\uFFFD"))
	c.recordListing(path, entries)

	return &frame{listing: path, entries: entries}, true, nil
}

// dispatch handles one entry of listing. Rules are checked in order and
// the first match wins.
func (c *Crawler) dispatch(ctx context.Context, listing string, e gopher.Entry) {
	switch {
	case e.Kind == "" || e.Kind == gopher.KindInformational:
		return
	case e.Kind == gopher.KindError:
		c.state.AddErrorRef(listing)
		return
	case e.IsExternal(c.config.Host, c.config.Port):
		c.spawn(e.Selector, func() { c.probe(ctx, e) })
		return
	}

	if !c.robots.allowed(e.Selector) {
		c.log.WithField("selector", e.Selector).Debug("Disallowed by robots.txt")
		return
	}

	switch e.Kind {
	case gopher.KindText:
		c.spawn(e.Selector, func() { c.fetchLeaf(ctx, e, types.ModeText) })
	case gopher.KindDirectory:
		if e.Selector == "" || c.state.HasDirectory(e.Selector) {
			return
		}
		// leaves of the current listing finish before a new one is entered
		c.join()
		sub, fresh, _ := c.index(ctx, e.Selector)
		if fresh {
			c.state.AddDirectory(e.Selector)
		}
		if sub != nil {
			c.frontier.Push(sub.listing, sub.entries)
		}
	default:
		c.spawn(e.Selector, func() { c.fetchLeaf(ctx, e, types.ModeBinary) })
	}
}

func (c *Crawler) newGroup() *errgroup.Group {
	if c.config.Workers <= 1 {
		return nil
	}
	g := new(errgroup.Group)
	g.SetLimit(c.config.Workers)
	return g
}

// spawn runs fn inline with one worker, otherwise on the worker group
func (c *Crawler) spawn(selector string, fn func()) {
	if c.group == nil {
		fn()
		return
	}
	c.group.Go(func() error {
		c.safe.Run(selector, fn)
		return nil
	})
}

// join waits for in-flight leaf work
func (c *Crawler) join() {
	if c.group == nil {
		return
	}
	c.group.Wait()
	c.group = c.newGroup()
}

func (c *Crawler) recordListing(listing string, entries []gopher.Entry) {
	for _, r := range c.recorders {
		lr, ok := r.(ListingRecorder)
		if !ok {
			continue
		}
		if err := lr.SaveListing(listing, entries); err != nil {
			c.log.WithField("listing", listing).WithError(err).Warn("Failed to record listing")
		}
	}
}

// reportProgress logs crawl counters until stop is closed
func (c *Crawler) reportProgress(stop <-chan struct{}, ticker *time.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.log.WithFields(c.progressFields()).
				WithField("depth", c.frontier.Depth()).
				Info("Crawl progress")
		}
	}
}

func (c *Crawler) progressFields() logrus.Fields {
	p := c.state.Progress()
	return logrus.Fields{
		"visited":     p.Visited,
		"directories": p.Directories,
		"text":        p.TextFiles,
		"binary":      p.BinaryFiles,
		"issues":      p.Issues,
		"entries":     c.frontier.Processed(),
		"panics":      c.safe.GetPanicCount(),
	}
}
