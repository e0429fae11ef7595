package crawler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BenjaminSRussell/go_gopher/internal/metrics"
	"github.com/BenjaminSRussell/go_gopher/internal/storage"
	"github.com/BenjaminSRussell/go_gopher/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(s *fakeServer) types.Config {
	return types.Config{
		Host:              s.host,
		Port:              s.port,
		ConnectTimeout:    time.Second,
		ReadTimeout:       200 * time.Millisecond,
		FetchDeadline:     time.Second,
		OutputDir:         "unused",
		MaxFilenameLength: 64,
		Workers:           1,
		UserAgent:         "gophercrawl",
	}
}

func newTestCrawler(t *testing.T, cfg types.Config, recorders ...FetchRecorder) (*Crawler, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c, err := New(cfg, Deps{Sink: store, Recorders: append([]FetchRecorder{store}, recorders...)})
	require.NoError(t, err)
	return c, dir
}

// recordedFetches collects fetch records in memory
type recordedFetches struct {
	mu      sync.Mutex
	records []types.FetchRecord
}

func (r *recordedFetches) SaveFetch(record types.FetchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *recordedFetches) find(selector string) (types.FetchRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.Selector == selector {
			return rec, true
		}
	}
	return types.FetchRecord{}, false
}

func runCrawl(t *testing.T, cfg types.Config) *types.Report {
	t.Helper()

	c, _ := newTestCrawler(t, cfg)
	report, err := c.Run(context.Background())
	require.NoError(t, err)
	return report
}

func TestNewValidation(t *testing.T) {
	_, err := New(types.Config{}, Deps{})
	assert.Error(t, err)

	_, err = New(types.Config{Host: "example.org", ConnectTimeout: time.Second}, Deps{})
	assert.Error(t, err, "sink is required")
}

func TestCrawlInventory(t *testing.T) {
	srv := newFakeServer(t)

	srv.setMenu("",
		info("Welcome to the test hole"),
		srv.item("0", "About", "/about.txt"),
		srv.item("0", "Readme", "/readme.txt"),
		srv.item("1", "Sub", "/sub"),
		srv.item("9", "Picture", "/pic.bin"),
		srv.item("h", "Page", "/page.html"),
		"3Something broke\t\terror.host\t1",
	)
	srv.setText("/about.txt", "Hello gopher")
	srv.setText("/readme.txt", "A longer readme body")
	srv.setMenu("/sub",
		srv.item("0", "Deep", "/sub/deep.txt"),
		srv.item("1", "Back", ""),
		srv.item("1", "Self", "/sub"),
	)
	srv.setText("/sub/deep.txt", "hi")
	srv.set("/pic.bin", []byte{0, 1, 2, 3})
	srv.set("/page.html", []byte(`<html><head><title>Page</title></head><body><a href="/x">x</a></body></html>`))

	report := runCrawl(t, testConfig(srv))

	assert.Equal(t, []string{"", "/sub"}, report.Directories)
	assert.Equal(t, []string{"/about.txt", "/readme.txt", "/sub/deep.txt"}, report.TextFiles)
	assert.Equal(t, []string{"/pic.bin", "/page.html"}, report.BinaryFiles)
	assert.Equal(t, []string{""}, report.ErrorReferences)
	assert.Empty(t, report.IssueReferences)
	assert.Empty(t, report.ExternalServers)

	assert.Equal(t, "/sub/deep.txt", report.SmallestText.Path)
	assert.Equal(t, int64(2), report.SmallestText.Size)
	assert.Equal(t, "hi", string(report.SmallestText.Content))
	assert.Equal(t, "/readme.txt", report.LargestText.Path)
	assert.Equal(t, int64(20), report.LargestText.Size)
	assert.Equal(t, "/pic.bin", report.SmallestBinary.Path)
	assert.Equal(t, int64(4), report.SmallestBinary.Size)
	assert.Equal(t, "/page.html", report.LargestBinary.Path)

	for _, sel := range []string{"", "/about.txt", "/readme.txt", "/sub", "/sub/deep.txt", "/pic.bin", "/page.html"} {
		assert.Equal(t, 1, srv.count(sel), "selector %q", sel)
	}
	assert.Equal(t, 7, report.VisitedCount)
}

func TestCrawlErrorEntryAttributedToListing(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("", srv.item("1", "Sub", "/sub"), srv.item("1", "Other", "/other"))
	srv.setMenu("/sub",
		"3'/missing' does not exist\t/missing\terror.host\t1",
		"3Also broken\t/broken\terror.host\t1",
	)
	srv.setMenu("/other", "3Gone\t\terror.host\t1")

	report := runCrawl(t, testConfig(srv))

	assert.Equal(t, []string{"/sub", "/other"}, report.ErrorReferences)
	assert.Equal(t, 0, srv.count("/missing"))
	assert.Empty(t, report.IssueReferences)
}

func TestCrawlCycleTerminates(t *testing.T) {
	srv := newFakeServer(t)

	srv.setMenu("", srv.item("1", "A", "/a"))
	srv.setMenu("/a", srv.item("1", "B", "/b"), srv.item("0", "Note", "/note.txt"))
	srv.setMenu("/b",
		srv.item("1", "A again", "/a"),
		srv.item("1", "Root", ""),
		srv.item("0", "Note again", "/note.txt"),
	)
	srv.setText("/note.txt", "note")

	report := runCrawl(t, testConfig(srv))

	assert.Equal(t, []string{"", "/a", "/b"}, report.Directories)
	assert.Equal(t, []string{"/note.txt"}, report.TextFiles)
	assert.Equal(t, 1, srv.count(""))
	assert.Equal(t, 1, srv.count("/a"))
	assert.Equal(t, 1, srv.count("/b"))
	assert.Equal(t, 1, srv.count("/note.txt"))
}

func TestCrawlSelectorVisitedOnce(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("",
		srv.item("0", "As text", "/x"),
		srv.item("0", "Again", "/x"),
		srv.item("1", "As directory", "/x"),
	)
	srv.setText("/x", "plain")

	report := runCrawl(t, testConfig(srv))

	assert.Equal(t, 1, srv.count("/x"))
	assert.Equal(t, []string{"/x"}, report.TextFiles)
	assert.Equal(t, []string{""}, report.Directories)
}

func TestCrawlInformationalOnly(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("", info("just words"), info("more words"), "")

	report := runCrawl(t, testConfig(srv))

	assert.Equal(t, []string{""}, report.Directories)
	assert.Empty(t, report.TextFiles)
	assert.Empty(t, report.BinaryFiles)
	assert.Equal(t, 1, srv.total())
	assert.False(t, report.SmallestText.IsSet())
}

func TestCrawlEmptySubdirectory(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("", srv.item("1", "Empty", "subdir"))
	srv.set("subdir", []byte(".\r\n"))

	report := runCrawl(t, testConfig(srv))

	assert.Equal(t, []string{"", "subdir"}, report.Directories)
	assert.Empty(t, report.IssueReferences)
}

func TestCrawlExternalProbes(t *testing.T) {
	srv := newFakeServer(t)
	first := newFakeServer(t)
	second := newFakeServer(t)
	down := closedPort(t)

	srv.setMenu("",
		menuLine("0", "Down", "/gone.txt", "127.0.0.1", down),
		menuLine("0", "Elsewhere", "/ext.txt", first.host, first.port),
		menuLine("1", "Elsewhere dir", "/ext", second.host, second.port),
	)

	report := runCrawl(t, testConfig(srv))

	// both up servers share a host so the later probe wins
	require.Len(t, report.ExternalServers, 1)
	assert.Equal(t, types.ExternalServer{Host: "127.0.0.1", Port: itoa(second.port), Up: true}, report.ExternalServers[0])
	assert.Equal(t, []string{"/gone.txt"}, report.IssueReferences)

	assert.Empty(t, report.TextFiles)
	assert.Equal(t, []string{""}, report.Directories)
	assert.Equal(t, 0, first.total())
	assert.Equal(t, 0, second.total())
	assert.Equal(t, 0, srv.count("/ext.txt"))
}

func TestCrawlEqualSizesKeepFirst(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("",
		srv.item("0", "One", "/one.txt"),
		srv.item("0", "Two", "/two.txt"),
		srv.item("9", "Bin one", "/one.bin"),
		srv.item("9", "Bin two", "/two.bin"),
	)
	srv.setText("/one.txt", "same")
	srv.setText("/two.txt", "SAME")
	srv.set("/one.bin", []byte{1, 2})
	srv.set("/two.bin", []byte{3, 4})

	report := runCrawl(t, testConfig(srv))

	assert.Equal(t, "/one.txt", report.SmallestText.Path)
	assert.Equal(t, "/one.txt", report.LargestText.Path)
	assert.Equal(t, "/one.bin", report.SmallestBinary.Path)
	assert.Equal(t, "/one.bin", report.LargestBinary.Path)
}

func TestCrawlTimeoutKeepsGoing(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("",
		srv.item("0", "Slow", "/slow.txt"),
		srv.item("1", "Slow dir", "/slowdir"),
		srv.item("0", "After", "/after.txt"),
	)
	srv.setHang("/slow.txt")
	srv.setHang("/slowdir")
	srv.setText("/after.txt", "made it")

	report := runCrawl(t, testConfig(srv))

	assert.Equal(t, []string{"/slow.txt", "/slowdir"}, report.IssueReferences)
	assert.Equal(t, []string{"/after.txt"}, report.TextFiles)
	// a subdirectory that could not be read is still classified
	assert.Equal(t, []string{"", "/slowdir"}, report.Directories)
	assert.Equal(t, 1, srv.count("/slow.txt"))
}

func TestCrawlDeadlineOnTricklingServer(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("",
		srv.item("0", "Trickle", "/trickle.txt"),
		srv.item("0", "After", "/after.txt"),
	)
	srv.setTrickle("/trickle.txt")
	srv.setText("/after.txt", "made it")

	cfg := testConfig(srv)
	cfg.FetchDeadline = 600 * time.Millisecond

	var records recordedFetches
	c, _ := newTestCrawler(t, cfg, &records)

	start := time.Now()
	report, err := c.Run(context.Background())
	require.NoError(t, err)
	elapsed := time.Since(start)

	// every read succeeds, so only the overall deadline can stop it
	assert.GreaterOrEqual(t, elapsed, cfg.FetchDeadline)
	assert.Less(t, elapsed, 3*cfg.FetchDeadline)

	assert.Equal(t, []string{"/trickle.txt"}, report.IssueReferences)
	assert.Equal(t, []string{"/after.txt"}, report.TextFiles)

	rec, ok := records.find("/trickle.txt")
	require.True(t, ok)
	assert.Contains(t, rec.Error, ErrFetchTimeout.Error())
}

func TestCrawlPeriodAtSegmentEnd(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("", srv.item("0", "Story", "/story.txt"))
	srv.setChunks("/story.txt",
		"The end of a sentence.\r\n",
		"Second line\r\n.\r\n",
	)

	report := runCrawl(t, testConfig(srv))

	assert.Empty(t, report.IssueReferences)
	assert.Equal(t, []string{"/story.txt"}, report.TextFiles)
	assert.Equal(t, "The end of a sentence.\r\nSecond line", string(report.SmallestText.Content))
}

func TestCrawlIncompleteText(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("", srv.item("0", "Cut", "/cut.txt"))
	srv.set("/cut.txt", []byte("partial body"))

	c, dir := newTestCrawler(t, testConfig(srv))
	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"/cut.txt"}, report.IssueReferences)
	assert.Empty(t, report.TextFiles)
	// best effort: the bytes still count and are kept
	assert.Equal(t, "/cut.txt", report.LargestText.Path)
	data, err := os.ReadFile(filepath.Join(dir, "text", "cut.txt"))
	require.NoError(t, err)
	assert.Equal(t, "partial body", string(data))
}

func TestCrawlDecodeError(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("", srv.item("0", "Garbage", "/bad.txt"))
	srv.set("/bad.txt", []byte("\xff\xfe\xfd\r\n.\r\n"))

	c, dir := newTestCrawler(t, testConfig(srv))
	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"/bad.txt"}, report.IssueReferences)
	assert.Empty(t, report.TextFiles)
	assert.False(t, report.LargestText.IsSet())
	_, err = os.Stat(filepath.Join(dir, "text", "bad.txt"))
	assert.True(t, os.IsNotExist(err))

	records, err := storage.LoadFetches(dir)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Error, "not valid text")
}

func TestCrawlRootFailureIsFatal(t *testing.T) {
	cfg := types.Config{
		Host:              "127.0.0.1",
		Port:              closedPort(t),
		ConnectTimeout:    time.Second,
		ReadTimeout:       200 * time.Millisecond,
		FetchDeadline:     time.Second,
		MaxFilenameLength: 64,
		Workers:           1,
	}
	c, _ := newTestCrawler(t, cfg)

	report, err := c.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "", fe.Selector)
	assert.Equal(t, "connect", fe.Kind)
	assert.Equal(t, 1, c.State().Progress().Issues)
}

func TestCrawlRootTimeout(t *testing.T) {
	srv := newFakeServer(t)
	srv.setHang("")

	c, _ := newTestCrawler(t, testConfig(srv))
	_, err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchTimeout))
}

func TestCrawlRespectsRobots(t *testing.T) {
	srv := newFakeServer(t)
	srv.setText("robots.txt", "User-agent: *\nDisallow: /private\n")
	srv.setMenu("",
		srv.item("0", "Secret", "/private/secret.txt"),
		srv.item("1", "Secret dir", "/private"),
		srv.item("0", "Public", "/public.txt"),
	)
	srv.setText("/public.txt", "hello")

	cfg := testConfig(srv)
	cfg.RespectRobots = true
	report := runCrawl(t, cfg)

	assert.Equal(t, []string{"/public.txt"}, report.TextFiles)
	assert.Equal(t, []string{""}, report.Directories)
	assert.Equal(t, 0, srv.count("/private/secret.txt"))
	assert.Equal(t, 0, srv.count("/private"))
	assert.Equal(t, 1, srv.count("robots.txt"))
}

func TestCrawlWithoutRobotsFile(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("", srv.item("0", "Public", "/public.txt"))
	srv.setText("/public.txt", "hello")

	cfg := testConfig(srv)
	cfg.RespectRobots = true
	report := runCrawl(t, cfg)

	assert.Equal(t, []string{"/public.txt"}, report.TextFiles)
}

func TestCrawlParallelWorkers(t *testing.T) {
	srv := newFakeServer(t)

	root := []string{srv.item("1", "Sub", "/sub")}
	sub := []string{}
	expected := []string{}
	for i := 0; i < 20; i++ {
		sel := "/f" + itoa(i) + ".txt"
		root = append(root, srv.item("0", "File", sel))
		// every file is listed twice
		sub = append(sub, srv.item("0", "File", sel))
		srv.setText(sel, "content of "+sel)
		expected = append(expected, sel)
	}
	srv.setMenu("", root...)
	srv.setMenu("/sub", sub...)

	cfg := testConfig(srv)
	cfg.Workers = 8
	report := runCrawl(t, cfg)

	assert.ElementsMatch(t, expected, report.TextFiles)
	for _, sel := range expected {
		assert.Equal(t, 1, srv.count(sel), "selector %q", sel)
	}
	assert.Equal(t, []string{"", "/sub"}, report.Directories)
	assert.Equal(t, int64(len("content of /f0.txt")), report.SmallestText.Size)
}

func TestCrawlPersistsLeavesAndIndex(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("",
		srv.item("0", "About", "/docs/about.txt"),
		srv.item("h", "Page", "/page.html"),
		srv.item("9", "Archive", "/files/archive.zip"),
	)
	srv.setText("/docs/about.txt", "about this hole")
	srv.set("/page.html", []byte(`<html><head><title>Welcome</title><meta name="description" content="Front page"></head><body><a href="/a">a</a><a href="/b">b</a></body></html>`))
	srv.set("/files/archive.zip", []byte("PK\x03\x04"))

	index, err := storage.NewIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer index.Close()

	c, dir := newTestCrawler(t, testConfig(srv), index)
	_, err = c.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "text", "about.txt"))
	require.NoError(t, err)
	assert.Equal(t, "about this hole", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "binary", "archive.zip"))
	require.NoError(t, err)
	assert.Equal(t, []byte("PK\x03\x04"), data)

	stats, err := index.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["listings"])
	assert.Equal(t, 3, stats["entries"])
	assert.Equal(t, 3, stats["fetches"])

	binary, err := index.QueryFetches(types.ModeBinary)
	require.NoError(t, err)
	require.Len(t, binary, 2)
	assert.Equal(t, "/page.html", binary[0].Selector)
	assert.Equal(t, "Welcome", binary[0].Title)
	assert.Equal(t, "Front page", binary[0].Description)
	assert.Equal(t, 2, binary[0].LinkCount)
}

func TestCrawlMetrics(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("",
		srv.item("0", "Ok", "/ok.txt"),
		srv.item("0", "Slow", "/slow.txt"),
		menuLine("0", "Down", "/gone.txt", "127.0.0.1", closedPort(t)),
	)
	srv.setText("/ok.txt", "fine")
	srv.setHang("/slow.txt")

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	collector := metrics.NewCollector()
	c, err := New(testConfig(srv), Deps{Sink: store, Metrics: collector})
	require.NoError(t, err)

	_, err = c.Run(context.Background())
	require.NoError(t, err)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			name := mf.GetName()
			for _, l := range m.GetLabel() {
				name += "/" + l.GetValue()
			}
			values[name] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, 1.0, values["gophercrawl_requests_total/directory"])
	assert.Equal(t, 2.0, values["gophercrawl_requests_total/text"])
	assert.Equal(t, 1.0, values["gophercrawl_failures_total/timeout"])
	assert.Equal(t, 1.0, values["gophercrawl_failures_total/connect"])
	assert.Equal(t, 1.0, values["gophercrawl_external_probes_total/down"])
}

func TestCrawlCancelled(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("", srv.item("0", "About", "/about.txt"))

	c, _ := newTestCrawler(t, testConfig(srv))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx)
	assert.Error(t, err)
}

func TestCrawlCancelledMidFetch(t *testing.T) {
	srv := newFakeServer(t)
	srv.setMenu("", srv.item("0", "Slow", "/slow.txt"))
	srv.setHang("/slow.txt")

	cfg := testConfig(srv)
	cfg.ReadTimeout = 5 * time.Second
	cfg.FetchDeadline = 10 * time.Second

	c, _ := newTestCrawler(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(200*time.Millisecond, cancel)

	report, err := c.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	assert.Equal(t, 1, srv.count("/slow.txt"))
	assert.Empty(t, report.IssueReferences)
	assert.Empty(t, report.TextFiles)
}

func TestSafeProcessorRecoversPanic(t *testing.T) {
	srv := newFakeServer(t)
	c, _ := newTestCrawler(t, testConfig(srv))

	assert.NotPanics(t, func() {
		c.safe.Run("/boom", func() { panic("boom") })
	})
	assert.Equal(t, int64(1), c.safe.GetPanicCount())

	report := c.State().Report("", 0, time.Time{}, time.Time{})
	assert.Equal(t, []string{"/boom"}, report.IssueReferences)
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "timeout", failureKind(ErrFetchTimeout))
	assert.Equal(t, "malformed", failureKind(ErrMalformedBody))
	assert.Equal(t, "decode", failureKind(decodeText([]byte{0xff})))
	assert.Equal(t, "io", failureKind(errors.New("reset")))
	assert.NoError(t, decodeText([]byte("plain text ✓")))
}
