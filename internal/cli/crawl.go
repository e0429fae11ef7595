package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/BenjaminSRussell/go_gopher/internal/config"
	"github.com/BenjaminSRussell/go_gopher/internal/crawler"
	"github.com/BenjaminSRussell/go_gopher/internal/metrics"
	"github.com/BenjaminSRussell/go_gopher/internal/report"
	"github.com/BenjaminSRussell/go_gopher/internal/storage"
	"github.com/BenjaminSRussell/go_gopher/internal/transport"
	"github.com/BenjaminSRussell/go_gopher/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type crawlOptions struct {
	host              string
	port              int
	connectTimeout    time.Duration
	readTimeout       time.Duration
	fetchDeadline     time.Duration
	outputDir         string
	maxFilenameLength int
	workers           int
	rps               float64
	respectRobots     bool
	userAgent         string
	tls               bool
	tlsProfile        string
	socksProxy        string
	indexDB           string
	metricsAddr       string
	reportJSON        string
	reportCSV         string
}

func newCrawlCmd(global *globalOptions) *cobra.Command {
	opts := &crawlOptions{}

	cmd := &cobra.Command{
		Use:   "crawl [host[:port]]",
		Short: "Crawl a gopher server",
		Long:  `Crawl every directory reachable from the root listing of a gopher server and print a report`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(global)
			if err != nil {
				return err
			}
			cfg, err = opts.apply(cmd.Flags(), cfg, args)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runCrawl(ctx, cfg, opts.tlsProfile, newLogger(cfg), cmd.OutOrStdout())
		},
	}

	d := config.Default()
	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "", "gopher server host")
	f.IntVar(&opts.port, "port", d.Port, "gopher server port")
	f.DurationVar(&opts.connectTimeout, "connect-timeout", d.ConnectTimeout, "connection timeout")
	f.DurationVar(&opts.readTimeout, "read-timeout", d.ReadTimeout, "timeout for each receive")
	f.DurationVar(&opts.fetchDeadline, "deadline", d.FetchDeadline, "wall-clock limit for reading one body")
	f.StringVar(&opts.outputDir, "output-dir", d.OutputDir, "directory for downloaded files and crawl records")
	f.IntVar(&opts.maxFilenameLength, "max-filename-length", d.MaxFilenameLength, "maximum length of stored file names")
	f.IntVar(&opts.workers, "workers", d.Workers, "concurrent leaf fetches (1 keeps the crawl strictly sequential)")
	f.Float64Var(&opts.rps, "rps", d.RequestsPerSecond, "maximum requests per second (0 for unlimited)")
	f.BoolVar(&opts.respectRobots, "respect-robots", d.RespectRobots, "honor the server's robots.txt")
	f.StringVar(&opts.userAgent, "user-agent", d.UserAgent, "agent name matched against robots.txt")
	f.BoolVar(&opts.tls, "tls", d.TLS, "connect to the target over TLS")
	f.StringVar(&opts.tlsProfile, "tls-profile", "", "TLS ClientHello profile: Chrome_Auto|Firefox_Auto|Golang")
	f.StringVar(&opts.socksProxy, "socks-proxy", d.SOCKSProxy, "SOCKS5 proxy host:port")
	f.StringVar(&opts.indexDB, "index-db", d.IndexDB, "SQLite index of listings and fetches")
	f.StringVar(&opts.metricsAddr, "metrics-addr", d.MetricsAddr, "serve Prometheus metrics on this address")
	f.StringVar(&opts.reportJSON, "report-json", d.ReportJSON, "also write the report as JSON to this file")
	f.StringVar(&opts.reportCSV, "report-csv", d.ReportCSV, "also write the inventory as CSV to this file")

	return cmd
}

// apply overlays flags that were set explicitly, then the positional target
func (o *crawlOptions) apply(flags *pflag.FlagSet, cfg types.Config, args []string) (types.Config, error) {
	set := func(name string) bool { return flags.Changed(name) }

	if set("host") {
		cfg.Host = o.host
	}
	if set("port") {
		cfg.Port = o.port
	}
	if set("connect-timeout") {
		cfg.ConnectTimeout = o.connectTimeout
	}
	if set("read-timeout") {
		cfg.ReadTimeout = o.readTimeout
	}
	if set("deadline") {
		cfg.FetchDeadline = o.fetchDeadline
	}
	if set("output-dir") {
		cfg.OutputDir = o.outputDir
	}
	if set("max-filename-length") {
		cfg.MaxFilenameLength = o.maxFilenameLength
	}
	if set("workers") {
		cfg.Workers = o.workers
	}
	if set("rps") {
		cfg.RequestsPerSecond = o.rps
	}
	if set("respect-robots") {
		cfg.RespectRobots = o.respectRobots
	}
	if set("user-agent") {
		cfg.UserAgent = o.userAgent
	}
	if set("tls") {
		cfg.TLS = o.tls
	}
	if set("socks-proxy") {
		cfg.SOCKSProxy = o.socksProxy
	}
	if set("index-db") {
		cfg.IndexDB = o.indexDB
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if set("report-json") {
		cfg.ReportJSON = o.reportJSON
	}
	if set("report-csv") {
		cfg.ReportCSV = o.reportCSV
	}

	if len(args) == 1 {
		host, port, err := parseTarget(args[0], cfg.Port)
		if err != nil {
			return types.Config{}, err
		}
		cfg.Host, cfg.Port = host, port
	}

	return cfg, nil
}

// parseTarget splits host[:port]
func parseTarget(target string, defaultPort int) (string, int, error) {
	host, portStr, err := splitHostPort(target)
	if err != nil {
		return "", 0, err
	}
	if portStr == "" {
		return host, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

func runCrawl(ctx context.Context, cfg types.Config, tlsProfile string, log *logrus.Logger, out io.Writer) error {
	store, err := storage.New(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	if err := store.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	recorders := []crawler.FetchRecorder{store}
	if cfg.IndexDB != "" {
		index, err := storage.NewIndex(cfg.IndexDB)
		if err != nil {
			return fmt.Errorf("failed to open index: %w", err)
		}
		defer index.Close()
		recorders = append(recorders, index)
	}

	collector := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := collector.Serve(metricsCtx, cfg.MetricsAddr); err != nil {
				log.WithError(err).Warn("Metrics server stopped")
			}
		}()
		log.WithField("addr", cfg.MetricsAddr).Info("Serving metrics")
	}

	dialer, err := transport.NewDialer(transport.Options{
		ConnectTimeout:    cfg.ConnectTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		TLS:               cfg.TLS,
		TLSProfile:        tlsProfile,
		SOCKSProxy:        cfg.SOCKSProxy,
	})
	if err != nil {
		return fmt.Errorf("failed to create dialer: %w", err)
	}

	c, err := crawler.New(cfg, crawler.Deps{
		Dialer:    dialer,
		Sink:      store,
		Recorders: recorders,
		Metrics:   collector,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	result, runErr := c.Run(ctx)
	if result == nil {
		return fmt.Errorf("crawl failed: %w", runErr)
	}

	if err := store.SaveReport(result); err != nil {
		log.WithError(err).Warn("Failed to save report")
	}
	if err := report.Render(out, result); err != nil {
		return fmt.Errorf("failed to print report: %w", err)
	}
	if err := writeExports(cfg, result); err != nil {
		return err
	}

	return runErr
}

func writeExports(cfg types.Config, result *types.Report) error {
	if cfg.ReportJSON == "" && cfg.ReportCSV == "" {
		return nil
	}

	exporter, err := report.NewExporter(cfg.OutputDir)
	if err != nil {
		return err
	}

	if cfg.ReportJSON != "" {
		if err := exporter.ExportJSON(result, cfg.ReportJSON); err != nil {
			return err
		}
	}
	if cfg.ReportCSV != "" {
		fetches, err := storage.LoadFetches(cfg.OutputDir)
		if err != nil {
			return err
		}
		if err := exporter.ExportCSV(result, fetches, cfg.ReportCSV); err != nil {
			return err
		}
	}

	return nil
}
