package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/haukened/tivilsta/internal/whitelist/common/clock"
	"github.com/haukened/tivilsta/internal/whitelist/common/log"
	"github.com/haukened/tivilsta/internal/whitelist/config"
	"github.com/haukened/tivilsta/internal/whitelist/gateways/catalog"
	"github.com/haukened/tivilsta/internal/whitelist/gateways/source"
	"github.com/haukened/tivilsta/internal/whitelist/gateways/transport"
	catalogrepo "github.com/haukened/tivilsta/internal/whitelist/repos/catalog"
	"github.com/haukened/tivilsta/internal/whitelist/repos/catalog/bolt"
	"github.com/haukened/tivilsta/internal/whitelist/repos/whitelist"
	"github.com/haukened/tivilsta/internal/whitelist/repos/whitelist/bloom"
	"github.com/haukened/tivilsta/internal/whitelist/repos/whitelist/lru"
	"github.com/haukened/tivilsta/internal/whitelist/services/cleanup"
	"github.com/haukened/tivilsta/internal/whitelist/services/tld"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "tivilsta"
)

var errUsage = errors.New("usage")

// options holds the parsed command line.
type options struct {
	source           string
	output           string
	whitelist        []string
	all              []string
	reg              []string
	rzd              []string
	allowComplements bool
	showVersion      bool
}

// Application holds the wired components of one run.
type Application struct {
	config  *config.AppConfig
	cleanup *cleanup.Service
	ruler   *whitelist.Ruler
	closers []io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 2
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "%s %s\n", appName, version)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(stderr, "Logging configuration error: %v\n", err)
		return 1
	}

	log.Debug(map[string]any{
		"version":           version,
		"env":               cfg.Env,
		"catalog_db":        cfg.CatalogDB,
		"catalog_ttl":       cfg.CatalogTTL.String(),
		"allow_complements": opts.allowComplements,
	}, "Starting tivilsta")

	app, err := buildApplication(ctx, cfg, opts, stdout)
	if err != nil {
		log.Error(map[string]any{"error": err}, "Failed to build application")
		return 1
	}

	res, err := app.cleanup.Run(ctx, cleanup.Request{
		Source:    opts.source,
		Output:    opts.output,
		Whitelist: opts.whitelist,
		All:       opts.all,
		Reg:       opts.reg,
		RZD:       opts.rzd,
	})
	err = multierr.Append(err, app.Close())
	if err != nil {
		log.Error(map[string]any{"error": err}, "Cleanup failed")
		return 1
	}

	stats := app.ruler.Stats()
	log.Info(map[string]any{
		"rules":     res.Rules,
		"literals":  stats.Literals,
		"suffixes":  stats.Suffixes,
		"regexes":   stats.Regexes,
		"generated": stats.Generated,
		"dropped":   stats.Dropped,
		"read":      res.Read,
		"kept":      res.Kept,
		"removed":   res.Removed,
	}, "Cleanup complete")
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "%s computes whitelist rules against your lists or hosts files.\n\nUsage:\n  %s -s SOURCE -w WHITELIST [flags]\n\nFlags:\n", appName, appName)
		fs.PrintDefaults()
	}

	fs.StringVarP(&opts.source, "source", "s", "", "the file or URL to clean up")
	fs.StringVarP(&opts.output, "output", "o", "", "write the result to this file instead of stdout")
	fs.StringArrayVarP(&opts.whitelist, "whitelist", "w", nil, "a rule file parsed as written (repeatable)")
	fs.StringArrayVar(&opts.all, "all", nil, "a rule file whose lines get the ALL flag (repeatable)")
	fs.StringArrayVar(&opts.reg, "reg", nil, "a rule file whose lines get the REG flag (repeatable)")
	fs.StringArrayVar(&opts.rzd, "rzd", nil, "a rule file whose lines get the RZD flag (repeatable)")
	fs.BoolVar(&opts.allowComplements, "allow-complements", false, "let example.org also cover www.example.org and the reverse")
	fs.BoolVarP(&opts.showVersion, "version", "V", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.showVersion {
		return opts, nil
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	if opts.source == "" {
		return opts, fmt.Errorf("%w: --source is required", errUsage)
	}
	if len(opts.whitelist) == 0 {
		return opts, fmt.Errorf("%w: --whitelist is required", errUsage)
	}
	return opts, nil
}

// buildApplication constructs all components and wires them together.
func buildApplication(ctx context.Context, cfg *config.AppConfig, opts options, stdout io.Writer) (*Application, error) {
	logger := log.GetLogger()
	app := &Application{config: cfg}

	fetcher := transport.NewHTTPFetcher(transport.Options{
		Timeout: cfg.HTTPTimeout,
		Retries: cfg.HTTPRetries,
		Logger:  logger,
	})

	store := buildCatalogStore(cfg, logger)
	app.closers = append(app.closers, store)

	resolver := tld.NewResolver(store, clock.RealClock{}, cfg.CatalogTTL, logger,
		catalog.NewIANA(cfg.IANAURL, fetcher),
		catalog.NewPSL(cfg.PSLURL, fetcher),
	)

	ruleOpts := []whitelist.Option{
		whitelist.WithTLDSource(tld.NewSource(ctx, resolver)),
		whitelist.WithRegexTimeout(cfg.RegexTimeout),
		whitelist.WithLogger(logger),
	}
	if cfg.DecisionCacheSize > 0 {
		cache, err := lru.New(cfg.DecisionCacheSize)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("failed to create decision cache: %w", err)
		}
		ruleOpts = append(ruleOpts, whitelist.WithDecisionCache(cache))
	}
	if cfg.BloomFPRate > 0 {
		ruleOpts = append(ruleOpts, whitelist.WithBloom(bloom.NewFactory(), cfg.BloomFPRate))
	}

	app.ruler = whitelist.NewRuler(opts.allowComplements, ruleOpts...)
	app.cleanup = cleanup.New(app.ruler, source.NewOpener(fetcher, logger), stdout, logger)
	return app, nil
}

// buildCatalogStore opens the bbolt catalog cache. An unusable cache is not
// fatal; catalogs are then downloaded on every run.
func buildCatalogStore(cfg *config.AppConfig, logger log.Logger) catalogrepo.Store {
	if cfg.CatalogDB == "" {
		logger.Debug(nil, "catalog_cache_disabled")
		return catalogrepo.NewNopStore()
	}
	store, err := bolt.New(cfg.CatalogDB)
	if err != nil {
		logger.Warn(map[string]any{"path": cfg.CatalogDB, "error": err}, "Catalog cache unavailable, continuing without it")
		return catalogrepo.NewNopStore()
	}
	return store
}

// Close releases every resource the application opened.
func (a *Application) Close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c.Close())
	}
	a.closers = nil
	return err
}
