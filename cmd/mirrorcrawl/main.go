// Command mirrorcrawl crawls a website and, when --offline-export-dir or
// --offline-export-s3 is given, writes an offline-browsable mirror of it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/siteone-mirror/crawler/internal/config"
	"github.com/siteone-mirror/crawler/internal/crawlengine"
	"github.com/siteone-mirror/crawler/internal/httpcache"
	"github.com/siteone-mirror/crawler/internal/mirror"
	"github.com/siteone-mirror/crawler/internal/sitepolicy"
	"github.com/siteone-mirror/crawler/internal/status"
)

// replaceContentFlag collects repeated --replace-content "pattern ->
// replacement" occurrences into config.ReplaceRule values.
type replaceContentFlag []config.ReplaceRule

func (f *replaceContentFlag) String() string {
	return fmt.Sprint([]config.ReplaceRule(*f))
}

func (f *replaceContentFlag) Set(s string) error {
	rule, err := config.ParseReplaceRule(s)
	if err != nil {
		return err
	}
	*f = append(*f, rule)
	return nil
}

var (
	configFile     = flag.String("config", "", "YAML config file; flags below override its values.")
	siteFile       = flag.String("site", "", "Optional YAML resource-classification file.")
	startURL       = flag.String("url", "", "Root URL to crawl.")
	workers        = flag.Int("workers", 0, "Max concurrent fetches (0 keeps the config/default value).")
	timeoutSeconds = flag.Int("timeout", 0, "Per-request timeout in seconds (0 keeps the config/default value).")
	userAgent      = flag.String("user-agent", "", "User-Agent header override.")
	proxy          = flag.String("proxy", "", "Forward proxy as host:port.")
	httpAuth       = flag.String("http-auth", "", "HTTP basic auth as user:pass.")
	memoryLimit    = flag.String("memory-limit", "", "Heap memory limit, e.g. 512M; new frontier entries wait while it is exceeded.")
	httpCacheDir   = flag.String("http-cache-dir", "", "On-disk HTTP response cache directory.")
	httpCacheGzip  = flag.Bool("http-cache-compression", false, "Gzip-compress cached response bodies.")
	exportDir      = flag.String("offline-export-dir", "", "Local directory to write the mirror into.")
	exportS3       = flag.String("offline-export-s3", "", "S3 target as region:bucket[:prefix] to write the mirror into.")
	statusDB       = flag.String("status-db", "", "bbolt file to persist crawl status in; empty keeps status in memory.")
	allowCrawl     = flag.String("allowed-domain-for-crawling", "", "Comma-separated glob patterns of extra hosts to crawl.")
	allowExternal  = flag.String("allowed-domain-for-external-files", "", "Comma-separated glob patterns of hosts to mirror assets from without crawling.")
	includeRegex   = flag.String("include-regex", "", "Comma-separated regexes; a URL must match at least one.")
	ignoreRegex    = flag.String("ignore-regex", "", "Comma-separated regexes; a URL matching any is skipped.")
	regexPagesOnly = flag.Bool("regex-filtering-only-for-pages", false, "Apply include/ignore regex to HTML pages only.")
	ignoreRobots   = flag.Bool("ignore-robots-txt", false, "Crawl without consulting robots.txt.")
	disableJS      = flag.Bool("disable-javascript", false, "Do not fetch or link scripts.")
	disableStyles  = flag.Bool("disable-styles", false, "Do not fetch or link stylesheets.")
	disableFonts   = flag.Bool("disable-fonts", false, "Do not fetch or link fonts.")
	disableImages  = flag.Bool("disable-images", false, "Do not fetch or link images.")
	disableFiles   = flag.Bool("disable-files", false, "Do not write other static files to the mirror (they are still fetched when linked).")
	ignoreFileErr  = flag.Bool("ignore-store-file-error", false, "Log and continue past mirror write errors instead of failing the run.")

	replaceContent replaceContentFlag
)

func init() {
	flag.Var(&replaceContent, "replace-content", `Content substitution "pattern -> replacement", applied to mirrored HTML/CSS/JS bodies; repeatable.`)
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("could not load configuration")
		os.Exit(100)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(101)
	}

	var classifier *sitepolicy.Classifier
	if *siteFile != "" {
		data, err := os.ReadFile(*siteFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not read site file")
		}
		siteCfg, err := sitepolicy.Load(data)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not parse site file")
		}
		classifier = sitepolicy.NewClassifier(siteCfg)
	}

	cacheDir := cfg.HTTPCacheDir
	if cacheDir == "off" {
		cacheDir = ""
	}
	cache := httpcache.NewDiskCache(cacheDir, cfg.HTTPCacheCompression)
	client := httpcache.New(cache, cfg.Proxy, logger)

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open status store")
	}
	defer store.Close()

	writer, err := openWriter(cfg, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open mirror writer")
	}
	if writer != nil {
		defer writer.Close()
	}

	engine, err := crawlengine.New(cfg, client, store, writer, classifier, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not construct crawl engine")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := engine.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("crawl failed")
	}

	summary := store.Summary()
	logger.Info().
		Int("visited", summary.TotalVisited).
		Int64("bytes", summary.TotalBytes).
		Int("notices", summary.TotalNotices).
		Msg("crawl finished")
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	applyFlags(&cfg)
	return cfg, nil
}

func applyFlags(cfg *config.Config) {
	if *startURL != "" {
		cfg.URL = *startURL
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *timeoutSeconds > 0 {
		cfg.TimeoutSeconds = *timeoutSeconds
	}
	if *userAgent != "" {
		cfg.UserAgent = *userAgent
	}
	if *proxy != "" {
		cfg.Proxy = *proxy
	}
	if *httpAuth != "" {
		cfg.HTTPAuth = *httpAuth
	}
	if *memoryLimit != "" {
		cfg.MemoryLimit = *memoryLimit
	}
	if *httpCacheDir != "" {
		cfg.HTTPCacheDir = *httpCacheDir
	}
	if *httpCacheGzip {
		cfg.HTTPCacheCompression = true
	}
	if *allowCrawl != "" {
		cfg.AllowedDomainForCrawling = splitCSV(*allowCrawl)
	}
	if *allowExternal != "" {
		cfg.AllowedDomainForExternalFiles = splitCSV(*allowExternal)
	}
	if *includeRegex != "" {
		cfg.IncludeRegex = splitCSV(*includeRegex)
	}
	if *ignoreRegex != "" {
		cfg.IgnoreRegex = splitCSV(*ignoreRegex)
	}
	if *regexPagesOnly {
		cfg.RegexFilteringOnlyForPages = true
	}
	if *ignoreRobots {
		cfg.IgnoreRobotsTxt = true
	}
	if *disableJS {
		cfg.DisableJavascript = true
	}
	if *disableStyles {
		cfg.DisableStyles = true
	}
	if *disableFonts {
		cfg.DisableFonts = true
	}
	if *disableImages {
		cfg.DisableImages = true
	}
	if *disableFiles {
		cfg.DisableFiles = true
	}
	if *ignoreFileErr {
		cfg.IgnoreStoreFileError = true
	}
	if *exportDir != "" {
		cfg.OfflineExportDir = *exportDir
	}
	if len(replaceContent) > 0 {
		cfg.ReplaceContent = replaceContent
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func openStore(cfg config.Config) (status.Store, error) {
	if *statusDB == "" {
		return status.NewMemoryStore(), nil
	}
	return status.OpenBoltStore(*statusDB, cfg.HTTPCacheCompression)
}

func openWriter(cfg config.Config, store status.Store) (mirror.Writer, error) {
	switch {
	case *exportS3 != "":
		return mirror.NewWriter("s3:" + *exportS3)
	case cfg.OfflineExportDir != "":
		return mirror.NewLocalWriter(cfg.OfflineExportDir, store, cfg.IgnoreStoreFileError)
	default:
		return nil, nil
	}
}
