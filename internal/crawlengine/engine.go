// Package crawlengine is the crawl engine: a bounded worker pool that
// drains a frontier of discovered URLs, fetches each one through the HTTP
// cache client, classifies and extracts outbound references, enqueues newly
// discovered in-scope URLs, and records every outcome in the status store.
// Concurrency is a single supervisor feeding N parallel fetchers, with a
// causal-only ordering guarantee.
package crawlengine

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/siteone-mirror/crawler/internal/config"
	"github.com/siteone-mirror/crawler/internal/contentscan"
	"github.com/siteone-mirror/crawler/internal/httpcache"
	"github.com/siteone-mirror/crawler/internal/mirror"
	"github.com/siteone-mirror/crawler/internal/sitepolicy"
	"github.com/siteone-mirror/crawler/internal/status"
	"github.com/siteone-mirror/crawler/internal/urlmodel"
)

// Engine coordinates one crawl run: frontier, visited set, scope decisions,
// and the worker pool. An Engine is single-use; construct a new one per run.
type Engine struct {
	cfg        config.Config
	client     *httpcache.Client
	store      status.Store
	writer     mirror.Writer
	classifier *sitepolicy.Classifier
	log        zerolog.Logger
	runID      string

	initialHost string
	scope       *scope
	robots      *robotsCache

	frontier chan frontierItem
	seenMu   sync.Mutex
	seen     map[string]struct{}
	wg       sync.WaitGroup
	sem      *semaphore.Weighted

	memLimitBytes uint64
	memPaused     atomic.Bool
}

// frontierItem pairs a discovered URL with the UqId of the page that
// discovered it, so VisitedUrl.SourceUqId can record the causal edge.
type frontierItem struct {
	url        urlmodel.ParsedUrl
	sourceUqId string
}

// New constructs an Engine. writer may be nil to disable mirror output
// (equivalent to --offline-export-dir being unset); classifier may be nil
// to skip resource-category labeling.
func New(cfg config.Config, client *httpcache.Client, store status.Store, writer mirror.Writer, classifier *sitepolicy.Classifier, logger zerolog.Logger) (*Engine, error) {
	seed, err := urlmodel.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("crawlengine: seed url: %w", err)
	}

	sc, err := newScope(seed.Host, cfg.AllowedDomainForCrawling, cfg.AllowedDomainForExternalFiles, cfg.IncludeRegex, cfg.IgnoreRegex, cfg.RegexFilteringOnlyForPages)
	if err != nil {
		return nil, fmt.Errorf("crawlengine: scope: %w", err)
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = "siteone-mirror-crawler/1.0"
	}
	cfg.UserAgent = ua

	memLimitBytes, err := cfg.MemoryLimitBytes()
	if err != nil {
		return nil, fmt.Errorf("crawlengine: memory limit: %w", err)
	}

	e := &Engine{
		cfg:         cfg,
		client:      client,
		store:       store,
		writer:      writer,
		classifier:  classifier,
		log:         logger,
		runID:       uuid.NewString(),
		initialHost: seed.Host,
		scope:       sc,
		robots:      newRobotsCache(client, ua, time.Duration(cfg.TimeoutSeconds)*time.Second),
		frontier:      make(chan frontierItem, cfg.MaxQueueLength),
		seen:          make(map[string]struct{}),
		sem:           semaphore.NewWeighted(int64(cfg.Workers)),
		memLimitBytes: memLimitBytes,
	}
	store.SetFinalUserAgent(ua)
	return e, nil
}

// Run crawls starting from cfg.URL until the frontier drains or ctx is
// cancelled. It returns the first fatal per-run error (e.g. the seed
// itself could not be parsed); individual URL failures are never returned,
// only recorded in the status store.
func (e *Engine) Run(ctx context.Context) error {
	seed, err := urlmodel.Parse(e.cfg.URL)
	if err != nil {
		return fmt.Errorf("crawlengine: seed url: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if e.memLimitBytes > 0 {
		go e.pollMemory(runCtx)
	}

	e.enqueue(runCtx, seed, "")

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()

	g, gctx := errgroup.WithContext(runCtx)
loop:
	for {
		select {
		case <-drained:
			break loop
		case <-gctx.Done():
			break loop
		case item, ok := <-e.frontier:
			if !ok {
				break loop
			}
			if err := e.sem.Acquire(gctx, 1); err != nil {
				break loop
			}
			item := item
			g.Go(func() error {
				defer e.sem.Release(1)
				defer e.wg.Done()
				e.process(gctx, item.url, item.sourceUqId)
				return nil
			})
		}
	}
	cancel()
	return g.Wait()
}

// pollMemory samples runtime.MemStats once a second and toggles memPaused
// when allocated heap memory crosses memLimitBytes, logging a notice on
// each transition. enqueue consults memPaused before admitting new work,
// so a crawl under memory pressure stops growing its frontier without
// losing anything already in flight.
func (e *Engine) pollMemory(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var ms runtime.MemStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runtime.ReadMemStats(&ms)
			over := ms.Alloc >= e.memLimitBytes
			wasPaused := e.memPaused.Swap(over)
			switch {
			case over && !wasPaused:
				e.store.AddNotice(status.Notice{Message: fmt.Sprintf("memory limit exceeded (alloc=%d bytes, limit=%d bytes), pausing frontier acceptance", ms.Alloc, e.memLimitBytes)})
			case !over && wasPaused:
				e.store.AddNotice(status.Notice{Message: "memory usage back under limit, resuming frontier acceptance"})
			}
		}
	}
}

// waitForMemory blocks enqueue while memPaused is set, rechecking
// periodically until memory drops back under the limit or ctx is
// cancelled.
func (e *Engine) waitForMemory(ctx context.Context) {
	if e.memLimitBytes == 0 {
		return
	}
	for e.memPaused.Load() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// enqueue admits u to the frontier if it has not already been seen, the
// visited-url cap has not been reached, and the frontier has room. wg is
// incremented before the send succeeds and decremented by the worker once
// processing (including any further enqueues) completes, so the drain
// signal never fires early.
func (e *Engine) enqueue(ctx context.Context, u urlmodel.ParsedUrl, sourceUqId string) {
	e.waitForMemory(ctx)

	full := u.FullUrl()
	if len(full) > e.cfg.MaxURLLength {
		e.store.AddNotice(status.Notice{Message: "url exceeds max-url-length, dropped", Url: full})
		return
	}

	id := u.UqId()
	e.seenMu.Lock()
	if _, ok := e.seen[id]; ok {
		e.seenMu.Unlock()
		return
	}
	if len(e.seen) >= e.cfg.MaxVisitedURLs {
		e.seenMu.Unlock()
		e.store.AddNotice(status.Notice{Message: "max-visited-urls reached, dropped", Url: full})
		return
	}
	e.seen[id] = struct{}{}
	e.seenMu.Unlock()

	e.wg.Add(1)
	select {
	case e.frontier <- frontierItem{url: u, sourceUqId: sourceUqId}:
	default:
		e.store.AddNotice(status.Notice{Message: "max-queue-length reached, dropped", Url: full})
		e.wg.Done()
	}
}

func (e *Engine) requestParams(u urlmodel.ParsedUrl) httpcache.RequestParams {
	p := httpcache.RequestParams{
		Host: u.Host, Port: strconv.Itoa(u.Port), Scheme: u.Scheme, Url: u.FullUrl(),
		Method:         "GET",
		Timeout:        time.Duration(e.cfg.TimeoutSeconds) * time.Second,
		UserAgent:      e.cfg.UserAgent,
		AcceptEncoding: e.cfg.AcceptEncoding,
		RunID:          e.runID,
	}
	if e.cfg.HTTPAuth != "" {
		if user, pass, ok := splitAuth(e.cfg.HTTPAuth); ok {
			p.UseAuth = true
			p.AuthUser = user
			p.AuthPass = pass
		}
	}
	return p
}

func splitAuth(s string) (user, pass string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// process fetches one frontier entry, records its outcome, extracts and
// enqueues further in-scope references, and writes the mirror file when
// offline export is enabled.
func (e *Engine) process(ctx context.Context, u urlmodel.ParsedUrl, sourceUqId string) {
	uqId := u.UqId()
	isExternal := u.Host != e.initialHost
	disp := e.scope.classify(u.Host)

	if disp == dispositionCrawl && !e.cfg.IgnoreRobotsTxt {
		if !e.robots.allowed(ctx, u.Scheme, u.Host, u.Port, u.Path, e.runID) {
			e.store.AddVisitedUrl(status.VisitedUrl{
				UqId: uqId, SourceUqId: sourceUqId, Url: u.FullUrl(), StatusCode: status.StatusSkipped,
				SkippedReason: "disallowed by robots.txt", IsExternal: isExternal,
			})
			return
		}
	}

	resp := e.client.Request(ctx, e.requestParams(u))
	ct := contentscan.Classify(resp.Header("content-type"), u, resp.Body)

	v := status.VisitedUrl{
		UqId: uqId, SourceUqId: sourceUqId, Url: u.FullUrl(), StatusCode: resp.StatusCode,
		RequestMicros: resp.ExecTime.Microseconds(), Size: int64(len(resp.Body)),
		ContentType: ct, IsExternal: isExternal, IsAllowedForCrawling: disp == dispositionCrawl,
	}
	if e.classifier != nil {
		if name := e.classifier.Classify(u.Path); name != "" {
			v.Extras = map[string]string{"resource": name}
		}
	}
	if !e.store.AddVisitedUrl(v) {
		return
	}
	if resp.StatusCode < 0 || resp.StatusCode >= 400 || disp == dispositionSkip {
		return
	}
	_ = e.store.SetBody(uqId, resp.Body)

	if e.contentTypeDisabled(ct) {
		return
	}

	var links []contentscan.FoundUrl
	switch ct {
	case status.ContentHTML:
		links = contentscan.ExtractHTML(resp.Body)
	case status.ContentStylesheet:
		links = contentscan.ExtractCSS(resp.Body)
	}

	if disp == dispositionCrawl {
		for _, f := range links {
			if e.sourceAttrDisabled(f) {
				continue
			}
			target, err := urlmodel.ResolveRelative(u, f.RawHref)
			if err != nil {
				continue
			}
			if e.scope.classify(target.Host) == dispositionSkip {
				continue
			}
			if !e.scope.passesRegexFilters(target.FullUrl(), f.SourceAttr == contentscan.AttrAHref) {
				continue
			}
			e.enqueue(ctx, target, uqId)
		}
	}

	if e.writer != nil {
		e.writeMirror(u, ct, resp.Body, isExternal)
	}
}

// contentTypeDisabled reports whether a whole document's content type is
// excluded by the --disable-* flags before any link extraction happens.
func (e *Engine) contentTypeDisabled(ct status.ContentType) bool {
	switch ct {
	case status.ContentScript:
		return e.cfg.DisableJavascript
	case status.ContentStylesheet:
		return e.cfg.DisableStyles
	case status.ContentFont:
		return e.cfg.DisableFonts
	case status.ContentImage:
		return e.cfg.DisableImages
	case status.ContentOtherFile:
		return e.cfg.DisableFiles
	}
	return false
}

// sourceAttrDisabled keeps references of a disabled kind out of the
// frontier for the --disable-* flags: script/inline-script references
// follow --disable-javascript, <link> references follow --disable-styles,
// <img>/srcset references follow --disable-images, and CSS url()
// references follow either --disable-images or --disable-fonts.
func (e *Engine) sourceAttrDisabled(f contentscan.FoundUrl) bool {
	switch f.SourceAttr {
	case contentscan.AttrScriptSrc, contentscan.AttrInlineScriptSrc:
		return e.cfg.DisableJavascript
	case contentscan.AttrLinkHref:
		return e.cfg.DisableStyles
	case contentscan.AttrImgSrc:
		return e.cfg.DisableImages
	case contentscan.AttrCssUrl:
		return e.cfg.DisableImages || e.cfg.DisableFonts
	}
	return false
}

func (e *Engine) writeMirror(u urlmodel.ParsedUrl, ct status.ContentType, body []byte, isExternal bool) {
	isAllowed := e.scope.isAllowedExternal
	rewritten := body
	switch ct {
	case status.ContentHTML:
		rewritten = mirror.RewriteHTML(body, e.initialHost, u, isAllowed)
		rewritten = mirror.ApplyReplacements(rewritten, e.cfg.ReplaceContent)
	case status.ContentStylesheet:
		rewritten = mirror.RewriteCSS(body, e.initialHost, u, isAllowed)
		rewritten = mirror.ApplyReplacements(rewritten, e.cfg.ReplaceContent)
	case status.ContentScript:
		rewritten = mirror.RewriteJS(body)
		rewritten = mirror.ApplyReplacements(rewritten, e.cfg.ReplaceContent)
	}

	path := mirror.MirrorPath(u, isExternal)
	if err := e.writer.Write(path, rewritten); err != nil {
		e.store.AddNotice(status.Notice{Message: err.Error(), Url: u.FullUrl()})
		return
	}
	e.store.SetMirrorPath(u.UqId(), path)
}
