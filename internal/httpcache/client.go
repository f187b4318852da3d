// Package httpcache is the single-flight HTTP GET/HEAD client: deterministic
// dialing with explicit suspension points (DNS, TCP, TLS, send, receive),
// content-addressed on-disk caching, and the transport-failure sentinel
// codes other components key off of.
package httpcache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/siteone-mirror/crawler/internal/status"
	"github.com/siteone-mirror/crawler/internal/wireformat"
)

// CrawlerVersion is embedded in every outgoing X-Crawler-Info header.
const CrawlerVersion = "siteone-mirror-crawler/1.0"

// HttpResponse is the normalized result of a single request.
type HttpResponse struct {
	Url             string
	StatusCode      int
	Body            []byte
	Headers         map[string][]string // lowercased keys
	ExecTime        time.Duration
	LoadedFromCache bool
	SkippedReason   string
}

// Header returns the first value of key (case-insensitive), or "".
func (r *HttpResponse) Header(key string) string {
	vs := r.Headers[strings.ToLower(key)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// RequestParams is the full parameter set a single request needs.
type RequestParams struct {
	Host, Port, Scheme, Url, Method string
	Timeout                        time.Duration
	UserAgent, Accept, AcceptEncoding, Origin string
	UseAuth                                   bool
	AuthUser, AuthPass                        string
	ForcedIP                                  string
	RunID                                     string
}

// Client is the HTTP cache client. It does not reuse connections across
// requests: every request sends "Connection: close" and dials fresh, so
// there is no connection pool to manage.
type Client struct {
	cache  *DiskCache
	proxy  string // host:port, or "" for direct
	logger zerolog.Logger
}

// New constructs a Client. proxy, when non-empty, is a host:port forward
// proxy; cache may be nil to disable caching entirely.
func New(cache *DiskCache, proxy string, logger zerolog.Logger) *Client {
	return &Client{cache: cache, proxy: proxy, logger: logger}
}

// Request performs a single GET/HEAD, preferring the on-disk cache when
// eligible, and always recording a result: transport failures are mapped to
// the negative sentinel codes rather than returned as a Go error, so the
// Crawl Engine never special-cases a failed fetch.
func (c *Client) Request(ctx context.Context, p RequestParams) *HttpResponse {
	ext := extensionHint(p.Url)
	keyParams := CacheKeyParams{
		Host: p.Host, Port: p.Port, Scheme: p.Scheme, Url: p.Url,
		Method: p.Method, UserAgent: p.UserAgent, Accept: p.Accept,
		AcceptEncoding: p.AcceptEncoding, Origin: p.Origin,
	}

	if c.cache.Enabled() && !bypassCache(p.ForcedIP, p.Url) {
		if rec, ok := c.cache.Get(keyParams, ext); ok {
			return applyRedirectSynthesis(&HttpResponse{
				Url:             p.Url,
				StatusCode:      int(rec.StatusCode),
				Body:            rec.Body,
				Headers:         headersFromFields(rec.Headers),
				ExecTime:        time.Duration(rec.ExecMicros) * time.Microsecond,
				LoadedFromCache: true,
			})
		}
	}

	start := time.Now()
	resp := c.doNetworkRequest(ctx, p)
	resp.ExecTime = time.Since(start)

	if !status.IsInRetrySet(resp.StatusCode) && c.cache.Enabled() && !bypassCache(p.ForcedIP, p.Url) {
		rec := wireformat.CacheRecord{
			StatusCode: int32(resp.StatusCode),
			Headers:    fieldsFromHeaders(resp.Headers),
			Body:       resp.Body,
			ExecMicros: resp.ExecTime.Microseconds(),
		}
		if err := c.cache.Put(keyParams, ext, rec); err != nil {
			c.logger.Warn().Err(err).Str("url", p.Url).Msg("httpcache: write failed")
		}
	}

	return applyRedirectSynthesis(resp)
}

func (c *Client) doNetworkRequest(ctx context.Context, p RequestParams) *HttpResponse {
	dialHost := p.Host
	if p.ForcedIP != "" {
		dialHost = p.ForcedIP
	}
	addr := net.JoinHostPort(dialHost, p.Port)
	if c.proxy != "" {
		addr = c.proxy
	}

	dialer := &net.Dialer{Timeout: p.Timeout}
	reqCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	conn, err := dialer.DialContext(reqCtx, "tcp", addr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &HttpResponse{Url: p.Url, StatusCode: -2}
		}
		return &HttpResponse{Url: p.Url, StatusCode: -1}
	}
	defer conn.Close()

	if p.Scheme == "https" {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: p.Host, InsecureSkipVerify: c.proxy != ""})
		tlsConn.SetDeadline(deadlineFor(reqCtx))
		if err := tlsConn.Handshake(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return &HttpResponse{Url: p.Url, StatusCode: -2}
			}
			return &HttpResponse{Url: p.Url, StatusCode: -1}
		}
		conn = tlsConn
	}
	conn.SetDeadline(deadlineFor(reqCtx))

	req, err := c.buildRequest(p)
	if err != nil {
		return &HttpResponse{Url: p.Url, StatusCode: -4}
	}
	// Preserve the original virtual-host Host header even when dialing a
	// forced IP, so name-based routing on the origin still resolves.
	req.Host = p.Host
	req.Close = true

	if _, err := req.Write(conn); err != nil {
		return &HttpResponse{Url: p.Url, StatusCode: -4}
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return &HttpResponse{Url: p.Url, StatusCode: -2}
		}
		if isReset(err) {
			return &HttpResponse{Url: p.Url, StatusCode: -3}
		}
		return &HttpResponse{Url: p.Url, StatusCode: -1}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isReset(err) {
			return &HttpResponse{Url: p.Url, StatusCode: -3, Headers: normalizeHeaders(resp.Header)}
		}
		return &HttpResponse{Url: p.Url, StatusCode: -1, Headers: normalizeHeaders(resp.Header)}
	}

	return &HttpResponse{
		Url:        p.Url,
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    normalizeHeaders(resp.Header),
	}
}

func deadlineFor(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(30 * time.Second)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isReset(err error) bool {
	return strings.Contains(err.Error(), "reset by peer") || strings.Contains(err.Error(), "broken pipe")
}

func (c *Client) buildRequest(p RequestParams) (*http.Request, error) {
	u, err := url.Parse(p.Url)
	if err != nil {
		return nil, err
	}
	method := p.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequest(method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	if p.Accept != "" {
		req.Header.Set("Accept", p.Accept)
	}
	if p.AcceptEncoding != "" {
		req.Header.Set("Accept-Encoding", p.AcceptEncoding)
	}
	if p.Origin != "" {
		req.Header.Set("Origin", p.Origin)
	}
	req.Header.Set("Connection", "close")
	req.Header.Set("X-Crawler-Info", fmt.Sprintf("%s; run=%s", CrawlerVersion, p.RunID))
	if p.UseAuth && p.AuthUser != "" {
		req.SetBasicAuth(p.AuthUser, p.AuthPass)
	}
	return req, nil
}

// normalizeHeaders lowercases keys; set-cookie stays a list, everything
// else is joined with ", ".
func normalizeHeaders(h http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lk := strings.ToLower(k)
		vs := h[k]
		if lk == "set-cookie" {
			out[lk] = append(out[lk], vs...)
			continue
		}
		out[lk] = []string{strings.Join(vs, ", ")}
	}
	return out
}

func headersFromFields(fields []wireformat.HeaderField) map[string][]string {
	out := make(map[string][]string, len(fields))
	for _, f := range fields {
		out[f.Key] = append(out[f.Key], f.Value)
	}
	return out
}

func fieldsFromHeaders(h map[string][]string) []wireformat.HeaderField {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []wireformat.HeaderField
	for _, k := range keys {
		for _, v := range h[k] {
			out = append(out, wireformat.HeaderField{Key: k, Value: v})
		}
	}
	return out
}

// applyRedirectSynthesis rewrites a 3xx response carrying a Location header
// into a synthesized text/html body with a meta-refresh, so every
// downstream parser only ever has to understand HTML.
func applyRedirectSynthesis(resp *HttpResponse) *HttpResponse {
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return resp
	}
	loc := resp.Header("location")
	if loc == "" {
		return resp
	}
	body := fmt.Sprintf(`<html><head><meta http-equiv="refresh" content="0;url=%s"></head><body></body></html>`, escapeAttr(loc))
	resp.Body = []byte(body)
	if resp.Headers == nil {
		resp.Headers = map[string][]string{}
	}
	resp.Headers["content-type"] = []string{"text/html"}
	return resp
}

func escapeAttr(s string) string {
	r := strings.NewReplacer(`"`, "&quot;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func extensionHint(rawUrl string) string {
	u, err := url.Parse(rawUrl)
	if err != nil {
		return ""
	}
	path := u.Path
	idx := strings.LastIndex(path, ".")
	slash := strings.LastIndex(path, "/")
	if idx < 0 || idx < slash {
		return ""
	}
	return strings.ToLower(path[idx+1:])
}
