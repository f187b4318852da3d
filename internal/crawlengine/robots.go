package crawlengine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/siteone-mirror/crawler/internal/httpcache"
)

// robotsCache fetches and caches one host's robots.txt, fetched at most
// once per host per crawl, grounded on the fetch-once-and-negative-cache
// pattern used across the pack's robots.txt-aware crawlers. A failed or
// absent robots.txt is cached as "allow everything", since robots.txt is
// advisory and its absence is not an error.
type robotsCache struct {
	client    *httpcache.Client
	userAgent string
	timeout   time.Duration

	mu   sync.Mutex
	data map[string]*robotstxt.RobotsData
}

func newRobotsCache(client *httpcache.Client, userAgent string, timeout time.Duration) *robotsCache {
	return &robotsCache{client: client, userAgent: userAgent, timeout: timeout, data: make(map[string]*robotstxt.RobotsData)}
}

func (c *robotsCache) allowed(ctx context.Context, scheme, host string, port int, path, runID string) bool {
	rd := c.fetch(ctx, scheme, host, port, runID)
	if rd == nil {
		return true
	}
	group := rd.FindGroup(c.userAgent)
	return group.Test(path)
}

func (c *robotsCache) fetch(ctx context.Context, scheme, host string, port int, runID string) *robotstxt.RobotsData {
	key := fmt.Sprintf("%s://%s:%d", scheme, host, port)

	c.mu.Lock()
	if rd, ok := c.data[key]; ok {
		c.mu.Unlock()
		return rd
	}
	c.mu.Unlock()

	resp := c.client.Request(ctx, httpcache.RequestParams{
		Host: host, Port: strconv.Itoa(port), Scheme: scheme,
		Url:       fmt.Sprintf("%s://%s/robots.txt", scheme, host),
		Method:    "GET",
		UserAgent: c.userAgent,
		Timeout:   c.timeout,
		RunID:     runID,
	})

	var rd *robotstxt.RobotsData
	if resp != nil && resp.StatusCode == 200 {
		rd, _ = robotstxt.FromBytes(resp.Body)
	}

	c.mu.Lock()
	c.data[key] = rd
	c.mu.Unlock()
	return rd
}
