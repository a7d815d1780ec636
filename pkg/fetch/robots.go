package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/pipeline"
	"github.com/temoto/robotstxt"
)

const (
	robotsPath         = "/robots.txt"
	maxRobotsBodyBytes = 512 * 1024

	// redis sentinel for hosts whose robots.txt was missing or unreachable
	robotsAllowSentinel = "__allow_all__"
)

// RobotsChecker caches robots.txt decisions per host: an in-process map for
// the run's lifetime, backed by redis so decisions survive restarts and are
// shared across instances. Missing or errored robots.txt allows all
// (standard practice).
type RobotsChecker struct {
	httpClient *http.Client
	userAgent  string
	rdb        *redis.Client
	ttl        time.Duration

	mu    sync.RWMutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
	allowAll  bool
}

func NewRobotsChecker(httpClient *http.Client, userAgent string, rdb *redis.Client, ttl time.Duration) *RobotsChecker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RobotsChecker{
		httpClient: httpClient,
		userAgent:  userAgent,
		rdb:        rdb,
		ttl:        ttl,
		cache:      make(map[string]robotsEntry),
	}
}

// Allowed reports whether the given URL may be fetched under the host's
// robots.txt. A disallow comes back as a pipeline.PolicyError so callers can
// fail the run before any product fetch.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("robots: parse url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	if host == "" {
		return fmt.Errorf("robots: empty host in url %q", rawURL)
	}

	entry, err := r.entryFor(ctx, host, parsed.Scheme)
	if err != nil {
		return err
	}

	if entry.allowAll || entry.data.TestAgent(parsed.Path, r.userAgent) {
		return nil
	}
	return pipeline.PolicyError{Domain: host, Path: parsed.Path}
}

func (r *RobotsChecker) entryFor(ctx context.Context, host, scheme string) (robotsEntry, error) {
	r.mu.RLock()
	entry, ok := r.cache[host]
	r.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < r.ttl {
		return entry, nil
	}

	if body, ok := r.fromRedis(ctx, host); ok {
		return r.store(host, body), nil
	}

	body, err := r.fetch(ctx, host, scheme)
	if err != nil {
		return robotsEntry{}, err
	}

	r.toRedis(ctx, host, body)
	return r.store(host, body), nil
}

func (r *RobotsChecker) store(host, body string) robotsEntry {
	entry := robotsEntry{fetchedAt: time.Now(), allowAll: true}
	if body != robotsAllowSentinel {
		if data, err := robotstxt.FromString(body); err == nil {
			entry.data = data
			entry.allowAll = false
		}
	}

	r.mu.Lock()
	r.cache[host] = entry
	r.mu.Unlock()
	return entry
}

func (r *RobotsChecker) fetch(ctx context.Context, host, scheme string) (string, error) {
	if scheme == "" {
		scheme = "https"
	}
	robotsURL := scheme + "://" + host + robotsPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return "", fmt.Errorf("robots: build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		// unreachable robots endpoint is not a reason to block the run
		logger.Log.WithError(err).WithField("host", host).Warn("robots.txt fetch failed, allowing")
		return robotsAllowSentinel, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return robotsAllowSentinel, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodyBytes))
	if err != nil {
		return robotsAllowSentinel, nil
	}
	return string(body), nil
}

func (r *RobotsChecker) fromRedis(ctx context.Context, host string) (string, bool) {
	if r.rdb == nil {
		return "", false
	}
	body, err := r.rdb.Get(ctx, robotsKey(host)).Result()
	if err != nil {
		return "", false
	}
	return body, true
}

func (r *RobotsChecker) toRedis(ctx context.Context, host, body string) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Set(ctx, robotsKey(host), body, r.ttl).Err(); err != nil {
		logger.Log.WithError(err).WithField("host", host).Warn("failed to cache robots.txt in redis")
	}
}

func robotsKey(host string) string {
	return "robots:" + host
}
