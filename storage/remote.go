package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/edges-ai/vquant/frame"
)

// RemoteConfig tunes how a Remote store fetches and caches objects.
type RemoteConfig struct {
	// HTTPClient overrides the client used for object fetches.
	HTTPClient *http.Client
	// TTL bounds how long a cached file is trusted. Zero disables expiry;
	// research datasets are append-mostly, so a day is a safe default.
	TTL time.Duration
	// RequestsPerSecond throttles object fetches. Zero disables throttling.
	RequestsPerSecond float64
	// Burst is the throttle burst size.
	Burst int
}

// DefaultRemoteConfig returns the fetch policy used when no overrides are
// given.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		TTL:               24 * time.Hour,
		RequestsPerSecond: 8,
		Burst:             4,
	}
}

// Remote is a read-only Store over an HTTP(S) base URL serving the standard
// layout. Objects are downloaded into a local cache tree and read there, so
// repeated loads cost one fetch until the TTL lapses. Concurrent loads of
// the same object share a single download.
type Remote struct {
	baseURL string
	cache   *Local
	client  *http.Client
	limiter *rate.Limiter
	ttl     time.Duration
	group   singleflight.Group
}

// NewRemote opens a remote store for baseURL, caching under cacheDir. The
// cache subtree is keyed by a digest of the base URL so multiple remotes can
// share one cache directory.
func NewRemote(baseURL, cacheDir string, cfg RemoteConfig) (*Remote, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q is not http(s)", baseURL)
	}

	base := strings.TrimRight(baseURL, "/")
	digest := blake2b.Sum256([]byte(base))
	cacheRoot := filepath.Join(cacheDir, "remote-"+hex.EncodeToString(digest[:8]))

	cache, err := NewLocal(cacheRoot)
	if err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	limit := rate.Inf
	burst := 0
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = cfg.Burst
		if burst < 1 {
			burst = 1
		}
	}

	return &Remote{
		baseURL: base,
		cache:   cache,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		ttl:     cfg.TTL,
	}, nil
}

// Path returns the object URL the locator addresses.
func (r *Remote) Path(loc Locator) string {
	return r.baseURL + "/" + loc.Market + "/instrument/" +
		strings.ToUpper(loc.Ticker) + "/" + loc.Timeframe + "/" + loc.Category + ".parquet"
}

// CachePath returns where the locator's object lands on disk once fetched.
func (r *Remote) CachePath(loc Locator) string {
	return r.cache.Path(loc)
}

// Load fetches the locator's object if the cache is cold or stale, then
// reads the requested columns from the cached file.
func (r *Remote) Load(ctx context.Context, loc Locator, columns []string) (map[string]*frame.Series, error) {
	if err := r.ensure(ctx, loc); err != nil {
		return nil, err
	}
	return r.cache.Load(ctx, loc, columns)
}

// Columns lists the value columns of the locator's object.
func (r *Remote) Columns(ctx context.Context, loc Locator) ([]string, error) {
	if err := r.ensure(ctx, loc); err != nil {
		return nil, err
	}
	return r.cache.Columns(ctx, loc)
}

// Save is not supported; remote stores are read-only.
func (r *Remote) Save(ctx context.Context, loc Locator, column string, series *frame.Series) error {
	return fmt.Errorf("save %s: %w", loc, ErrReadOnly)
}

// ListFactors reports the catalog. Bases served by Google Cloud Storage are
// listed through the JSON API and inspected file by file; other hosts have
// no listing surface, so the default catalog is reported.
func (r *Remote) ListFactors(ctx context.Context, market, timeframe, category string) ([]FactorInfo, error) {
	if !IsPathToken(market) || !IsPathToken(timeframe) {
		return nil, fmt.Errorf("invalid market %q or timeframe %q", market, timeframe)
	}

	if bucket, prefix, ok := splitGCSBase(r.baseURL); ok {
		return r.gcsListFactors(ctx, bucket, prefix, market, timeframe, category)
	}

	out := make([]FactorInfo, 0, len(DefaultCatalog))
	for _, fi := range DefaultCatalog {
		if category == "" || fi.Category == category {
			out = append(out, fi)
		}
	}
	return out, nil
}

// Close releases the cache's database session.
func (r *Remote) Close() error {
	return r.cache.Close()
}

// ensure makes the locator's object present and fresh in the cache.
func (r *Remote) ensure(ctx context.Context, loc Locator) error {
	if err := loc.Validate(); err != nil {
		return err
	}

	cachePath := r.cache.Path(loc)
	if info, err := os.Stat(cachePath); err == nil {
		if r.ttl == 0 || time.Since(info.ModTime()) < r.ttl {
			return nil
		}
	}

	objectURL := r.Path(loc)
	_, err, _ := r.group.Do(objectURL, func() (interface{}, error) {
		return nil, r.fetch(ctx, objectURL, cachePath)
	})
	return err
}

// fetch downloads one object into the cache, atomically replacing any stale
// copy.
func (r *Remote) fetch(ctx context.Context, objectURL, cachePath string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle fetch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", objectURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, objectURL)
	default:
		return fmt.Errorf("fetch %s: unexpected status %s", objectURL, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(cachePath), ".fetch-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("download %s: %w", objectURL, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("flush download: %w", err)
	}
	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("install cached file: %w", err)
	}

	return nil
}

var _ Store = (*Remote)(nil)
