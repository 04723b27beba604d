package logo

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cryptick/pkg/models"

	"golang.org/x/sync/semaphore"
)

// FetchTimeout bounds a single remote logo download.
var FetchTimeout = 10 * time.Second

// maxConcurrentFetches is the system-wide cap on simultaneous logo downloads.
const maxConcurrentFetches = 4

// Cache is a two-level token logo cache: an in-memory map over one image file
// per sanitized token key on disk. Lookups never touch the network; remote
// fetches happen only through Prefetch, and any failure there is silently
// skipped so missing logos never block rendering.
type Cache struct {
	dir  string
	http *http.Client
	sem  *semaphore.Weighted
	log  *slog.Logger

	mu  sync.RWMutex
	mem map[string]string // token key -> verified file path
}

func NewCache(dir string, log *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		dir:  dir,
		http: &http.Client{Timeout: FetchTimeout},
		sem:  semaphore.NewWeighted(maxConcurrentFetches),
		log:  log,
		mem:  map[string]string{},
	}, nil
}

func (c *Cache) fileFor(key string) string {
	return filepath.Join(c.dir, models.SanitizeKey(key)+".png")
}

// Path returns the on-disk image path for a token key, or "" if the logo is
// not cached yet. Memory first, then disk.
func (c *Cache) Path(key string) string {
	c.mu.RLock()
	p, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		return p
	}

	p = c.fileFor(key)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	c.mu.Lock()
	c.mem[key] = p
	c.mu.Unlock()
	return p
}

// Prefetch downloads logos for any of the given key->URL pairs not already
// cached, at most four at a time. It blocks until all fetches settle.
func (c *Cache) Prefetch(ctx context.Context, urls map[string]string) {
	var wg sync.WaitGroup
	for key, url := range urls {
		if url == "" || c.Path(key) != "" {
			continue
		}
		wg.Add(1)
		go func(key, url string) {
			defer wg.Done()
			if err := c.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer c.sem.Release(1)
			c.fetchOne(ctx, key, url)
		}(key, url)
	}
	wg.Wait()
}

func (c *Cache) fetchOne(ctx context.Context, key, url string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("logo fetch failed", "key", key, "err", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		c.log.Debug("logo fetch failed", "key", key, "status", resp.StatusCode)
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		c.log.Debug("logo decode failed", "key", key, "err", err)
		return
	}

	path := c.fileFor(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		return
	}
	c.mu.Lock()
	c.mem[key] = path
	c.mu.Unlock()
}
