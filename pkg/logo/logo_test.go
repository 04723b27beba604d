package logo

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	assert.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrefetchAndPath(t *testing.T) {
	data := pngBytes(t)
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(data)
	}))
	defer server.Close()

	c, err := NewCache(t.TempDir(), nil)
	assert.NoError(t, err)

	key := "eth:0xaaa"
	assert.Equal(t, "", c.Path(key))

	c.Prefetch(context.Background(), map[string]string{key: server.URL + "/alpha.png"})

	p := c.Path(key)
	assert.NotEqual(t, "", p)
	assert.Equal(t, "eth_0xaaa.png", filepath.Base(p))
	got, err := os.ReadFile(p)
	assert.NoError(t, err)
	assert.Equal(t, data, got)

	// Already cached: no second download.
	c.Prefetch(context.Background(), map[string]string{key: server.URL + "/alpha.png"})
	assert.Equal(t, 1, hits)
}

func TestPathFindsExistingFile(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, nil)
	assert.NoError(t, err)

	// A file left by a previous run is picked up without any fetch.
	onDisk := filepath.Join(dir, "eth_0xbbb.png")
	assert.NoError(t, os.WriteFile(onDisk, pngBytes(t), 0644))
	assert.Equal(t, onDisk, c.Path("eth:0xbbb"))
}

func TestPrefetchSkipsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.png":
			http.NotFound(w, r)
		case "/broken.png":
			_, _ = w.Write([]byte("this is not an image"))
		}
	}))
	defer server.Close()

	c, err := NewCache(t.TempDir(), nil)
	assert.NoError(t, err)

	c.Prefetch(context.Background(), map[string]string{
		"eth:0x404": server.URL + "/missing.png",
		"eth:0xbad": server.URL + "/broken.png",
		"eth:0x000": "",
	})

	// Failures leave nothing behind, cached or on disk.
	assert.Equal(t, "", c.Path("eth:0x404"))
	assert.Equal(t, "", c.Path("eth:0xbad"))
	entries, err := os.ReadDir(c.dir)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrefetchHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes(t))
	}))
	defer server.Close()

	c, err := NewCache(t.TempDir(), nil)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Prefetch(ctx, map[string]string{"eth:0xccc": server.URL + "/c.png"})
	assert.Equal(t, "", c.Path("eth:0xccc"))
}
