package download

import (
	"os"
	"strings"
	"sync"
)

// AudioExtensions are the files a finished audio download can leave behind.
var AudioExtensions = []string{".m4a", ".mp3", ".flac", ".opus", ".webm", ".aac"}

// DirectoryCache remembers which files exist in an output directory so
// --skip-existing doesn't stat once per item.
type DirectoryCache struct {
	mu    sync.RWMutex
	files map[string]struct{}
}

func NewDirectoryCache(dir string) (*DirectoryCache, error) {
	cache := &DirectoryCache{
		files: make(map[string]struct{}),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return cache, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() && !strings.HasSuffix(entry.Name(), partSuffix) {
			cache.files[entry.Name()] = struct{}{}
		}
	}

	return cache, nil
}

// Has reports whether stem exists with any of exts, or bare when exts is empty.
func (c *DirectoryCache) Has(stem string, exts ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(exts) == 0 {
		_, ok := c.files[stem]
		return ok
	}
	for _, ext := range exts {
		if _, ok := c.files[stem+ext]; ok {
			return true
		}
	}
	return false
}

// Add records a file written during this run.
func (c *DirectoryCache) Add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[name] = struct{}{}
}
