// Package compilecache implements the worker-local build cache keyed by
// program bytes: a mapping from program bytes to the filesystem path of
// a compiled executable, with entries created on first successful build
// and removed on execution failure or worker shutdown.
package compilecache

import (
	"errors"
	"fmt"
	"os"
)

// ErrNoProbeAvailable is returned if no free executable path could be
// found after probing "executable" and the MaxProbeAttempts numbered
// candidate names after it.
var ErrNoProbeAvailable = errors.New("compilecache: no free executable path found")

// MaxProbeAttempts bounds the numbered ./executableN names tried after
// ./executable
// to avoid looping forever if the working directory is somehow full of
// stale executables.
const MaxProbeAttempts = 1 << 20

// Cache maps program bytes (converted to a string map key) to the
// filesystem path of the compiled executable. It is single-threaded-owned
// by one worker's main loop; it performs no internal locking.
type Cache struct {
	dir     string
	entries map[string]string
}

// New returns an empty Cache whose executables are created in dir (the
// empty string means the current working directory).
func New(dir string) *Cache {
	return &Cache{
		dir:     dir,
		entries: make(map[string]string),
	}
}

// Lookup consults the cache for program, returning the cached executable
// path on hit.
func (c *Cache) Lookup(program []byte) (path string, hit bool) {
	path, hit = c.entries[string(program)]
	return path, hit
}

// Insert records that program compiled successfully to path.
func (c *Cache) Insert(program []byte, path string) {
	c.entries[string(program)] = path
}

// Evict removes the cache entry for program, if any, and returns the path
// that was removed (empty string if there was no entry). It does not
// delete the underlying file; callers are responsible for that, since
// eviction and file deletion are separate steps on the failure paths.
func (c *Cache) Evict(program []byte) string {
	key := string(program)
	path := c.entries[key]
	delete(c.entries, key)
	return path
}

// AllPaths returns every executable path currently referenced by the
// cache, for use during worker shutdown cleanup.
func (c *Cache) AllPaths() []string {
	paths := make([]string, 0, len(c.entries))
	for _, path := range c.entries {
		paths = append(paths, path)
	}
	return paths
}

// Clear empties the cache's bookkeeping without touching the filesystem.
func (c *Cache) Clear() {
	c.entries = make(map[string]string)
}

// ProbeFreshPath chooses a fresh filesystem path by probing
// "./executable", "./executable0", "./executable1", ... until a name can
// be created exclusively (O_CREATE|O_EXCL), protecting against stale
// files left behind by a prior worker sharing the same directory. The
// created (empty) file is left in place at the returned path, ready for
// the compiler to overwrite via its own output-file argument.
func (c *Cache) ProbeFreshPath() (string, error) {
	for i := -1; i < MaxProbeAttempts; i++ {
		name := "executable"
		if i >= 0 {
			name = fmt.Sprintf("executable%d", i)
		}
		path := name
		if c.dir != "" {
			path = c.dir + string(os.PathSeparator) + name
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o755)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", fmt.Errorf("compilecache: probe %s: %w", path, err)
		}
		_ = f.Close()
		return path, nil
	}
	return "", ErrNoProbeAvailable
}
