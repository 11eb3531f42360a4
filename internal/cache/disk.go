package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "cache.index"
	// compressThreshold is the smallest value worth compressing.
	compressThreshold = 1024
)

// DiskCache stores values as files under a directory, compressed with zstd
// when that makes them smaller. A gob index keeps the metadata.
type DiskCache struct {
	dir      string
	capacity int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	size  int64
	index map[string]*diskEntry
	dirty bool
	stats Stats
	now   func() time.Time
}

// diskEntry is persisted in the index, so its fields are exported.
type diskEntry struct {
	Key        string
	File       string
	StoredSize int64
	Size       int64
	Created    time.Time
	LastAccess time.Time
	Hits       int64
	Compressed bool
}

// NewDiskCache opens or creates a disk cache in dir. A compression level
// of zero or less stores values uncompressed.
func NewDiskCache(dir string, capacity int64, compressionLevel int) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
		now:      time.Now,
	}

	if compressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	dc.decoder = dec

	if err := dc.loadIndex(); err != nil {
		// A broken index only costs the cached data.
		dc.index = make(map[string]*diskEntry)
		dc.dirty = true
	}
	for _, e := range dc.index {
		dc.size += e.StoredSize
	}
	return dc, nil
}

// Dir returns the cache directory.
func (dc *DiskCache) Dir() string {
	return dc.dir
}

// Get reads the value for key. Missing or undecodable files are dropped
// from the index and reported as a miss.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	e, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := dc.read(e)
	if err != nil {
		dc.drop(key, e)
		dc.stats.Misses++
		return nil, false
	}

	e.LastAccess = dc.now()
	e.Hits++
	dc.dirty = true
	dc.stats.Hits++
	dc.stats.LastAccess = e.LastAccess
	return data, true
}

// Put writes value under key, evicting least recently used entries when
// the cache would exceed its capacity.
func (dc *DiskCache) Put(key string, value []byte) error {
	stored, compressed := dc.encode(value)
	n := int64(len(stored))
	if n > dc.capacity {
		return ErrItemTooLarge
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if old, ok := dc.index[key]; ok {
		dc.drop(key, old)
	}
	for dc.size+n > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	file := fileName(key)
	if err := writeAtomic(filepath.Join(dc.dir, file), stored); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := dc.now()
	dc.index[key] = &diskEntry{
		Key:        key,
		File:       file,
		StoredSize: n,
		Size:       int64(len(value)),
		Created:    now,
		LastAccess: now,
		Compressed: compressed,
	}
	dc.size += n
	dc.dirty = true
	return nil
}

// Delete removes key.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if e, ok := dc.index[key]; ok {
		dc.drop(key, e)
	}
	return nil
}

// Clear removes every entry and saves the empty index.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	var errs []error
	for key, e := range dc.index {
		if err := os.Remove(filepath.Join(dc.dir, e.File)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
		delete(dc.index, key)
	}
	dc.size = 0
	dc.dirty = true
	errs = append(errs, dc.saveIndex())
	return errors.Join(errs...)
}

// Contains reports whether key is indexed.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	_, ok := dc.index[key]
	return ok
}

// Size returns the bytes stored on disk.
func (dc *DiskCache) Size() int64 {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.size
}

// Stats returns the counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s := dc.stats
	s.Size = dc.size
	s.ItemCount = int64(len(dc.index))
	s.computeHitRate()
	return s
}

// Entries lists the entries from least to most recently used.
func (dc *DiskCache) Entries() []Entry {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	out := make([]Entry, 0, len(dc.index))
	for _, e := range dc.index {
		out = append(out, Entry{
			Key:        e.Key,
			Size:       e.Size,
			StoredSize: e.StoredSize,
			Created:    e.Created,
			LastAccess: e.LastAccess,
			Hits:       e.Hits,
			Level:      LevelDisk,
		})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return a.LastAccess.Compare(b.LastAccess)
	})
	return out
}

// RemoveOlderThan removes entries written before cutoff and returns how
// many were removed.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for key, e := range dc.index {
		if e.Created.Before(cutoff) {
			dc.drop(key, e)
			removed++
		}
	}
	return removed
}

// Flush saves the index if it changed.
func (dc *DiskCache) Flush() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.saveIndex()
}

// Close saves the index and releases the codecs.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	err := dc.saveIndex()
	if dc.encoder != nil {
		err = errors.Join(err, dc.encoder.Close())
	}
	dc.decoder.Close()
	return err
}

func (dc *DiskCache) encode(value []byte) ([]byte, bool) {
	if dc.encoder == nil || len(value) <= compressThreshold {
		return value, false
	}
	compressed := dc.encoder.EncodeAll(value, nil)
	if len(compressed) >= len(value) {
		return value, false
	}
	return compressed, true
}

func (dc *DiskCache) read(e *diskEntry) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dc.dir, e.File))
	if err != nil {
		return nil, err
	}
	if !e.Compressed {
		return data, nil
	}
	out, err := dc.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheCorrupted, err)
	}
	return out, nil
}

// drop removes an entry and its file. The lock must be held.
func (dc *DiskCache) drop(key string, e *diskEntry) {
	_ = os.Remove(filepath.Join(dc.dir, e.File))
	delete(dc.index, key)
	dc.size -= e.StoredSize
	dc.dirty = true
}

func (dc *DiskCache) evictOldest() {
	var oldest *diskEntry
	for _, e := range dc.index {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
		}
	}
	if oldest == nil {
		return
	}
	dc.drop(oldest.Key, oldest)
	dc.stats.Evictions++
	dc.stats.LastEvict = dc.now()
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	index := make(map[string]*diskEntry)
	if err := gob.NewDecoder(f).Decode(&index); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheCorrupted, err)
	}
	dc.index = index
	return nil
}

func (dc *DiskCache) saveIndex() error {
	if !dc.dirty {
		return nil
	}
	path := filepath.Join(dc.dir, indexFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(dc.index)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	dc.dirty = false
	return nil
}

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + ".cache"
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
