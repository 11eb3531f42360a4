package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Tiered reads through a memory cache into a disk cache. Disk hits are
// promoted to memory. Writes go to both tiers.
type Tiered struct {
	memory *MemoryCache
	disk   *DiskCache
	cfg    Config
	logger *log.Logger

	memoryHits atomic.Int64
	diskHits   atomic.Int64
	misses     atomic.Int64
	promotions atomic.Int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// TieredStats aggregates the counters of both tiers.
type TieredStats struct {
	MemoryHits int64
	DiskHits   int64
	Misses     int64
	Promotions int64
	HitRate    float64
	Memory     Stats
	Disk       Stats
}

// NewTiered opens the tiers described by cfg. cfg.DiskPath is required.
func NewTiered(cfg Config, logger *log.Logger) (*Tiered, error) {
	if cfg.DiskPath == "" {
		return nil, errors.New("cache: disk path is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create disk cache: %w", err)
	}

	t := &Tiered{
		memory: NewMemoryCache(cfg.MemoryCapacity),
		disk:   disk,
		cfg:    cfg,
		logger: logger.WithPrefix("cache"),
		stop:   make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 && cfg.TTL > 0 {
		t.wg.Add(1)
		go t.cleanupLoop()
	}
	return t, nil
}

// Get checks memory, then disk.
func (t *Tiered) Get(key string) ([]byte, bool) {
	if data, ok := t.memory.Get(key); ok {
		t.memoryHits.Add(1)
		return data, true
	}
	if data, ok := t.disk.Get(key); ok {
		t.diskHits.Add(1)
		if err := t.memory.Put(key, data); err == nil {
			t.promotions.Add(1)
		}
		return data, true
	}
	t.misses.Add(1)
	return nil, false
}

// Put stores value in both tiers. A value too large for memory is still
// written to disk.
func (t *Tiered) Put(key string, value []byte) error {
	if err := t.memory.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("memory cache: %w", err)
	}
	if err := t.disk.Put(key, value); err != nil {
		return fmt.Errorf("disk cache: %w", err)
	}
	return nil
}

// Delete removes key from both tiers.
func (t *Tiered) Delete(key string) error {
	return errors.Join(t.memory.Delete(key), t.disk.Delete(key))
}

// Clear empties both tiers.
func (t *Tiered) Clear() error {
	return errors.Join(t.memory.Clear(), t.disk.Clear())
}

// Contains reports whether either tier holds key.
func (t *Tiered) Contains(key string) bool {
	return t.memory.Contains(key) || t.disk.Contains(key)
}

// Size returns the bytes stored on disk, which bounds the memory tier's
// content.
func (t *Tiered) Size() int64 {
	return t.disk.Size()
}

// Stats returns the disk tier counters; see TieredStats for both tiers.
func (t *Tiered) Stats() Stats {
	return t.disk.Stats()
}

// TieredStats returns the counters of both tiers.
func (t *Tiered) TieredStats() TieredStats {
	s := TieredStats{
		MemoryHits: t.memoryHits.Load(),
		DiskHits:   t.diskHits.Load(),
		Misses:     t.misses.Load(),
		Promotions: t.promotions.Load(),
		Memory:     t.memory.Stats(),
		Disk:       t.disk.Stats(),
	}
	if total := s.MemoryHits + s.DiskHits + s.Misses; total > 0 {
		s.HitRate = float64(s.MemoryHits+s.DiskHits) / float64(total)
	}
	return s
}

// Entries lists the disk entries from least to most recently used.
func (t *Tiered) Entries() []Entry {
	return t.disk.Entries()
}

// Dir returns the disk tier directory.
func (t *Tiered) Dir() string {
	return t.disk.Dir()
}

// Cleanup removes entries older than the configured TTL from both tiers.
func (t *Tiered) Cleanup() int {
	if t.cfg.TTL <= 0 {
		return 0
	}
	removed := t.disk.RemoveOlderThan(time.Now().Add(-t.cfg.TTL))
	removed += t.memory.Prune(t.cfg.TTL)
	if removed > 0 {
		t.logger.Debug("expired entries removed", "count", removed)
	}
	if err := t.disk.Flush(); err != nil {
		t.logger.Warn("failed to save cache index", "err", err)
	}
	return removed
}

// Close stops the cleanup loop and saves the disk index.
func (t *Tiered) Close() error {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	t.wg.Wait()
	if err := t.disk.Close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}

func (t *Tiered) cleanupLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Cleanup()
		case <-t.stop:
			return
		}
	}
}
