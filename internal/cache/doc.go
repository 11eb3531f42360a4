// Package cache stores synthesized sentence sets so that reopening a text
// skips synthesis. It has an in-memory LRU tier and a persistent disk tier
// compressed with zstd.
package cache
