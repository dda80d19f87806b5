// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// =============================================================================
// Answer Cache — Response Persistence
// =============================================================================
//
// Matching and extraction are cheap, but template execution hits the backing
// store. Identical queries against the same rule snapshot produce identical
// envelopes, so successful answers are cached in BadgerDB keyed by
// (snapshot version, normalized query hash). The snapshot version in the key
// makes invalidation automatic: a rule reload produces a new version and the
// old entries simply expire via TTL.
//
// Storage layout:
//
//	answers/v1/{snapshotVersion}/{sha256(normalizedQuery)}  →  JSON envelope
//	                                                            TTL: 5 minutes

// answerCacheDefaultTTL keeps entries fresh enough for dashboard polling
// without serving stale data across data-ingestion cycles.
const answerCacheDefaultTTL = 5 * time.Minute

// answerCacheKeyPrefix is versioned to allow layout changes without collision.
const answerCacheKeyPrefix = "answers/v1/"

// errAnswerCacheMiss distinguishes a normal miss from a storage failure.
var errAnswerCacheMiss = errors.New("answer cache miss")

// AnswerCache persists successful envelopes between identical requests.
//
// Both methods are nil-safe on the interface value used by the Service: a
// nil cache disables persistence, which is the correct mode for tests and
// deployments without a cache directory.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AnswerCache interface {
	// Get retrieves the cached envelope for the snapshot version and
	// normalized query. Returns (nil, nil) on miss.
	Get(version, normalizedQuery string) (*Envelope, error)

	// Put persists a successful envelope. Failure is non-fatal; callers log
	// and continue.
	Put(version, normalizedQuery string, env *Envelope) error

	// Close releases the underlying store.
	Close() error
}

// BadgerAnswerCache implements AnswerCache over an embedded BadgerDB.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type BadgerAnswerCache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenBadgerAnswerCache opens (or creates) the cache at dir.
//
// # Inputs
//
//   - dir: Cache directory. Must not be empty.
//   - ttl: Entry lifetime. Pass 0 for the default (5 minutes).
//   - logger: Logger. May be nil.
//
// # Outputs
//
//   - *BadgerAnswerCache: Ready-to-use cache. Caller owns Close.
//   - error: Non-nil when the directory cannot be opened.
func OpenBadgerAnswerCache(dir string, ttl time.Duration, logger *slog.Logger) (*BadgerAnswerCache, error) {
	if ttl <= 0 {
		ttl = answerCacheDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening answer cache at %s: %w", dir, err)
	}
	return &BadgerAnswerCache{db: db, ttl: ttl, logger: logger}, nil
}

// Get retrieves a cached envelope, (nil, nil) on miss.
func (c *BadgerAnswerCache) Get(version, normalizedQuery string) (*Envelope, error) {
	key := answerCacheKey(version, normalizedQuery)

	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errAnswerCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, errAnswerCacheMiss) {
		answerCacheTotal.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if err != nil {
		answerCacheTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("answer cache load: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		answerCacheTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("answer cache decode: %w", err)
	}

	answerCacheTotal.WithLabelValues("hit").Inc()
	c.logger.Debug("answer cache hit", slog.String("version", version))
	return &env, nil
}

// Put persists a successful envelope with the configured TTL.
func (c *BadgerAnswerCache) Put(version, normalizedQuery string, env *Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("answer cache encode: %w", err)
	}
	key := answerCacheKey(version, normalizedQuery)
	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, raw).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("answer cache store: %w", err)
	}
	return nil
}

// Close releases the BadgerDB handle.
func (c *BadgerAnswerCache) Close() error {
	return c.db.Close()
}

// answerCacheKey builds the layout-versioned cache key.
func answerCacheKey(version, normalizedQuery string) []byte {
	sum := sha256.Sum256([]byte(normalizedQuery))
	return []byte(answerCacheKeyPrefix + version + "/" + hex.EncodeToString(sum[:]))
}
