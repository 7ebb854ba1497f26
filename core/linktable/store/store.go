// Package store is the durable backing store for a link table: goleveldb on
// disk, fronted by a byte-oriented fastcache for hot reads and a
// singleflight group so concurrent misses on the same key collapse into one
// disk read. Grounded on the primary/secondary cache-aside shape of
// ethdb/relaydb's Database (goleveldb here plays relaydb's "secondary",
// fastcache plays its "primary").
package store

import (
	"fmt"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/sync/singleflight"

	"github.com/emberstore/kernel/internal/xmetrics"
)

// Store is a durable key/value store for link table records.
type Store struct {
	db    *leveldb.DB
	cache *fastcache.Cache
	group singleflight.Group

	MetricsCacheHits   xmetrics.Meter
	MetricsCacheMisses xmetrics.Meter
}

// Open opens (creating if absent) a goleveldb database at dir, fronted by an
// in-memory cache of cacheBytes bytes.
func Open(dir string, cacheBytes int) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("linktable/store: open leveldb: %w", err)
	}
	return &Store{
		db:    db,
		cache: fastcache.New(cacheBytes),
	}, nil
}

// Get returns the value stored under key, checking the front cache first.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	if v, ok := s.cache.HasGet(nil, key); ok {
		s.MetricsCacheHits.Mark(1)
		return v, true, nil
	}
	s.MetricsCacheMisses.Mark(1)

	// singleflight.Group keys on string; key is typically a short link id so
	// the copy is cheap and avoids two concurrent callers both hitting disk
	// for the same record.
	v, err, _ := s.group.Do(string(key), func() (interface{}, error) {
		val, err := s.db.Get(key, nil)
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		cp := append([]byte(nil), val...)
		s.cache.Set(key, cp)
		return cp, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

// Put writes key/value durably and refreshes the front cache.
func (s *Store) Put(key, value []byte) error {
	if err := s.db.Put(key, value, nil); err != nil {
		return err
	}
	s.cache.Set(key, value)
	return nil
}

// Delete removes key durably and invalidates the front cache entry.
func (s *Store) Delete(key []byte) error {
	if err := s.db.Delete(key, nil); err != nil {
		return err
	}
	s.cache.Del(key)
	return nil
}

// Batch is a set of writes applied atomically via PutBatch.
type Batch struct {
	b       leveldb.Batch
	entries [][2][]byte
	deletes [][]byte
}

// NewBatch returns an empty Batch.
func (s *Store) NewBatch() *Batch {
	return &Batch{}
}

// Put stages a write in the batch.
func (b *Batch) Put(key, value []byte) {
	b.b.Put(key, value)
	b.entries = append(b.entries, [2][]byte{key, value})
}

// Delete stages a delete in the batch.
func (b *Batch) Delete(key []byte) {
	b.b.Delete(key)
	b.deletes = append(b.deletes, key)
}

// Write applies the batch atomically and updates the front cache to match.
func (s *Store) Write(b *Batch) error {
	if err := s.db.Write(&b.b, nil); err != nil {
		return err
	}
	for _, kv := range b.entries {
		s.cache.Set(kv[0], kv[1])
	}
	for _, k := range b.deletes {
		s.cache.Del(k)
	}
	return nil
}

// IteratePrefix walks every key with the given prefix in ascending order,
// stopping early if visit returns false. Bypasses the cache; used for bulk
// scans (e.g. replay/rebuild) where cache pollution would be wasteful.
func (s *Store) IteratePrefix(prefix []byte, visit func(key, value []byte) bool) error {
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()
	for it.Next() {
		if !visit(it.Key(), it.Value()) {
			break
		}
	}
	return it.Error()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
