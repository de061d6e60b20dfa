package metastore

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// shardedIndex is one logical index (account, container, a per-container
// object index, ...) backed by shardCount independent bleve instances.
// This module runs single-process, so "replicas" is bookkeeping metadata
// rather than a physically replicated copy — see DESIGN.md for the Open
// Question resolution.
type shardedIndex struct {
	name       string
	dir        string
	shardCount int

	mu         sync.RWMutex
	mappingRaw []byte
	replicas   int
	shards     []bleve.Index
}

// shardFor routes a document id to a shard deterministically by
// fnv32(docID) % shardCount, matching SPEC_FULL's routing rule.
func (si *shardedIndex) shardFor(docID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(docID))
	return int(h.Sum32() % uint32(si.shardCount))
}

func (si *shardedIndex) shard(docID string) bleve.Index {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.shards[si.shardFor(docID)]
}

func (si *shardedIndex) allShards() []bleve.Index {
	si.mu.RLock()
	defer si.mu.RUnlock()
	out := make([]bleve.Index, len(si.shards))
	copy(out, si.shards)
	return out
}

// healthy reports whether every shard is open. There is no distributed
// shard-assignment state to wait on in a single process, so "green" here
// collapses to "every shard opened without error" — the honest analogue
// given there is only one copy of each shard to begin with.
func (si *shardedIndex) healthy() bool {
	si.mu.RLock()
	defer si.mu.RUnlock()
	if len(si.shards) != si.shardCount {
		return false
	}
	for _, s := range si.shards {
		if s == nil {
			return false
		}
	}
	return true
}

func (si *shardedIndex) close() error {
	si.mu.Lock()
	defer si.mu.Unlock()
	var firstErr error
	for _, s := range si.shards {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newShardedIndex(dataDir, name string, mappingRaw []byte, shardCount, replicas int) (*shardedIndex, error) {
	if shardCount < 1 {
		shardCount = 1
	}
	m, err := parseMapping(mappingRaw)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(dataDir, "bleve", name)
	shards := make([]bleve.Index, shardCount)
	for i := 0; i < shardCount; i++ {
		shardPath := filepath.Join(dir, fmt.Sprintf("shard-%d", i))
		var idx bleve.Index
		if _, statErr := os.Stat(shardPath); statErr == nil {
			idx, err = bleve.Open(shardPath)
		} else {
			idx, err = bleve.New(shardPath, m)
		}
		if err != nil {
			for j := 0; j < i; j++ {
				_ = shards[j].Close()
			}
			return nil, fmt.Errorf("open shard %d of %q: %w", i, name, err)
		}
		shards[i] = idx
	}

	return &shardedIndex{
		name:       name,
		dir:        dir,
		shardCount: shardCount,
		mappingRaw: mappingRaw,
		replicas:   replicas,
		shards:     shards,
	}, nil
}
