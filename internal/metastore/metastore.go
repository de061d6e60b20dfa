// Package metastore implements pkg/metastore.MetadataStore on top of
// bleve (per-index document/text store, standing in for the Elasticsearch
// collaborator) paired with Badger for durable get-by-id and version
// bookkeeping, exactly the "analytic index + durable KV" pairing
// internal/keyValStore and pkg/index show elsewhere in the corpus.
package metastore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/szulijun/sfs/pkg/envelope"
	"github.com/szulijun/sfs/pkg/indexcatalog"
	"github.com/szulijun/sfs/pkg/metastore"
)

// Store implements metastore.MetadataStore.
type Store struct {
	log  *logrus.Logger
	pool *envelope.Pool

	status statusCell

	cfgMu sync.RWMutex
	cfg   metastore.Config

	mu      sync.RWMutex
	indices map[string]*shardedIndex

	db *badger.DB
}

// NewStore constructs a Store. pool may be nil to use envelope's default
// background pool; log may be nil to get a standard logrus.Logger.
func NewStore(pool *envelope.Pool, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{
		log:     log,
		pool:    pool,
		indices: make(map[string]*shardedIndex),
	}
}

var _ metastore.MetadataStore = (*Store)(nil)

type fixedIndexDef struct {
	name     string
	resource string // "" means dynamic default mapping
}

func fixedIndexDefs() []fixedIndexDef {
	return []fixedIndexDef{
		{name: indexcatalog.Account(), resource: "es-account-mapping"},
		{name: indexcatalog.Container(), resource: "es-container-mapping"},
		{name: indexcatalog.ContainerKey(), resource: "es-container-key-mapping"},
		{name: indexcatalog.MasterKey(), resource: "es-master-key-mapping"},
		{name: indexcatalog.ServiceDef(), resource: ""},
	}
}

// Start opens local storage, applies the fixed mapping set if isMaster,
// and waits for green. A concurrent second Start observes the CAS loss
// and returns nil without doing anything (S6).
func (s *Store) Start(ctx context.Context, cfg metastore.Config, isMaster bool) error {
	if !s.status.cas(statusStopped, statusStarting) {
		return nil
	}

	if cfg.DataDir == "" {
		cfg.DataDir = os.TempDir()
	}
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()

	dbPath := filepath.Join(cfg.DataDir, "badger")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		s.status.cas(statusStarting, statusStopped)
		return fmt.Errorf("metastore: open badger: %w", err)
	}
	s.db = db

	if isMaster {
		for _, def := range fixedIndexDefs() {
			var raw []byte
			if def.resource != "" {
				raw, err = loadMappingResource(def.resource)
				if err != nil {
					s.status.cas(statusStarting, statusStopped)
					return fmt.Errorf("metastore: load mapping %s: %w", def.resource, err)
				}
			}
			if err := s.CreateUpdateIndex(ctx, def.name, raw, metastore.NotSet, metastore.NotSet); err != nil {
				s.status.cas(statusStarting, statusStopped)
				return fmt.Errorf("metastore: bootstrap index %s: %w", def.name, err)
			}
		}
	}

	if err := s.WaitForGreen(ctx, ""); err != nil {
		s.status.cas(statusStarting, statusStopped)
		return err
	}

	s.status.cas(statusStarting, statusStarted)
	s.log.WithField("master", isMaster).Info("metastore started")
	return nil
}

// Stop closes every shard and the Badger handle under the same CAS
// discipline Start uses.
func (s *Store) Stop(ctx context.Context) error {
	if !s.status.cas(statusStarted, statusStopping) {
		return nil
	}

	s.mu.Lock()
	var firstErr error
	for _, si := range s.indices {
		if err := si.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.indices = make(map[string]*shardedIndex)
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.status.cas(statusStopping, statusStopped)
	return firstErr
}

// CreateUpdateIndex follows §4.1's exists -> (update-mapping,
// settings-update) else create, then wait-for-green sequence.
func (s *Store) CreateUpdateIndex(ctx context.Context, index string, mappingRaw []byte, shards, replicas int) error {
	if shards != metastore.NotSet && shards < 1 {
		return fmt.Errorf("metastore: shards must be >= 1 or NotSet, got %d", shards)
	}
	if replicas != metastore.NotSet && replicas < 0 {
		return fmt.Errorf("metastore: replicas must be >= 0 or NotSet, got %d", replicas)
	}

	s.mu.Lock()
	existing, exists := s.indices[index]
	s.mu.Unlock()

	if exists {
		// The mapping update is applied unconditionally even if
		// unchanged, mirroring §9's open question about forced mapping
		// churn on every restart; bleve cannot hot-swap an open index's
		// schema, so this sidecar record is the honest analogue of
		// "apply mapping update" for an embedded document store.
		existing.mu.Lock()
		existing.mappingRaw = mappingRaw
		if replicas != metastore.NotSet {
			existing.replicas = replicas
		}
		existing.mu.Unlock()
	} else {
		s.cfgMu.RLock()
		cfg := s.cfg
		s.cfgMu.RUnlock()

		shardCount := shards
		if shardCount == metastore.NotSet {
			shardCount = cfg.Shards
			if shardCount < 1 {
				shardCount = 1
			}
		}
		repl := replicas
		if repl == metastore.NotSet {
			repl = cfg.Replicas
		}

		si, err := newShardedIndex(cfg.DataDir, index, mappingRaw, shardCount, repl)
		if err != nil {
			return fmt.Errorf("metastore: create index %s: %w", index, err)
		}

		s.mu.Lock()
		s.indices[index] = si
		s.mu.Unlock()
	}

	return s.WaitForGreen(ctx, index)
}

// CreateObjectIndex provisions the per-container object index for
// containerName, loading the packaged object mapping the way the fixed
// indices load theirs. Callers creating a container call this once the
// container document itself is indexed.
func (s *Store) CreateObjectIndex(ctx context.Context, containerName string, shards, replicas int) error {
	raw, err := loadMappingResource("es-object-mapping")
	if err != nil {
		return fmt.Errorf("metastore: load mapping es-object-mapping: %w", err)
	}
	return s.CreateUpdateIndex(ctx, indexcatalog.Object(containerName), raw, shards, replicas)
}

// DeleteObjectIndex tears down the per-container object index on
// container deletion. Delete is idempotent, so a container deleted twice
// or never fully provisioned is not an error.
func (s *Store) DeleteObjectIndex(ctx context.Context, containerName string) error {
	return s.DeleteIndex(ctx, indexcatalog.Object(containerName))
}

// DeleteIndex succeeds whether or not index existed; an absent index
// simply has nothing to do (P5, spec §7 IndexAbsentOnDelete).
func (s *Store) DeleteIndex(ctx context.Context, index string) error {
	s.mu.Lock()
	si, exists := s.indices[index]
	if exists {
		delete(s.indices, index)
	}
	s.mu.Unlock()

	if !exists {
		return nil
	}

	if err := si.close(); err != nil {
		return fmt.Errorf("metastore: close index %s: %w", index, err)
	}
	if err := os.RemoveAll(si.dir); err != nil {
		return fmt.Errorf("metastore: remove index dir %s: %w", index, err)
	}
	return s.purgeDocs(index)
}

// WaitForGreen retries up to 10 times with exponential backoff until
// index (or, if index is "", every known index) is healthy (P4, P8).
func (s *Store) WaitForGreen(ctx context.Context, index string) error {
	return envelope.WaitForGreenWithBackoff(ctx, func(context.Context) (bool, error) {
		if index == "" {
			s.mu.RLock()
			defer s.mu.RUnlock()
			for _, si := range s.indices {
				if !si.healthy() {
					return false, nil
				}
			}
			return true, nil
		}

		s.mu.RLock()
		si, exists := s.indices[index]
		s.mu.RUnlock()
		if !exists {
			return false, fmt.Errorf("%w: %s", metastore.ErrIndexNotFound, index)
		}
		return si.healthy(), nil
	})
}

// Execute dispatches req on the background pool and re-posts the result
// to the caller, then rejects any response whose shard telemetry fails
// envelope.ShardInfo.Check (I5); see pkg/envelope for the benign-conflict
// handling this wraps around.
func (s *Store) Execute(ctx context.Context, req metastore.Request, timeout time.Duration) (*metastore.Response, error) {
	resp, err := envelope.Do(ctx, s.pool, timeout, func(ctx context.Context) (metastore.Response, error) {
		return s.execute(ctx, req)
	})
	if err != nil || resp == nil {
		return resp, err
	}
	if err := resp.ShardInfo.Check(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Store) execute(ctx context.Context, req metastore.Request) (metastore.Response, error) {
	switch req.Action {
	case metastore.ActionIndex:
		return s.doIndex(req)
	case metastore.ActionGet:
		return s.doGet(req)
	case metastore.ActionUpdate:
		return s.doUpdate(req)
	case metastore.ActionDelete:
		return s.doDelete(req)
	case metastore.ActionSearch:
		return s.doSearch(req)
	default:
		return metastore.Response{}, fmt.Errorf("metastore: unknown action %d", req.Action)
	}
}

func (s *Store) lookupIndex(name string) (*shardedIndex, error) {
	s.mu.RLock()
	si, exists := s.indices[name]
	s.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", metastore.ErrIndexNotFound, name)
	}
	return si, nil
}

func (s *Store) doIndex(req metastore.Request) (metastore.Response, error) {
	si, err := s.lookupIndex(req.Index)
	if err != nil {
		return metastore.Response{}, err
	}

	if req.CreateOnly {
		if _, err := s.getDoc(req.Index, req.DocID); err == nil {
			return metastore.Response{}, metastore.ErrDocumentAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return metastore.Response{}, err
		}
	}

	if err := s.putDoc(req.Index, req.DocID, req.Doc); err != nil {
		return metastore.Response{}, err
	}
	if err := s.putVersion(req.Index, req.DocID, 1); err != nil {
		return metastore.Response{}, err
	}

	shard := si.shard(req.DocID)
	if err := shard.Index(req.DocID, req.Doc); err != nil {
		return metastore.Response{}, fmt.Errorf("metastore: index doc: %w", err)
	}

	return metastore.Response{
		ShardInfo: envelope.ShardInfo{Total: 1, Successful: 1, Acknowledged: true},
		Found:     true,
		Doc:       req.Doc,
		Version:   1,
	}, nil
}

func (s *Store) doGet(req metastore.Request) (metastore.Response, error) {
	if _, err := s.lookupIndex(req.Index); err != nil {
		return metastore.Response{}, err
	}

	doc, err := s.getDoc(req.Index, req.DocID)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return metastore.Response{
			ShardInfo: envelope.ShardInfo{Total: 1, Successful: 1, Acknowledged: true},
			Found:     false,
		}, nil
	}
	if err != nil {
		return metastore.Response{}, err
	}

	ver, _ := s.getVersion(req.Index, req.DocID)
	return metastore.Response{
		ShardInfo: envelope.ShardInfo{Total: 1, Successful: 1, Acknowledged: true},
		Found:     true,
		Doc:       doc,
		Version:   ver,
	}, nil
}

func (s *Store) doUpdate(req metastore.Request) (metastore.Response, error) {
	si, err := s.lookupIndex(req.Index)
	if err != nil {
		return metastore.Response{}, err
	}

	ver, err := s.getVersion(req.Index, req.DocID)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return metastore.Response{}, fmt.Errorf("metastore: update: %w: %s", metastore.ErrIndexNotFound, req.DocID)
	}
	if err != nil {
		return metastore.Response{}, err
	}

	if req.ExpectedVersion != nil && *req.ExpectedVersion != ver {
		return metastore.Response{}, metastore.ErrVersionConflict
	}

	newVer := ver + 1
	if err := s.putDoc(req.Index, req.DocID, req.Doc); err != nil {
		return metastore.Response{}, err
	}
	if err := s.putVersion(req.Index, req.DocID, newVer); err != nil {
		return metastore.Response{}, err
	}

	shard := si.shard(req.DocID)
	if err := shard.Index(req.DocID, req.Doc); err != nil {
		return metastore.Response{}, fmt.Errorf("metastore: update doc: %w", err)
	}

	return metastore.Response{
		ShardInfo: envelope.ShardInfo{Total: 1, Successful: 1, Acknowledged: true},
		Found:     true,
		Doc:       req.Doc,
		Version:   newVer,
	}, nil
}

func (s *Store) doDelete(req metastore.Request) (metastore.Response, error) {
	si, err := s.lookupIndex(req.Index)
	if err != nil {
		return metastore.Response{}, err
	}

	_ = s.deleteDoc(req.Index, req.DocID)
	_ = s.deleteVersion(req.Index, req.DocID)

	shard := si.shard(req.DocID)
	if err := shard.Delete(req.DocID); err != nil {
		return metastore.Response{}, fmt.Errorf("metastore: delete doc: %w", err)
	}

	return metastore.Response{
		ShardInfo: envelope.ShardInfo{Total: 1, Successful: 1, Acknowledged: true},
		Found:     true,
	}, nil
}

func (s *Store) doSearch(req metastore.Request) (metastore.Response, error) {
	si, err := s.lookupIndex(req.Index)
	if err != nil {
		return metastore.Response{}, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 1000
	}

	hits := make([]metastore.Hit, 0, limit)
	for _, shard := range si.allShards() {
		var sreq *bleve.SearchRequest
		if req.Query != "" {
			sreq = bleve.NewSearchRequestOptions(bleve.NewMatchQuery(req.Query), limit, 0, false)
		} else {
			sreq = bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), limit, 0, false)
		}
		sreq.Fields = []string{"*"}

		res, err := shard.Search(sreq)
		if err != nil {
			return metastore.Response{}, fmt.Errorf("metastore: search: %w", err)
		}
		for _, hit := range res.Hits {
			if hit == nil {
				continue
			}
			doc, err := s.getDoc(req.Index, hit.ID)
			if err != nil {
				continue
			}
			hits = append(hits, metastore.Hit{ID: hit.ID, Source: doc})
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return metastore.Response{
		ShardInfo: envelope.ShardInfo{Total: len(si.allShards()), Successful: len(si.allShards()), Acknowledged: true},
		Found:     len(hits) > 0,
		Hits:      hits,
	}, nil
}

// --- Badger-backed document and version bookkeeping ---

func docKey(index, docID string) []byte {
	return []byte(index + "\x00doc\x00" + docID)
}

func verKey(index, docID string) []byte {
	return []byte(index + "\x00ver\x00" + docID)
}

func (s *Store) putDoc(index, docID string, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("metastore: marshal doc: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(index, docID), raw)
	})
}

func (s *Store) getDoc(index, docID string) (map[string]any, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(index, docID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("metastore: unmarshal doc: %w", err)
	}
	return doc, nil
}

func (s *Store) deleteDoc(index, docID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey(index, docID))
	})
}

func (s *Store) putVersion(index, docID string, ver uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, ver)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(verKey(index, docID), buf)
	})
}

func (s *Store) getVersion(index, docID string) (uint64, error) {
	var ver uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(verKey(index, docID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("metastore: corrupt version record")
			}
			ver = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	return ver, err
}

func (s *Store) deleteVersion(index, docID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(verKey(index, docID))
	})
}

func (s *Store) purgeDocs(index string) error {
	prefix := []byte(index + "\x00")
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
