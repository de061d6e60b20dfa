package metastore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/szulijun/sfs/internal/testutil"
	"github.com/szulijun/sfs/pkg/envelope"
	"github.com/szulijun/sfs/pkg/indexcatalog"
	"github.com/szulijun/sfs/pkg/metastore"
)

func openTestStore(t *testing.T, isMaster bool) *Store {
	t.Helper()
	pool := envelope.NewPool(envelope.Config{WorkerCount: 2})
	s := NewStore(pool, nil)

	cfg := metastore.Config{
		DataDir: t.TempDir(),
		Shards:  1,
	}
	if err := s.Start(context.Background(), cfg, isMaster); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestStartIsMasterBootstrapsFixedIndices(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, true)

	for _, name := range []string{
		indexcatalog.Account(),
		indexcatalog.Container(),
		indexcatalog.ContainerKey(),
		indexcatalog.MasterKey(),
		indexcatalog.ServiceDef(),
	} {
		if _, err := s.lookupIndex(name); err != nil {
			t.Errorf("expected fixed index %q to exist after a master Start, lookup error = %v", name, err)
		}
	}
}

func TestStartNonMasterSkipsFixedIndices(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, false)

	if _, err := s.lookupIndex(indexcatalog.Account()); err == nil {
		t.Error("expected the account index to be absent on a non-master Start")
	}
}

func TestSecondStartWhileStartedIsANoOp(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, true)

	if err := s.Start(context.Background(), metastore.Config{DataDir: t.TempDir()}, true); err != nil {
		t.Fatalf("second Start() error = %v, want nil (S6 no-op)", err)
	}
}

func TestIndexGetUpdateDeleteRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, false)
	index := "sfs_v0_test_objects"

	if err := s.CreateUpdateIndex(context.Background(), index, nil, 2, 0); err != nil {
		t.Fatalf("CreateUpdateIndex() error = %v", err)
	}

	indexResp, err := s.Execute(context.Background(), metastore.Request{
		Action: metastore.ActionIndex,
		Index:  index,
		DocID:  "doc-1",
		Doc:    map[string]any{"name": "alpha"},
	}, time.Second)
	if err != nil {
		t.Fatalf("Execute(Index) error = %v", err)
	}
	if !indexResp.Found || indexResp.Version != 1 {
		t.Fatalf("Execute(Index) = %+v, want Found=true Version=1", indexResp)
	}

	getResp, err := s.Execute(context.Background(), metastore.Request{
		Action: metastore.ActionGet,
		Index:  index,
		DocID:  "doc-1",
	}, time.Second)
	if err != nil {
		t.Fatalf("Execute(Get) error = %v", err)
	}
	if !getResp.Found || getResp.Doc["name"] != "alpha" {
		t.Fatalf("Execute(Get) = %+v, want Found=true Doc.name=alpha", getResp)
	}

	ver := getResp.Version
	updateResp, err := s.Execute(context.Background(), metastore.Request{
		Action:          metastore.ActionUpdate,
		Index:           index,
		DocID:           "doc-1",
		Doc:             map[string]any{"name": "beta"},
		ExpectedVersion: &ver,
	}, time.Second)
	if err != nil {
		t.Fatalf("Execute(Update) error = %v", err)
	}
	if updateResp.Version != ver+1 {
		t.Fatalf("Execute(Update) version = %d, want %d", updateResp.Version, ver+1)
	}

	deleteResp, err := s.Execute(context.Background(), metastore.Request{
		Action: metastore.ActionDelete,
		Index:  index,
		DocID:  "doc-1",
	}, time.Second)
	if err != nil {
		t.Fatalf("Execute(Delete) error = %v", err)
	}
	if !deleteResp.Found {
		t.Fatal("Execute(Delete) Found = false, want true")
	}

	afterDelete, err := s.Execute(context.Background(), metastore.Request{
		Action: metastore.ActionGet,
		Index:  index,
		DocID:  "doc-1",
	}, time.Second)
	if err != nil {
		t.Fatalf("Execute(Get) after delete error = %v", err)
	}
	if afterDelete.Found {
		t.Fatal("Execute(Get) after delete Found = true, want false")
	}
}

func TestExecuteIndexCreateOnlyConflict(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, false)
	index := "sfs_v0_conflict_objects"
	if err := s.CreateUpdateIndex(context.Background(), index, nil, 1, 0); err != nil {
		t.Fatalf("CreateUpdateIndex() error = %v", err)
	}

	req := metastore.Request{
		Action:     metastore.ActionIndex,
		Index:      index,
		DocID:      "dup",
		Doc:        map[string]any{"name": "first"},
		CreateOnly: true,
	}
	if _, err := s.Execute(context.Background(), req, time.Second); err != nil {
		t.Fatalf("first Execute(Index, CreateOnly) error = %v", err)
	}

	resp, err := s.Execute(context.Background(), req, time.Second)
	if err != nil {
		t.Fatalf("Execute(Index, CreateOnly) on duplicate should map to (nil, nil), got error = %v", err)
	}
	if resp != nil {
		t.Fatalf("Execute(Index, CreateOnly) on duplicate = %+v, want nil (benign conflict, I6)", resp)
	}
}

func TestExecuteUpdateVersionConflict(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, false)
	index := "sfs_v0_verconflict_objects"
	if err := s.CreateUpdateIndex(context.Background(), index, nil, 1, 0); err != nil {
		t.Fatalf("CreateUpdateIndex() error = %v", err)
	}
	if _, err := s.Execute(context.Background(), metastore.Request{
		Action: metastore.ActionIndex,
		Index:  index,
		DocID:  "doc-1",
		Doc:    map[string]any{"name": "alpha"},
	}, time.Second); err != nil {
		t.Fatalf("Execute(Index) error = %v", err)
	}

	wrongVer := uint64(99)
	resp, err := s.Execute(context.Background(), metastore.Request{
		Action:          metastore.ActionUpdate,
		Index:           index,
		DocID:           "doc-1",
		Doc:             map[string]any{"name": "beta"},
		ExpectedVersion: &wrongVer,
	}, time.Second)
	if err != nil {
		t.Fatalf("Execute(Update) with stale version should map to (nil, nil), got error = %v", err)
	}
	if resp != nil {
		t.Fatalf("Execute(Update) with stale version = %+v, want nil", resp)
	}
}

func TestExecuteSearchFindsIndexedDocuments(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, false)
	index := "sfs_v0_search_objects"
	if err := s.CreateUpdateIndex(context.Background(), index, nil, 2, 0); err != nil {
		t.Fatalf("CreateUpdateIndex() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, err := s.Execute(context.Background(), metastore.Request{
			Action: metastore.ActionIndex,
			Index:  index,
			DocID:  fmt.Sprintf("doc-%d", i),
			Doc:    map[string]any{"name": fmt.Sprintf("widget-%d", i)},
		}, time.Second); err != nil {
			t.Fatalf("Execute(Index) doc-%d error = %v", i, err)
		}
	}

	resp, err := s.Execute(context.Background(), metastore.Request{
		Action: metastore.ActionSearch,
		Index:  index,
		Query:  "widget",
		Limit:  100,
	}, time.Second)
	if err != nil {
		t.Fatalf("Execute(Search) error = %v", err)
	}
	if len(resp.Hits) != 10 {
		t.Fatalf("Execute(Search) returned %d hits, want 10", len(resp.Hits))
	}
}

func TestDeleteIndexIsIdempotent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, false)

	if err := s.DeleteIndex(context.Background(), "sfs_v0_never_created_objects"); err != nil {
		t.Fatalf("DeleteIndex() on absent index error = %v, want nil (P5)", err)
	}

	index := "sfs_v0_todelete_objects"
	if err := s.CreateUpdateIndex(context.Background(), index, nil, 1, 0); err != nil {
		t.Fatalf("CreateUpdateIndex() error = %v", err)
	}
	if err := s.DeleteIndex(context.Background(), index); err != nil {
		t.Fatalf("DeleteIndex() error = %v", err)
	}
	if err := s.DeleteIndex(context.Background(), index); err != nil {
		t.Fatalf("second DeleteIndex() error = %v, want nil", err)
	}
}

func TestCreateAndDeleteObjectIndexFollowsContainerLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, false)
	container := "photos"

	if err := s.CreateObjectIndex(context.Background(), container, 1, 0); err != nil {
		t.Fatalf("CreateObjectIndex() error = %v", err)
	}
	if _, err := s.lookupIndex(indexcatalog.Object(container)); err != nil {
		t.Fatalf("lookupIndex() after CreateObjectIndex() error = %v", err)
	}

	if err := s.DeleteObjectIndex(context.Background(), container); err != nil {
		t.Fatalf("DeleteObjectIndex() error = %v", err)
	}
	if _, err := s.lookupIndex(indexcatalog.Object(container)); err == nil {
		t.Error("expected the object index to be gone after DeleteObjectIndex()")
	}

	if err := s.DeleteObjectIndex(context.Background(), container); err != nil {
		t.Fatalf("second DeleteObjectIndex() error = %v, want nil (P5)", err)
	}
}

func TestWaitForGreenOnUnknownIndex(t *testing.T) {
	t.Parallel()
	s := openTestStore(t, false)

	err := s.WaitForGreen(context.Background(), "sfs_v0_does_not_exist_objects")
	if err == nil {
		t.Fatal("WaitForGreen() on an unknown index expected an error, got nil")
	}
}

// TestManyShardsManyDocumentsSearch is gated behind -long: it creates a
// heavily sharded index and indexes enough documents that bleve's
// per-shard segment merging actually kicks in, which the small fixtures
// above never exercise.
func TestManyShardsManyDocumentsSearch(t *testing.T) {
	testutil.RequireLong(t)
	t.Parallel()

	s := openTestStore(t, false)
	index := "sfs_v0_heavy_objects"
	if err := s.CreateUpdateIndex(context.Background(), index, nil, 8, 0); err != nil {
		t.Fatalf("CreateUpdateIndex() error = %v", err)
	}

	const docCount = 2000
	for i := 0; i < docCount; i++ {
		if _, err := s.Execute(context.Background(), metastore.Request{
			Action: metastore.ActionIndex,
			Index:  index,
			DocID:  fmt.Sprintf("doc-%d", i),
			Doc:    map[string]any{"name": fmt.Sprintf("crate-%d", i)},
		}, time.Second); err != nil {
			t.Fatalf("Execute(Index) doc-%d error = %v", i, err)
		}
	}

	resp, err := s.Execute(context.Background(), metastore.Request{
		Action: metastore.ActionSearch,
		Index:  index,
		Query:  "crate",
		Limit:  docCount,
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("Execute(Search) error = %v", err)
	}
	if len(resp.Hits) != docCount {
		t.Fatalf("Execute(Search) returned %d hits, want %d", len(resp.Hits), docCount)
	}
}
