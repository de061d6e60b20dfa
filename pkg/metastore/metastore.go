// Package metastore defines the external indexed document store
// abstraction (C1): create/update/delete indices, apply mappings,
// wait-for-green, and execute read/write actions with shard-success and
// version-conflict semantics. The concrete implementation lives in
// internal/metastore; this package only carries the contract and the
// request/response vocabulary so other packages (internal/clusterdirectory,
// internal/config) can depend on the interface without pulling in bleve or
// badger.
package metastore

import (
	"context"
	"time"

	"github.com/szulijun/sfs/pkg/envelope"
)

// NotSet is the sentinel a caller passes for shards/replicas in
// CreateUpdateIndex to mean "fall back to the component default" or, on
// an existing index, "leave unchanged". Apart from NotSet, replicas can
// be any non-negative value including zero.
const NotSet = -1

// Re-exported sentinel errors so callers of this package never need to
// import pkg/envelope directly to match on them.
var (
	ErrDocumentAlreadyExists = envelope.ErrDocumentAlreadyExists
	ErrVersionConflict       = envelope.ErrVersionConflict
	ErrIndexNotFound         = envelope.ErrIndexNotFound
	ErrShardIncomplete       = envelope.ErrShardIncomplete
)

// Action identifies the kind of operation a Request performs.
type Action int

const (
	ActionIndex Action = iota
	ActionGet
	ActionUpdate
	ActionDelete
	ActionSearch
)

// Request is a generic metadata action, analogous to an Elasticsearch
// index/get/update/delete/search request.
type Request struct {
	Action Action
	Index  string
	DocID  string

	// Doc is the document body for ActionIndex/ActionUpdate.
	Doc map[string]any

	// CreateOnly, when true on ActionIndex, fails with
	// ErrDocumentAlreadyExists if DocID is already present (I6).
	CreateOnly bool

	// ExpectedVersion, when set on ActionUpdate, enforces optimistic
	// concurrency: a mismatch fails with ErrVersionConflict (I6).
	ExpectedVersion *uint64

	// Query and Limit apply to ActionSearch: Query is matched against the
	// index's default analyzed field, Limit caps the number of hits
	// (0 means the implementation's default).
	Query string
	Limit int
}

// Hit is one search result.
type Hit struct {
	ID     string
	Source map[string]any
}

// Response is returned on success; its ShardInfo has already passed I5
// by the time a caller sees it (Execute enforces that before returning).
type Response struct {
	envelope.ShardInfo
	Found   bool
	Doc     map[string]any
	Version uint64
	Hits    []Hit
}

// Config carries the external interface config keys from spec §6.
type Config struct {
	ClusterName string
	NodeName    string

	UnicastHosts     []string
	MulticastEnabled bool
	UnicastEnabled   bool

	Shards   int
	Replicas int

	DefaultIndexTimeout  time.Duration
	DefaultGetTimeout    time.Duration
	DefaultSearchTimeout time.Duration
	DefaultDeleteTimeout time.Duration
	DefaultAdminTimeout  time.Duration
	DefaultScrollTimeout time.Duration

	// DataDir roots the on-disk bleve/badger state. Not part of spec §6's
	// table (that table is all-external-cluster knobs); this is the
	// single-process analogue of "where the embedded store persists".
	DataDir string
}

// MetadataStore is the C1 contract.
type MetadataStore interface {
	// Start connects (in this single-process implementation: opens local
	// storage), waits for green on the prefix, and — if isMaster — applies
	// the fixed mapping set (C2). Transitions Stopped -> Starting ->
	// Started under a CAS; a concurrent second Start is a no-op (S6).
	Start(ctx context.Context, cfg Config, isMaster bool) error

	// Stop closes underlying storage under the same CAS discipline.
	Stop(ctx context.Context) error

	// Execute submits req with a deadline of timeout, completes on the
	// caller's own goroutine (C7), enforces I5, and maps benign conflicts
	// (I6) to (nil, nil) rather than an error.
	Execute(ctx context.Context, req Request, timeout time.Duration) (*Response, error)

	// CreateUpdateIndex applies §4.1's exists -> update-mapping /
	// settings-update, else create, then wait-for-green sequence.
	CreateUpdateIndex(ctx context.Context, index string, mapping []byte, shards, replicas int) error

	// DeleteIndex succeeds whether or not index existed (P5).
	DeleteIndex(ctx context.Context, index string) error

	// CreateObjectIndex provisions the per-container object index for
	// containerName on container creation, loading the packaged object
	// mapping (§4.1).
	CreateObjectIndex(ctx context.Context, containerName string, shards, replicas int) error

	// DeleteObjectIndex tears down the per-container object index on
	// container deletion (P5 applies here too).
	DeleteObjectIndex(ctx context.Context, containerName string) error

	// WaitForGreen retries up to 10 times with exponential backoff
	// (P8) until index (or, if index == "", every index) reports green.
	WaitForGreen(ctx context.Context, index string) error
}
