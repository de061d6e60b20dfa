// Package clusterdirectory implements C3 by periodically rebuilding a
// volumeID -> NodeClient snapshot from the service_def index (C1/C2).
// Reads are lock-free: callers always see one complete, internally
// consistent snapshot for the duration of NodeForVolume, never a
// partially rebuilt one, via atomic.Pointer[snapshot] — the upgrade
// internal/cluster/cluster.go's map+RWMutex needed per spec §5/§9's
// "reads MUST be lock-free or use a snapshot".
package clusterdirectory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/szulijun/sfs/pkg/cluster"
	"github.com/szulijun/sfs/pkg/clusterdirectory"
	"github.com/szulijun/sfs/pkg/indexcatalog"
	"github.com/szulijun/sfs/pkg/metastore"
	"github.com/szulijun/sfs/pkg/model"
	"github.com/szulijun/sfs/pkg/monitor"
	"github.com/szulijun/sfs/pkg/nodeclient"
)

// Dialer opens a NodeClient to a node's advertised address. Production
// code wires this to internal/nodeclient.Dial; tests supply a fake.
type Dialer func(ctx context.Context, address string) (nodeclient.NodeClient, error)

// snapshot is the immutable state swapped in on every refresh.
type snapshot struct {
	byVolume map[string]nodeclient.NodeClient
}

// Directory is the service-def-backed clusterdirectory.Directory.
type Directory struct {
	store   metastore.MetadataStore
	dial    Dialer
	log     *logrus.Logger
	period  time.Duration
	timeout time.Duration
	tracker monitor.NodeAvailabilityTracker

	current atomic.Pointer[snapshot]

	mu      sync.Mutex // serializes refresh + owns conns for Close
	conns   map[string]nodeclient.NodeClient
	cancel  context.CancelFunc
	done    chan struct{}
}

// Config controls a Directory's refresh loop.
type Config struct {
	RefreshPeriod time.Duration
	SearchTimeout time.Duration
	Logger        *logrus.Logger

	// Tracker, if set, is fed real dial/RPC outcomes for every node this
	// Directory resolves: a dial failure or RPC error marks a node
	// unavailable, a successful dial or call marks it available again.
	Tracker monitor.NodeAvailabilityTracker
}

// New constructs a Directory that resolves volumes from store's
// service_def index and dials nodes via dial.
func New(store metastore.MetadataStore, dial Dialer, cfg Config) *Directory {
	if cfg.RefreshPeriod <= 0 {
		cfg.RefreshPeriod = 10 * time.Second
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	d := &Directory{
		store:   store,
		dial:    dial,
		log:     cfg.Logger,
		period:  cfg.RefreshPeriod,
		timeout: cfg.SearchTimeout,
		tracker: cfg.Tracker,
		conns:   make(map[string]nodeclient.NodeClient),
	}
	d.current.Store(&snapshot{byVolume: map[string]nodeclient.NodeClient{}})
	return d
}

var _ clusterdirectory.Directory = (*Directory)(nil)

// NodeForVolume implements clusterdirectory.Directory.
func (d *Directory) NodeForVolume(volumeID string) (nodeclient.NodeClient, bool) {
	snap := d.current.Load()
	nc, ok := snap.byVolume[volumeID]
	return nc, ok
}

// serviceDefDoc is the document shape a service_def index entry carries:
// one per node, advertising the volumes it currently owns.
type serviceDefDoc struct {
	NodeID    string   `json:"node_id"`
	Address   string   `json:"address"`
	VolumeIDs []string `json:"volume_ids"`
}

// Refresh performs one synchronous rebuild of the snapshot.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	resp, err := d.store.Execute(ctx, metastore.Request{
		Action: metastore.ActionSearch,
		Index:  indexcatalog.ServiceDef(),
		Limit:  0,
	}, d.timeout)
	if err != nil {
		return fmt.Errorf("clusterdirectory: refresh: %w", err)
	}
	if resp == nil {
		return nil
	}

	byVolume := make(map[string]nodeclient.NodeClient)
	liveConns := make(map[string]nodeclient.NodeClient, len(d.conns))

	for _, hit := range resp.Hits {
		doc, ok := decodeServiceDefDoc(hit.Source)
		if !ok || doc.Address == "" {
			continue
		}
		nc, ok := liveConns[doc.Address]
		if !ok {
			nc = d.conns[doc.Address]
			if nc == nil {
				dialed, err := d.dial(ctx, doc.Address)
				if err != nil {
					d.log.WithError(err).WithField("address", doc.Address).Warn("clusterdirectory: dial node failed")
					if d.tracker != nil && doc.NodeID != "" {
						d.tracker.MarkNodeUnavailable(cluster.NodeID(doc.NodeID))
					}
					continue
				}
				if d.tracker != nil && doc.NodeID != "" {
					dialed = &trackingClient{inner: dialed, nodeID: cluster.NodeID(doc.NodeID), tracker: d.tracker}
				}
				nc = dialed
			}
			if d.tracker != nil && doc.NodeID != "" {
				d.tracker.MarkNodeAvailable(cluster.NodeID(doc.NodeID))
			}
			liveConns[doc.Address] = nc
		}
		for _, vol := range doc.VolumeIDs {
			byVolume[vol] = nc
		}
	}

	for addr, nc := range d.conns {
		if _, stillLive := liveConns[addr]; !stillLive {
			_ = nc.Close()
		}
	}
	d.conns = liveConns

	d.current.Store(&snapshot{byVolume: byVolume})
	return nil
}

func decodeServiceDefDoc(src map[string]any) (serviceDefDoc, bool) {
	var doc serviceDefDoc
	if v, ok := src["node_id"].(string); ok {
		doc.NodeID = v
	}
	if v, ok := src["address"].(string); ok {
		doc.Address = v
	}
	if raw, ok := src["volume_ids"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				doc.VolumeIDs = append(doc.VolumeIDs, s)
			}
		}
	}
	return doc, true
}

// Start launches the periodic refresh loop in the background. Refresh
// errors are logged, never fatal — a stale snapshot is preferable to a
// dead directory.
func (d *Directory) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.period)
		defer ticker.Stop()
		for {
			if err := d.Refresh(ctx); err != nil {
				d.log.WithError(err).Warn("clusterdirectory: refresh failed, keeping stale snapshot")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Close stops the refresh loop and closes every pooled node connection.
func (d *Directory) Close() error {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, nc := range d.conns {
		_ = nc.Close()
	}
	d.conns = make(map[string]nodeclient.NodeClient)
	return nil
}

// trackingClient wraps a dialed nodeclient.NodeClient so every RPC's
// outcome feeds the availability tracker: a transport/protocol error
// other than ErrBlobAbsent marks the owning node unavailable; any other
// outcome, including ErrBlobAbsent itself (the node answered, it just
// has nothing at that coordinate), marks it available again.
type trackingClient struct {
	inner   nodeclient.NodeClient
	nodeID  cluster.NodeID
	tracker monitor.NodeAvailabilityTracker
}

func (c *trackingClient) observe(err error) error {
	if err != nil && !errors.Is(err, nodeclient.ErrBlobAbsent) {
		c.tracker.MarkNodeUnavailable(c.nodeID)
	} else {
		c.tracker.MarkNodeAvailable(c.nodeID)
	}
	return err
}

func (c *trackingClient) Checksum(ctx context.Context, volumeID string, position uint64, window *nodeclient.ByteWindow, algo nodeclient.DigestAlgo) (*model.DigestBlob, error) {
	d, err := c.inner.Checksum(ctx, volumeID, position, window, algo)
	return d, c.observe(err)
}

func (c *trackingClient) Read(ctx context.Context, volumeID string, position uint64, window *nodeclient.ByteWindow) ([]byte, error) {
	data, err := c.inner.Read(ctx, volumeID, position, window)
	return data, c.observe(err)
}

func (c *trackingClient) Write(ctx context.Context, volumeID string, position uint64, data []byte) error {
	return c.observe(c.inner.Write(ctx, volumeID, position, data))
}

func (c *trackingClient) Delete(ctx context.Context, volumeID string, position uint64) error {
	return c.observe(c.inner.Delete(ctx, volumeID, position))
}

func (c *trackingClient) Ack(ctx context.Context, volumeID string, position uint64) error {
	return c.observe(c.inner.Ack(ctx, volumeID, position))
}

// Close releases the underlying transport without touching availability;
// closing a connection is this process's own choice, not a signal that
// the remote node is down.
func (c *trackingClient) Close() error {
	return c.inner.Close()
}

var _ nodeclient.NodeClient = (*trackingClient)(nil)
