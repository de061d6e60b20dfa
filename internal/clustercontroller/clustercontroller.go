// Package clustercontroller wires C1 (metastore), C3 (clusterdirectory),
// C4 (nodeclient) and the health/membership packages into one
// pkg/cluster.ClusterController, the way cmd/daemon wired carrier,
// identity and dashboard together in the teacher repo. It owns the
// process's local node lifecycle: opening local storage, advertising
// itself in the service_def index other nodes resolve volumes from, and
// tearing everything down in reverse order on Stop.
package clustercontroller

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/szulijun/sfs/internal/config"
	internalcluster "github.com/szulijun/sfs/internal/cluster"
	internalclusterdirectory "github.com/szulijun/sfs/internal/clusterdirectory"
	"github.com/szulijun/sfs/internal/health"
	"github.com/szulijun/sfs/internal/metastore"
	internalnodeclient "github.com/szulijun/sfs/internal/nodeclient"
	"github.com/szulijun/sfs/internal/volumestore"

	pkgcluster "github.com/szulijun/sfs/pkg/cluster"
	"github.com/szulijun/sfs/pkg/envelope"
	"github.com/szulijun/sfs/pkg/indexcatalog"
	pkgmetastore "github.com/szulijun/sfs/pkg/metastore"
	"github.com/szulijun/sfs/pkg/nodeclient"
)

// Config carries everything a Controller needs to bring one node up.
type Config struct {
	NodeID     pkgcluster.NodeID
	ListenAddr string
	VolumeIDs  []string
	IsMaster   bool

	Store  config.Config
	Logger *logrus.Logger

	// TLSConfig must carry at least one certificate: internal/nodeclient
	// refuses to listen without one (see internal/nodeclient.Listen).
	TLSConfig *tls.Config
}

// Controller is the default pkg/cluster.ClusterController.
type Controller struct {
	cfg Config
	log *logrus.Logger

	store     *metastore.Store
	pool      *envelope.Pool
	volumes   *volumestore.Store
	rpcServer *internalnodeclient.Server
	directory *internalclusterdirectory.Directory
	members   *internalcluster.DefaultCluster
	monitor   *health.DefaultClusterMonitor

	localNode pkgcluster.Node
	cancel    context.CancelFunc
}

var _ pkgcluster.ClusterController = (*Controller)(nil)

// New opens local storage, binds the RPC listener and assembles a
// Controller. It does not accept connections or start any background
// loop; call Start for that.
func New(cfg Config) (*Controller, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("clustercontroller: NodeID is required")
	}

	pool := envelope.NewPool(envelope.Config{})
	store := metastore.NewStore(pool, cfg.Logger)

	volumes, err := volumestore.Open(volumestore.Config{
		Path:     filepath.Join(cfg.Store.DataDir, "volumes"),
		Compress: true,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("clustercontroller: open volumestore: %w", err)
	}

	rpcServer, err := internalnodeclient.Listen(cfg.ListenAddr, volumes, cfg.TLSConfig, cfg.Logger)
	if err != nil {
		_ = volumes.Close()
		return nil, fmt.Errorf("clustercontroller: listen: %w", err)
	}

	clusterMonitor := health.NewClusterMonitor(cfg.NodeID)

	directory := internalclusterdirectory.New(store, dialer, internalclusterdirectory.Config{
		Logger:  cfg.Logger,
		Tracker: clusterMonitor.AvailabilityTracker(),
	})

	return &Controller{
		cfg:       cfg,
		log:       cfg.Logger,
		store:     store,
		pool:      pool,
		volumes:   volumes,
		rpcServer: rpcServer,
		directory: directory,
		members:   internalcluster.New(),
		monitor:   clusterMonitor,
		localNode: pkgcluster.Node{
			NodeID:    cfg.NodeID,
			Addresses: []string{rpcServer.Addr()},
		},
	}, nil
}

// GetCluster returns the node-membership view this controller maintains.
func (c *Controller) GetCluster() pkgcluster.Cluster {
	return c.members
}

// GetLocalNode returns this process's own node record.
func (c *Controller) GetLocalNode() pkgcluster.Node {
	return c.localNode
}

// Start starts the metastore, advertises this node in service_def, and
// launches the clusterdirectory refresh and health sampling loops. It
// returns once the node is ready to serve; the RPC listener's accept
// loop runs in the background.
func (c *Controller) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.store.Start(loopCtx, c.cfg.Store.ToMetastoreConfig(), c.cfg.IsMaster); err != nil {
		cancel()
		return fmt.Errorf("clustercontroller: start metastore: %w", err)
	}

	go func() {
		if err := c.rpcServer.Serve(loopCtx); err != nil {
			c.log.WithError(err).Error("clustercontroller: rpc server exited")
		}
	}()

	if err := c.registerSelf(loopCtx); err != nil {
		cancel()
		return fmt.Errorf("clustercontroller: register self: %w", err)
	}

	c.directory.Start(loopCtx)

	if err := c.members.AddNode(c.localNode); err != nil {
		cancel()
		return fmt.Errorf("clustercontroller: add local node: %w", err)
	}

	go c.runHealthLoop(loopCtx)

	c.log.WithFields(logrus.Fields{
		"node_id": c.cfg.NodeID,
		"addr":    c.rpcServer.Addr(),
	}).Info("clustercontroller: node started")
	return nil
}

// Stop tears the node down in reverse order: background loops first
// (they only read), then the RPC listener, then local storage.
func (c *Controller) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	_ = c.directory.Close()
	_ = c.rpcServer.Close()
	_ = c.volumes.Close()
	return c.store.Stop(ctx)
}

// registerSelf writes this node's service_def advertisement, so other
// nodes' ClusterDirectory refresh picks it up on their next tick.
func (c *Controller) registerSelf(ctx context.Context) error {
	volumeIDs := make([]any, len(c.cfg.VolumeIDs))
	for i, v := range c.cfg.VolumeIDs {
		volumeIDs[i] = v
	}

	req := pkgmetastore.Request{
		Action: pkgmetastore.ActionIndex,
		Index:  indexcatalog.ServiceDef(),
		DocID:  string(c.cfg.NodeID),
		Doc: map[string]any{
			"node_id":    string(c.cfg.NodeID),
			"address":    c.cfg.ListenAddr,
			"volume_ids": volumeIDs,
		},
	}
	_, err := c.store.Execute(ctx, req, c.cfg.Store.ElasticsearchDefaultIndexTimeout)
	return err
}

// runHealthLoop samples local disk/memory usage on a fixed interval
// until ctx is cancelled, the same "background loop, logged not fatal
// on error" shape clusterdirectory's refresh loop uses.
func (c *Controller) runHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		if err := c.monitor.MonitorNodeHealth(ctx); err != nil {
			c.log.WithError(err).Warn("clustercontroller: health sample failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// dialer adapts internal/nodeclient.Dial to clusterdirectory's Dialer
// signature.
func dialer(ctx context.Context, address string) (nodeclient.NodeClient, error) {
	return internalnodeclient.Dial(ctx, address, nil)
}
