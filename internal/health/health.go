// Package health provides cluster health monitoring: per-node
// availability tracking, fed by internal/clusterdirectory's
// tracking-wrapped NodeClients as they observe real RPC outcomes, plus
// this process's own disk/memory usage sampled via gopsutil into its
// NodeStatus entry.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"

	"github.com/szulijun/sfs/pkg/cluster"
	"github.com/szulijun/sfs/pkg/monitor"
)

// DefaultClusterMonitor implements the ClusterMonitor interface.
type DefaultClusterMonitor struct {
	mu        sync.RWMutex
	statuses  map[cluster.NodeID]monitor.NodeStatus
	callbacks []monitor.HealthCallback
	tracker   *DefaultNodeAvailabilityTracker

	// LocalNode is the NodeID MonitorNodeHealth samples local disk/memory
	// usage into.
	LocalNode cluster.NodeID

	// StatPath is the filesystem path disk usage is sampled from.
	// Defaults to "/".
	StatPath string
}

// NewClusterMonitor creates a new DefaultClusterMonitor instance.
func NewClusterMonitor(localNode cluster.NodeID) *DefaultClusterMonitor {
	return &DefaultClusterMonitor{
		statuses:  make(map[cluster.NodeID]monitor.NodeStatus),
		tracker:   NewNodeAvailabilityTracker(),
		LocalNode: localNode,
		StatPath:  "/",
	}
}

// AvailabilityTracker returns the tracker backing remote node liveness,
// so callers that observe real NodeClient RPC outcomes (internal/
// clusterdirectory's tracking-wrapped clients) can feed it.
func (m *DefaultClusterMonitor) AvailabilityTracker() *DefaultNodeAvailabilityTracker {
	return m.tracker
}

// MonitorNodeHealth refreshes this process's own disk/memory usage into
// its NodeStatus entry. Remote node liveness belongs to the
// NodeAvailabilityTracker, driven by observed RPC outcomes rather than
// active polling from here.
func (m *DefaultClusterMonitor) MonitorNodeHealth(ctx context.Context) error {
	diskPct, memPct, err := sampleLocalUsage(m.StatPath)
	if err != nil {
		return err
	}

	m.mu.Lock()
	prev := m.statuses[m.LocalNode]
	next := prev
	next.NodeID = m.LocalNode
	next.Available = true
	next.LastSeen = time.Now().Unix()
	next.DiskUsage = diskPct
	next.MemoryUsage = memPct
	m.statuses[m.LocalNode] = next
	callbacks := append([]monitor.HealthCallback(nil), m.callbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(m.LocalNode, prev, next)
	}
	return nil
}

func sampleLocalUsage(path string) (diskPct, memPct float64, err error) {
	if path == "" {
		path = "/"
	}
	du, err := disk.Usage(path)
	if err != nil {
		return 0, 0, err
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return du.UsedPercent, vm.UsedPercent, nil
}

// GetNodeStatus returns the current status of a specific node.
func (m *DefaultClusterMonitor) GetNodeStatus(
	ctx context.Context,
	nodeID cluster.NodeID,
) (monitor.NodeStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, exists := m.statuses[nodeID]
	if !exists {
		return monitor.NodeStatus{
			NodeID:    nodeID,
			Available: false,
		}, nil
	}
	return status, nil
}

// GetClusterHealth returns the overall health of the cluster.
func (m *DefaultClusterMonitor) GetClusterHealth(
	ctx context.Context,
) (monitor.ClusterHealth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	available := 0
	unavailable := 0
	for _, status := range m.statuses {
		if status.Available {
			available++
		} else {
			unavailable++
		}
	}

	return monitor.ClusterHealth{
		Healthy:           available > 0,
		TotalNodes:        len(m.statuses),
		AvailableNodes:    available,
		UnavailableNodes:  unavailable,
		ReplicationFactor: 1, // Default, should be configurable
	}, nil
}

// RegisterHealthCallback registers a callback for health status changes.
func (m *DefaultClusterMonitor) RegisterHealthCallback(
	callback monitor.HealthCallback,
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// UpdateNodeStatus updates the status of a node and notifies callbacks.
func (m *DefaultClusterMonitor) UpdateNodeStatus(
	nodeID cluster.NodeID,
	newStatus monitor.NodeStatus,
) {
	m.mu.Lock()
	oldStatus := m.statuses[nodeID]
	m.statuses[nodeID] = newStatus
	callbacks := append([]monitor.HealthCallback(nil), m.callbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(nodeID, oldStatus, newStatus)
	}
}

// Ensure DefaultClusterMonitor implements the ClusterMonitor interface.
var _ monitor.ClusterMonitor = (*DefaultClusterMonitor)(nil)

// DefaultNodeAvailabilityTracker implements the NodeAvailabilityTracker
// interface.
type DefaultNodeAvailabilityTracker struct {
	mu          sync.RWMutex
	available   map[cluster.NodeID]bool
	nodes       map[cluster.NodeID]cluster.Node
	lastChecked map[cluster.NodeID]time.Time
}

// NewNodeAvailabilityTracker creates a new DefaultNodeAvailabilityTracker
// instance.
func NewNodeAvailabilityTracker() *DefaultNodeAvailabilityTracker {
	return &DefaultNodeAvailabilityTracker{
		available:   make(map[cluster.NodeID]bool),
		nodes:       make(map[cluster.NodeID]cluster.Node),
		lastChecked: make(map[cluster.NodeID]time.Time),
	}
}

// TrackAvailability satisfies the NodeAvailabilityTracker startup hook.
// This tracker is event-driven, not poll-driven: availability is kept
// current by MarkNodeAvailable/MarkNodeUnavailable as real NodeClient RPC
// outcomes are observed (internal/clusterdirectory's tracking client,
// which wraps each dialed internal/nodeclient.Client), so there is no separate polling loop
// for this call to start. It only rejects an already-canceled ctx.
func (t *DefaultNodeAvailabilityTracker) TrackAvailability(
	ctx context.Context,
) error {
	return ctx.Err()
}

// IsNodeAvailable returns whether a node is currently available.
func (t *DefaultNodeAvailabilityTracker) IsNodeAvailable(
	nodeID cluster.NodeID,
) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.available[nodeID]
}

// GetAvailableNodes returns all currently available nodes.
func (t *DefaultNodeAvailabilityTracker) GetAvailableNodes() []cluster.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var nodes []cluster.Node
	for nodeID, isAvailable := range t.available {
		if isAvailable {
			if node, exists := t.nodes[nodeID]; exists {
				nodes = append(nodes, node)
			}
		}
	}
	return nodes
}

// GetUnavailableNodes returns all currently unavailable nodes.
func (t *DefaultNodeAvailabilityTracker) GetUnavailableNodes() []cluster.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var nodes []cluster.Node
	for nodeID, isAvailable := range t.available {
		if !isAvailable {
			if node, exists := t.nodes[nodeID]; exists {
				nodes = append(nodes, node)
			}
		}
	}
	return nodes
}

// MarkNodeUnavailable manually marks a node as unavailable.
func (t *DefaultNodeAvailabilityTracker) MarkNodeUnavailable(
	nodeID cluster.NodeID,
) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.available[nodeID] = false
	t.lastChecked[nodeID] = time.Now()
}

// MarkNodeAvailable manually marks a node as available.
func (t *DefaultNodeAvailabilityTracker) MarkNodeAvailable(
	nodeID cluster.NodeID,
) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.available[nodeID] = true
	t.lastChecked[nodeID] = time.Now()
}

// AddNode adds a node to track.
func (t *DefaultNodeAvailabilityTracker) AddNode(node cluster.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[node.NodeID] = node
	t.available[node.NodeID] = false // Start as unavailable until verified
}

// Ensure DefaultNodeAvailabilityTracker implements the NodeAvailabilityTracker
// interface.
var _ monitor.NodeAvailabilityTracker = (*DefaultNodeAvailabilityTracker)(nil)
