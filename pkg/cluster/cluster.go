package cluster

// Cluster represents a collection of nodes this process knows about.
//
// The Cluster interface provides access to the current cluster membership.
// It maintains the authoritative view of which nodes are part of the cluster
// and their current state.
//
// # Membership Management
//
// Cluster membership changes through:
//   - AddNode: A new node joins
//   - RemoveNode: A node leaves (graceful departure or eviction)
//
// # Consistency
//
// In a distributed system, different nodes may have temporarily different
// views of cluster membership; this interface only promises a consistent
// read per call, not cluster-wide agreement.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Multiple goroutines may
// query and modify membership simultaneously.
type Cluster interface {
	// GetNodes returns all nodes currently in the cluster.
	//
	// Returns:
	//   - Slice of all known cluster nodes
	//
	// The returned slice is a snapshot; subsequent changes to the cluster
	// will not be reflected. The order is not guaranteed.
	GetNodes() []Node

	// AddNode adds a node to the cluster.
	//
	// Parameters:
	//   - node: The node to add
	//
	// Returns:
	//   - Error if the node cannot be added (e.g., empty NodeID)
	//
	// Adding a node that already exists updates its information.
	AddNode(node Node) error

	// RemoveNode removes a node from the cluster.
	//
	// This should be called when a node gracefully leaves or is evicted
	// due to prolonged unavailability.
	//
	// Parameters:
	//   - nodeID: The ID of the node to remove
	//
	// Returns:
	//   - Error if removal fails
	//
	// Removing a non-existent node is a no-op (no error).
	RemoveNode(nodeID NodeID) error

	// GetNode returns a specific node by its ID.
	//
	// Parameters:
	//   - nodeID: The ID of the node to retrieve
	//
	// Returns:
	//   - The node if found
	//   - Error if the node is not in the cluster
	GetNode(nodeID NodeID) (Node, error)
}
