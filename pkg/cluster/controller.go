package cluster

import (
	"context"
)

// ClusterController owns the lifecycle of this process's membership in a
// cluster: joining, leaving, and answering who the local node is.
type ClusterController interface {
	// Start initializes and starts the cluster controller.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the cluster controller.
	Stop(ctx context.Context) error

	// GetCluster returns the cluster managed by this controller.
	GetCluster() Cluster

	// GetLocalNode returns the local node's information.
	GetLocalNode() Node
}
