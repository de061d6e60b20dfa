// Package clusterdirectory defines the C3 contract: which node currently
// hosts a volume. The concrete, service-def-backed implementation lives
// in internal/clusterdirectory.
package clusterdirectory

import "github.com/szulijun/sfs/pkg/nodeclient"

// Directory answers "which node hosts volume V?" from the most recently
// completed refresh. Concurrent callers see a consistent snapshot for the
// duration of a single call — NodeForVolume never observes a refresh
// half-applied.
type Directory interface {
	// NodeForVolume returns the node currently advertised as hosting
	// volumeID, or (nil, false) if no service-def currently advertises
	// it. Absence is a recoverable negative outcome, never an error.
	NodeForVolume(volumeID string) (nodeclient.NodeClient, bool)
}
