// Package nodeclient defines the remote-node contract (C4/XNode):
// checksum, read, write, delete, ack against a peer node's volumes. The
// concrete QUIC-based transport lives in internal/nodeclient.
package nodeclient

import (
	"context"
	"errors"

	"github.com/szulijun/sfs/pkg/model"
)

// DigestAlgo identifies the digest algorithm a Checksum call should use.
// SHA512 is the only algorithm this module requires (spec §6).
type DigestAlgo string

const SHA512 DigestAlgo = "SHA-512"

// ErrBlobAbsent means "no such blob at that coordinate" (deleted or
// never written) — a normal, expected outcome, never conflated with a
// transport error. Checksum returns (nil, ErrBlobAbsent) for this case,
// never (nil, nil), so a caller can't accidentally treat a dropped
// connection the same way as a missing blob.
var ErrBlobAbsent = errors.New("nodeclient: blob absent at coordinate")

// ByteWindow optionally restricts a Checksum or Read to a sub-range of
// the stored blob. A nil window means "the whole blob".
type ByteWindow struct {
	Offset uint64
	Length uint64
}

// NodeClient is the C4 contract a ClusterDirectory resolves
// volume-owning nodes to.
type NodeClient interface {
	// Checksum reads the blob at (volumeID, position), optionally
	// windowed, and returns its length and digest under algo.
	// ErrBlobAbsent means no such blob; any other error is a transport
	// or protocol failure and MUST surface verbatim to the caller.
	Checksum(ctx context.Context, volumeID string, position uint64, window *ByteWindow, algo DigestAlgo) (*model.DigestBlob, error)

	// Read returns the raw bytes of the blob at (volumeID, position),
	// optionally windowed.
	Read(ctx context.Context, volumeID string, position uint64, window *ByteWindow) ([]byte, error)

	// Write stores data at (volumeID, position), creating the coordinate
	// if it does not already hold a blob.
	Write(ctx context.Context, volumeID string, position uint64, data []byte) error

	// Delete removes the blob at (volumeID, position). Deleting an
	// already-absent blob is not an error.
	Delete(ctx context.Context, volumeID string, position uint64) error

	// Ack marks the blob at (volumeID, position) durable after all
	// replicas have confirmed the write.
	Ack(ctx context.Context, volumeID string, position uint64) error

	// Close releases the underlying transport connection.
	Close() error
}
