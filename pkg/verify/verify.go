// Package verify implements VerifyBlobReference (C6): given a blob
// reference, recompute the remote checksum and prove that
// recorded-read ≡ recorded-write ≡ recomputed, under both digest and
// length, with no tolerance and no partial credit.
package verify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/szulijun/sfs/pkg/clusterdirectory"
	"github.com/szulijun/sfs/pkg/model"
	"github.com/szulijun/sfs/pkg/nodeclient"
)

var log = logrus.New()

// SetLogger replaces the package-level logger used for the warn/error
// lines this algorithm is required to emit on its negative paths.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

// Verify runs the eight-step algorithm against ref and its owning
// segment, resolved via tree. It never panics and never returns an
// error: every failure mode — unverifiable reference, unresolved
// volume, transport failure, unexpected panic — downgrades to false so
// batch callers (repair, scrub) can aggregate without a single bad
// reference aborting the run.
func Verify(ctx context.Context, dir clusterdirectory.Directory, tree *model.Tree, ref *model.BlobReference) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("verify: recovered from panic, downgrading to false")
			result = false
		}
	}()

	seg := &tree.Segments[ref.SegmentIndex]

	// Step 2: pre-filter. A segment that declares an expected length but
	// no expected digest can never be verified; fail with zero RPCs (P2).
	if seg.WriteSha512 == nil && seg.WriteLength != nil {
		return false
	}

	// Step 3: verifiability filter. No physical coordinate, no RPC (P1).
	if !ref.Verifiable() {
		return false
	}

	// Step 4: resolve the owning node.
	node, ok := dir.NodeForVolume(*ref.VolumeID)
	if !ok {
		log.WithField("volume_id", *ref.VolumeID).Warn("verify: volume not resolved by cluster directory")
		return false
	}

	// Step 5: remote checksum RPC.
	d, err := node.Checksum(ctx, *ref.VolumeID, *ref.Position, nil, nodeclient.SHA512)
	if err != nil {
		if err == nodeclient.ErrBlobAbsent {
			return false
		}
		log.WithError(err).WithFields(logrus.Fields{
			"volume_id": *ref.VolumeID,
			"position":  *ref.Position,
		}).Error("verify: checksum RPC failed")
		return false
	}

	// Step 6: double-guard — a nil digest result is treated identically
	// to an absent one, never dereferenced.
	if d == nil {
		return false
	}

	expDigest := d.Digest
	expLength := d.Length

	shaMatch := ref.ReadSha512 != nil && *ref.ReadSha512 == expDigest
	lengthMatch := ref.ReadLength != nil && *ref.ReadLength == expLength

	writeShaMatch := seg.WriteSha512 != nil && *seg.WriteSha512 == expDigest
	writeLengthMatch := seg.WriteLength != nil && *seg.WriteLength == expLength

	return shaMatch && lengthMatch && writeShaMatch && writeLengthMatch
}
