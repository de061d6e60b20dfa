// Package model defines the nested entities that make up a blob reference:
// Object, Version, Segment, BlobReference, plus the Volume/Node coordinates
// a reference resolves to and the transient DigestBlob a checksum RPC
// returns.
//
// Every field that may be uninitialised during a staged write is a pointer
// (nil = absent). This is deliberate: collapsing "unset" and "known absent"
// into a zero value would make a segment with writeLength present and
// writeSha512 absent indistinguishable from one where neither was ever set.
package model

import "fmt"

// Object is identified by (AccountID, ContainerID, ObjectID) and owns an
// ordered set of Versions keyed by monotonically increasing VersionID.
type Object struct {
	AccountID   string
	ContainerID string
	ObjectID    string
}

// Version owns an ordered list of Segments that concatenate to the
// user-visible object body.
type Version struct {
	ObjectIndex int // index of the owning Object in a Tree arena
	VersionID   uint64
}

// Segment carries the expected write integrity for one contiguous byte
// range of a Version and owns one or more BlobReferences (replicas).
type Segment struct {
	VersionIndex int // index of the owning Version in a Tree arena
	Index        int // position 0..N-1 within the Version

	WriteSha512 *[64]byte
	WriteLength *uint64
}

// BlobReference locates a physical blob copy on exactly one volume and
// records the integrity fields observed on write and on the most recent
// read-back.
type BlobReference struct {
	SegmentIndex int // index of the owning Segment in a Tree arena

	VolumeID *string
	Position *uint64

	ReadSha512 *[64]byte
	ReadLength *uint64

	Acknowledged bool
}

// Verifiable reports whether the reference carries enough of a physical
// coordinate to be checked at all (I1).
func (r *BlobReference) Verifiable() bool {
	return r.VolumeID != nil && r.Position != nil
}

// Volume is an abstract storage partition identified by VolumeID, assigned
// at any instant to zero or one primary Node and zero-or-more replica
// Nodes, as advertised in service-def documents.
type Volume struct {
	VolumeID     string
	PrimaryNode  *string // NodeID, nil if currently unassigned
	ReplicaNodes []string
}

// Node is a cluster member identified by a routable endpoint; it may host
// any number of volumes.
type Node struct {
	NodeID    string
	Addresses []string
}

// DigestBlob is the transient triple (position, length, digest) returned
// by a remote checksum RPC (C4).
type DigestBlob struct {
	Position uint64
	Length   uint64
	Digest   [64]byte // SHA-512; the only algorithm this module requires
}

// HeaderBlob carries the three decimal-string response headers a located
// blob reference is echoed back as (X-Content-Length, X-Content-Volume,
// X-Content-Position). It is built directly from a BlobReference and a
// resolved length, not from HTTP plumbing, which is why it lives in the
// core rather than in the (out-of-scope) HTTP surface.
type HeaderBlob struct {
	Length   uint64
	Volume   string
	Position uint64
}

// Headers renders the three X-Content-* response headers as decimal
// strings, per spec §6.
func (h HeaderBlob) Headers() map[string]string {
	return map[string]string{
		"X-Content-Length":   fmt.Sprintf("%d", h.Length),
		"X-Content-Volume":   h.Volume,
		"X-Content-Position": fmt.Sprintf("%d", h.Position),
	}
}

// NewHeaderBlob builds a HeaderBlob from a resolved reference. It returns
// false if the reference is not verifiable (no volume/position to report).
func NewHeaderBlob(ref *BlobReference, length uint64) (HeaderBlob, bool) {
	if !ref.Verifiable() {
		return HeaderBlob{}, false
	}
	return HeaderBlob{
		Length:   length,
		Volume:   *ref.VolumeID,
		Position: *ref.Position,
	}, true
}
