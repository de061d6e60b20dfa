package model

// Tree is an arena holding every Object/Version/Segment/BlobReference that
// belongs to one logical namespace. Parent back-links
// (segment.parent.parent) are pure navigation: a Segment does not own its
// Version, it only records the Version's slot in the arena. This avoids
// the cyclic ownership a naive "child holds pointer to parent, parent
// holds pointer to child" design would create, and mirrors the adjacency
// map the corpus uses to track parent/child hashes, adapted here from
// content hashes to dense integer slots since arena entries do not need a
// content hash to exist yet while a write is still staged.
type Tree struct {
	Objects []Object
	Versions []Version
	Segments []Segment
	Refs     []BlobReference
}

// NewTree returns an empty arena.
func NewTree() *Tree {
	return &Tree{}
}

// AddObject inserts o and returns its arena index.
func (t *Tree) AddObject(o Object) int {
	t.Objects = append(t.Objects, o)
	return len(t.Objects) - 1
}

// AddVersion inserts v, which must already carry the arena index of its
// owning Object in v.ObjectIndex, and returns v's own arena index.
func (t *Tree) AddVersion(v Version) int {
	t.Versions = append(t.Versions, v)
	return len(t.Versions) - 1
}

// AddSegment inserts s, which must already carry the arena index of its
// owning Version in s.VersionIndex, and returns s's own arena index.
func (t *Tree) AddSegment(s Segment) int {
	t.Segments = append(t.Segments, s)
	return len(t.Segments) - 1
}

// AddRef inserts r, which must already carry the arena index of its owning
// Segment in r.SegmentIndex, and returns r's own arena index.
func (t *Tree) AddRef(r BlobReference) int {
	t.Refs = append(t.Refs, r)
	return len(t.Refs) - 1
}

// ParentVersion walks a Segment's back-link up to its owning Version.
func (t *Tree) ParentVersion(segIdx int) (Version, bool) {
	if segIdx < 0 || segIdx >= len(t.Segments) {
		return Version{}, false
	}
	vi := t.Segments[segIdx].VersionIndex
	if vi < 0 || vi >= len(t.Versions) {
		return Version{}, false
	}
	return t.Versions[vi], true
}

// ParentObject walks a Version's back-link up to its owning Object.
func (t *Tree) ParentObject(verIdx int) (Object, bool) {
	if verIdx < 0 || verIdx >= len(t.Versions) {
		return Object{}, false
	}
	oi := t.Versions[verIdx].ObjectIndex
	if oi < 0 || oi >= len(t.Objects) {
		return Object{}, false
	}
	return t.Objects[oi], true
}

// SegmentOfRef walks a BlobReference's back-link up to its owning Segment.
func (t *Tree) SegmentOfRef(refIdx int) (Segment, bool) {
	if refIdx < 0 || refIdx >= len(t.Refs) {
		return Segment{}, false
	}
	si := t.Refs[refIdx].SegmentIndex
	if si < 0 || si >= len(t.Segments) {
		return Segment{}, false
	}
	return t.Segments[si], true
}

// RefsOfSegment reconstructs the replica list owned by a Segment on
// demand, by a linear scan of the arena rather than by a stored child
// list, matching the spec's "reconstruct paths on demand" guidance for
// arena-backed trees.
func (t *Tree) RefsOfSegment(segIdx int) []BlobReference {
	var out []BlobReference
	for _, r := range t.Refs {
		if r.SegmentIndex == segIdx {
			out = append(out, r)
		}
	}
	return out
}

// SegmentsOfVersion reconstructs the ordered segment list owned by a
// Version on demand.
func (t *Tree) SegmentsOfVersion(verIdx int) []Segment {
	var out []Segment
	for _, s := range t.Segments {
		if s.VersionIndex == verIdx {
			out = append(out, s)
		}
	}
	return out
}
