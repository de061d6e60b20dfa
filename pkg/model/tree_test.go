package model

import "testing"

func buildSampleTree() (*Tree, int, int, int, int) {
	tree := NewTree()
	objIdx := tree.AddObject(Object{AccountID: "a", ContainerID: "c", ObjectID: "o"})
	verIdx := tree.AddVersion(Version{ObjectIndex: objIdx, VersionID: 1})
	segIdx := tree.AddSegment(Segment{VersionIndex: verIdx, Index: 0})
	refIdx := tree.AddRef(BlobReference{SegmentIndex: segIdx})
	return tree, objIdx, verIdx, segIdx, refIdx
}

func TestTreeParentWalk(t *testing.T) {
	tree, objIdx, verIdx, segIdx, refIdx := buildSampleTree()

	seg, ok := tree.SegmentOfRef(refIdx)
	if !ok || seg.Index != tree.Segments[segIdx].Index {
		t.Fatalf("SegmentOfRef(%d) = (%+v, %v)", refIdx, seg, ok)
	}

	ver, ok := tree.ParentVersion(segIdx)
	if !ok || ver.VersionID != tree.Versions[verIdx].VersionID {
		t.Fatalf("ParentVersion(%d) = (%+v, %v)", segIdx, ver, ok)
	}

	obj, ok := tree.ParentObject(verIdx)
	if !ok || obj.ObjectID != tree.Objects[objIdx].ObjectID {
		t.Fatalf("ParentObject(%d) = (%+v, %v)", verIdx, obj, ok)
	}
}

func TestTreeParentWalkOutOfRange(t *testing.T) {
	tree, _, _, _, _ := buildSampleTree()

	if _, ok := tree.ParentVersion(99); ok {
		t.Fatal("ParentVersion() with an out-of-range index should report false")
	}
	if _, ok := tree.ParentObject(99); ok {
		t.Fatal("ParentObject() with an out-of-range index should report false")
	}
	if _, ok := tree.SegmentOfRef(99); ok {
		t.Fatal("SegmentOfRef() with an out-of-range index should report false")
	}
}

func TestTreeReconstructsChildrenOnDemand(t *testing.T) {
	tree := NewTree()
	objIdx := tree.AddObject(Object{AccountID: "a", ContainerID: "c", ObjectID: "o"})
	verIdx := tree.AddVersion(Version{ObjectIndex: objIdx, VersionID: 1})

	seg0 := tree.AddSegment(Segment{VersionIndex: verIdx, Index: 0})
	seg1 := tree.AddSegment(Segment{VersionIndex: verIdx, Index: 1})
	tree.AddRef(BlobReference{SegmentIndex: seg0})
	tree.AddRef(BlobReference{SegmentIndex: seg0})
	tree.AddRef(BlobReference{SegmentIndex: seg1})

	segs := tree.SegmentsOfVersion(verIdx)
	if len(segs) != 2 {
		t.Fatalf("SegmentsOfVersion() returned %d segments, want 2", len(segs))
	}

	refs := tree.RefsOfSegment(seg0)
	if len(refs) != 2 {
		t.Fatalf("RefsOfSegment(seg0) returned %d refs, want 2 (replicas)", len(refs))
	}
}

func TestBlobReferenceVerifiable(t *testing.T) {
	vol := "v1"
	pos := uint64(1)

	cases := []struct {
		name string
		ref  BlobReference
		want bool
	}{
		{"both present", BlobReference{VolumeID: &vol, Position: &pos}, true},
		{"volume absent", BlobReference{VolumeID: nil, Position: &pos}, false},
		{"position absent", BlobReference{VolumeID: &vol, Position: nil}, false},
		{"both absent", BlobReference{}, false},
	}
	for _, c := range cases {
		if got := c.ref.Verifiable(); got != c.want {
			t.Errorf("%s: Verifiable() = %v, want %v", c.name, got, c.want)
		}
	}
}
