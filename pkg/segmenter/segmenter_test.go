package segmenter

import (
	"bytes"
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szulijun/sfs/pkg/model"
)

func TestSplitBytesSmallInputIsOneChunk(t *testing.T) {
	t.Parallel()
	input := []byte("Hello World")

	chunks, err := SplitBytes(input)
	require.NoError(t, err)
	require.Len(t, chunks, 1, "an input smaller than the minimum chunk size should be one chunk")

	assert.Equal(t, input, chunks[0].Data)
	assert.Equal(t, uint64(len(input)), chunks[0].WriteLength)
	assert.Equal(t, sha512.Sum512(input), chunks[0].WriteSha512)
}

func TestSplitBytesReassemblesToOriginal(t *testing.T) {
	t.Parallel()
	input := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 20000)

	chunks, err := SplitBytes(input)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1, "an input larger than the maximum chunk size should split into more than one chunk")

	var got []byte
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		got = append(got, c.Data...)
		assert.Equal(t, sha512.Sum512(c.Data), c.WriteSha512, "chunk %d digest", i)
	}
	assert.Equal(t, input, got, "concatenated chunk data should reassemble the original input")
}

func TestSplitBytesEmptyInput(t *testing.T) {
	t.Parallel()
	chunks, err := SplitBytes(nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestAppendToVersionCreatesOrderedSegments(t *testing.T) {
	t.Parallel()
	tree := model.NewTree()
	objIdx := tree.AddObject(model.Object{AccountID: "a", ContainerID: "c", ObjectID: "o"})
	verIdx := tree.AddVersion(model.Version{ObjectIndex: objIdx, VersionID: 1})

	chunks, err := SplitBytes([]byte("some body bytes to segment"))
	require.NoError(t, err)

	segIdx := AppendToVersion(tree, verIdx, chunks)
	require.Len(t, segIdx, len(chunks))

	segs := tree.SegmentsOfVersion(verIdx)
	require.Len(t, segs, len(chunks))
	for i, s := range segs {
		assert.Equal(t, i, s.Index)
		if assert.NotNil(t, s.WriteSha512) {
			assert.Equal(t, chunks[i].WriteSha512, *s.WriteSha512)
		}
		if assert.NotNil(t, s.WriteLength) {
			assert.Equal(t, chunks[i].WriteLength, *s.WriteLength)
		}
	}
}
