// Package segmenter splits a Version's body into content-defined Segments.
//
// Content-defined chunking (as opposed to fixed-size slicing) means an
// insertion or deletion inside the body shifts chunk boundaries only
// locally, so unrelated Segments downstream keep the same boundaries and
// the same digest across re-uploads of a mostly-unchanged object. Boundary
// selection is delegated to boxo's buzhash rolling-hash splitter; this
// package only owns turning the resulting byte ranges into Segments with
// their WriteSha512/WriteLength fields populated and leaves placement
// (picking a Volume/Node pair per replica) to the caller.
package segmenter

import (
	"crypto/sha512"
	"fmt"
	"io"
	"runtime"
	"sync"

	boxochunker "github.com/ipfs/boxo/chunker"

	"github.com/szulijun/sfs/pkg/model"
)

// Chunk is one content-defined slice of a Version's body: the raw bytes
// plus the integrity fields a Segment needs before any replica has been
// placed on a volume.
type Chunk struct {
	Index       int
	Data        []byte
	WriteSha512 [64]byte
	WriteLength uint64
}

// Split reads r to EOF and returns one Chunk per content-defined boundary,
// in order. Boundaries come from a buzhash rolling hash (boxo/chunker),
// the same splitter the teacher's chunking packages build on; digests are
// computed concurrently across chunks and reassembled by index, since
// SHA-512 is the dominant cost for large bodies and chunk order only
// matters for the final result, not for the hashing itself.
func Split(r io.Reader) ([]Chunk, error) {
	bz := boxochunker.NewBuzhash(r)

	numWorkers := runtime.NumCPU()
	if numWorkers < 1 {
		numWorkers = 1
	}

	type pending struct {
		index int
		data  []byte
	}

	raw := make([]pending, 0, 16)
	for index := 0; ; index++ {
		data, err := bz.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("segmenter: reading chunk %d: %w", index, err)
		}
		raw = append(raw, pending{index: index, data: data})
	}

	chunks := make([]Chunk, len(raw))
	limiter := make(chan struct{}, numWorkers)
	var wg sync.WaitGroup

	for _, p := range raw {
		wg.Add(1)
		limiter <- struct{}{}
		go func(p pending) {
			defer wg.Done()
			defer func() { <-limiter }()
			sum := sha512.Sum512(p.data)
			chunks[p.index] = Chunk{
				Index:       p.index,
				Data:        p.data,
				WriteSha512: sum,
				WriteLength: uint64(len(p.data)),
			}
		}(p)
	}
	wg.Wait()

	return chunks, nil
}

// SplitBytes is a convenience wrapper around Split for an in-memory body.
func SplitBytes(data []byte) ([]Chunk, error) {
	return Split(&byteReader{data: data})
}

// byteReader avoids pulling in bytes.Reader's seek/len surface this
// package has no use for.
type byteReader struct {
	data []byte
	off  int
}

func (b *byteReader) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

// AppendToVersion materialises chunks as Segments owned by verIdx, in
// order, and returns their arena indices. It does not create any
// BlobReference: placement happens once a caller has chosen a volume.
func AppendToVersion(tree *model.Tree, verIdx int, chunks []Chunk) []int {
	segIdx := make([]int, len(chunks))
	for i, c := range chunks {
		sha := c.WriteSha512
		length := c.WriteLength
		segIdx[i] = tree.AddSegment(model.Segment{
			VersionIndex: verIdx,
			Index:        i,
			WriteSha512:  &sha,
			WriteLength:  &length,
		})
	}
	return segIdx
}
