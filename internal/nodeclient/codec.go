// Package nodeclient implements pkg/nodeclient.NodeClient over QUIC: one
// bidirectional stream per call, a length-prefixed gob-encoded frame on
// that stream. The framing is grounded directly on
// internal/transport/message_codec.go's [4B type][4B length][payload]
// layout; gob replaces that file's protobuf-shaped payload because no
// .proto/.pb.go sources exist anywhere in the retrieved corpus to
// generate from (see DESIGN.md).
package nodeclient

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

const (
	headerSize      = 8
	maxPayloadBytes = 64 * 1024 * 1024
)

type frameType uint32

const (
	frameChecksumReq frameType = iota
	frameChecksumResp
	frameReadReq
	frameReadResp
	frameWriteReq
	frameWriteResp
	frameDeleteReq
	frameDeleteResp
	frameAckReq
	frameAckResp
	frameErrorResp
)

func writeFrame(w io.Writer, t frameType, payload any) error {
	var buf bytes.Buffer
	if payload != nil {
		if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
			return fmt.Errorf("nodeclient: encode frame: %w", err)
		}
	}
	if buf.Len() > maxPayloadBytes {
		return fmt.Errorf("nodeclient: frame payload too large: %d bytes", buf.Len())
	}

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:4], uint32(t))
	binary.BigEndian.PutUint32(header[4:8], uint32(buf.Len()))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("nodeclient: write header: %w", err)
	}
	if buf.Len() > 0 {
		if _, err := w.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("nodeclient: write payload: %w", err)
		}
	}
	return nil
}

// readRawFrame reads one frame's header and raw payload bytes without
// assuming a payload shape, since the caller does not know in advance
// whether the response is the expected type or an error frame.
func readRawFrame(r io.Reader) (frameType, []byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("nodeclient: read header: %w", err)
	}
	t := frameType(binary.BigEndian.Uint32(header[0:4]))
	length := binary.BigEndian.Uint32(header[4:8])
	if length > maxPayloadBytes {
		return 0, nil, fmt.Errorf("nodeclient: frame payload too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("nodeclient: read payload: %w", err)
		}
	}
	return t, payload, nil
}

func decodePayload(payload []byte, into any) error {
	if len(payload) == 0 {
		return nil
	}
	return gob.NewDecoder(bytes.NewReader(payload)).Decode(into)
}
