package nodeclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/szulijun/sfs/pkg/model"
	"github.com/szulijun/sfs/pkg/nodeclient"
)

// nextProto is the ALPN identifier this module's QUIC listener/dialer
// negotiate, analogous to the carrier's own protocol identifier in
// internal/transport/quic_transport_impl.go.
const nextProto = "sfs-nodeclient/v1"

// Client is a QUIC-based pkg/nodeclient.NodeClient.
type Client struct {
	addr string
	conn *quic.Conn
}

// DefaultTLSConfig returns a permissive client TLS config suitable for a
// cluster that authenticates nodes at a layer above this transport (node
// identity/cert exchange is out of this module's scope; see DESIGN.md).
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{nextProto},
	}
}

// Dial opens a QUIC connection to addr ("host:port") and returns a ready
// Client. The caller owns the returned Client and must Close it.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config) (*Client, error) {
	if tlsConf == nil {
		tlsConf = DefaultTLSConfig()
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("nodeclient: dial %s: %w", addr, err)
	}
	return &Client{addr: addr, conn: conn}, nil
}

var _ nodeclient.NodeClient = (*Client)(nil)

// Close releases the underlying QUIC connection.
func (c *Client) Close() error {
	return c.conn.CloseWithError(0, "")
}

// roundtrip opens one bidirectional stream, writes the request frame,
// reads exactly one response frame, and decodes it into okInto unless
// the peer returned an error frame, in which case that error is
// returned verbatim (never coerced to ErrBlobAbsent — that mapping only
// happens at the Checksum/Read call sites, on an explicit Absent flag).
func (c *Client) roundtrip(ctx context.Context, reqType frameType, req any, okType frameType, okInto any) error {
	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("nodeclient: open stream: %w", err)
	}
	defer stream.Close()

	if err := writeFrame(stream, reqType, req); err != nil {
		return err
	}

	t, payload, err := readRawFrame(stream)
	if err != nil {
		return fmt.Errorf("nodeclient: read response: %w", err)
	}
	if t == frameErrorResp {
		var e errorRespMsg
		if decErr := decodePayload(payload, &e); decErr != nil {
			return fmt.Errorf("nodeclient: decode error frame: %w", decErr)
		}
		return errors.New(e.Message)
	}
	if t != okType {
		return fmt.Errorf("nodeclient: unexpected response frame type %d", t)
	}
	if okInto != nil {
		if err := decodePayload(payload, okInto); err != nil {
			return fmt.Errorf("nodeclient: decode response: %w", err)
		}
	}
	return nil
}

// Checksum implements pkg/nodeclient.NodeClient.
func (c *Client) Checksum(ctx context.Context, volumeID string, position uint64, window *nodeclient.ByteWindow, algo nodeclient.DigestAlgo) (*model.DigestBlob, error) {
	req := checksumReqMsg{VolumeID: volumeID, Position: position, Algo: string(algo)}
	if window != nil {
		req.HasWindow = true
		req.Offset = window.Offset
		req.Length = window.Length
	}

	var resp checksumRespMsg
	if err := c.roundtrip(ctx, frameChecksumReq, req, frameChecksumResp, &resp); err != nil {
		return nil, err
	}
	if resp.Absent {
		return nil, nodeclient.ErrBlobAbsent
	}
	return &model.DigestBlob{Position: position, Length: resp.Length, Digest: resp.Digest}, nil
}

// Read implements pkg/nodeclient.NodeClient.
func (c *Client) Read(ctx context.Context, volumeID string, position uint64, window *nodeclient.ByteWindow) ([]byte, error) {
	req := readReqMsg{VolumeID: volumeID, Position: position}
	if window != nil {
		req.HasWindow = true
		req.Offset = window.Offset
		req.Length = window.Length
	}

	var resp readRespMsg
	if err := c.roundtrip(ctx, frameReadReq, req, frameReadResp, &resp); err != nil {
		return nil, err
	}
	if resp.Absent {
		return nil, nodeclient.ErrBlobAbsent
	}
	return resp.Data, nil
}

// Write implements pkg/nodeclient.NodeClient.
func (c *Client) Write(ctx context.Context, volumeID string, position uint64, data []byte) error {
	req := writeReqMsg{VolumeID: volumeID, Position: position, Data: data}
	var resp writeRespMsg
	return c.roundtrip(ctx, frameWriteReq, req, frameWriteResp, &resp)
}

// Delete implements pkg/nodeclient.NodeClient.
func (c *Client) Delete(ctx context.Context, volumeID string, position uint64) error {
	req := deleteReqMsg{VolumeID: volumeID, Position: position}
	var resp deleteRespMsg
	return c.roundtrip(ctx, frameDeleteReq, req, frameDeleteResp, &resp)
}

// Ack implements pkg/nodeclient.NodeClient.
func (c *Client) Ack(ctx context.Context, volumeID string, position uint64) error {
	req := ackReqMsg{VolumeID: volumeID, Position: position}
	var resp ackRespMsg
	return c.roundtrip(ctx, frameAckReq, req, frameAckResp, &resp)
}
