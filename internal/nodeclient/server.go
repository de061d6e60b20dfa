package nodeclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"

	"github.com/szulijun/sfs/internal/volumestore"
)

// Server accepts QUIC connections and answers NodeClient RPCs against a
// local volumestore.Store, one goroutine per stream.
type Server struct {
	store    *volumestore.Store
	listener *quic.Listener
	log      *logrus.Logger
}

// Listen opens a QUIC listener on addr backed by store.
func Listen(addr string, store *volumestore.Store, tlsConf *tls.Config, log *logrus.Logger) (*Server, error) {
	if tlsConf == nil || len(tlsConf.Certificates) == 0 {
		return nil, errors.New("nodeclient: server requires a TLS config with at least one certificate")
	}
	if log == nil {
		log = logrus.New()
	}
	tlsConf = tlsConf.Clone()
	tlsConf.NextProtos = []string{nextProto}

	ln, err := quic.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("nodeclient: listen %s: %w", addr, err)
	}
	return &Server{store: store, listener: ln, log: log}, nil
}

// Addr returns the listener's bound network address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close shuts down the listener. In-flight streams are abandoned.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve accepts connections until ctx is cancelled or the listener
// closes. Each connection's streams are handled concurrently.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("nodeclient: accept: %w", err)
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go s.serveStream(stream)
	}
}

func (s *Server) serveStream(stream *quic.Stream) {
	defer stream.Close()

	t, payload, err := readRawFrame(stream)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.log.WithError(err).Debug("nodeclient: read request frame")
		}
		return
	}

	if err := s.dispatch(stream, t, payload); err != nil {
		s.log.WithError(err).Debug("nodeclient: dispatch request")
		_ = writeFrame(stream, frameErrorResp, errorRespMsg{Message: err.Error()})
	}
}

func (s *Server) dispatch(stream *quic.Stream, t frameType, payload []byte) error {
	switch t {
	case frameChecksumReq:
		return s.handleChecksum(stream, payload)
	case frameReadReq:
		return s.handleRead(stream, payload)
	case frameWriteReq:
		return s.handleWrite(stream, payload)
	case frameDeleteReq:
		return s.handleDelete(stream, payload)
	case frameAckReq:
		return s.handleAck(stream, payload)
	default:
		return fmt.Errorf("nodeclient: unknown request frame type %d", t)
	}
}

func toWindow(hasWindow bool, offset, length uint64) *volumestore.Window {
	if !hasWindow {
		return nil
	}
	return &volumestore.Window{Offset: offset, Length: length}
}

func (s *Server) handleChecksum(stream *quic.Stream, payload []byte) error {
	var req checksumReqMsg
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	length, digest, err := s.store.Checksum(req.VolumeID, req.Position, toWindow(req.HasWindow, req.Offset, req.Length))
	if errors.Is(err, volumestore.ErrAbsent) {
		return writeFrame(stream, frameChecksumResp, checksumRespMsg{Absent: true})
	}
	if err != nil {
		return err
	}
	return writeFrame(stream, frameChecksumResp, checksumRespMsg{Length: length, Digest: digest})
}

func (s *Server) handleRead(stream *quic.Stream, payload []byte) error {
	var req readReqMsg
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	data, err := s.store.Read(req.VolumeID, req.Position, toWindow(req.HasWindow, req.Offset, req.Length))
	if errors.Is(err, volumestore.ErrAbsent) {
		return writeFrame(stream, frameReadResp, readRespMsg{Absent: true})
	}
	if err != nil {
		return err
	}
	return writeFrame(stream, frameReadResp, readRespMsg{Data: data})
}

func (s *Server) handleWrite(stream *quic.Stream, payload []byte) error {
	var req writeReqMsg
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	if err := s.store.Write(req.VolumeID, req.Position, req.Data); err != nil {
		return err
	}
	return writeFrame(stream, frameWriteResp, writeRespMsg{})
}

func (s *Server) handleDelete(stream *quic.Stream, payload []byte) error {
	var req deleteReqMsg
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	if err := s.store.Delete(req.VolumeID, req.Position); err != nil {
		return err
	}
	return writeFrame(stream, frameDeleteResp, deleteRespMsg{})
}

func (s *Server) handleAck(stream *quic.Stream, payload []byte) error {
	var req ackReqMsg
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	if err := s.store.Ack(req.VolumeID, req.Position); err != nil {
		return err
	}
	return writeFrame(stream, frameAckResp, ackRespMsg{})
}
