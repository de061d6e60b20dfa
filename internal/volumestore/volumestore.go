// Package volumestore is the local backing store a node uses to answer
// NodeClient (C4) RPCs against its own volumes: checksum/read/write/
// delete/ack against a (volumeID, position) coordinate. It is the
// volume-local half the spec treats as an external collaborator (out of
// core scope); this module provides a concrete one so internal/nodeclient
// has something real to dial into for tests and for running a node.
//
// Persistence and optional payload compression mirror
// internal/keyValStore's Badger usage and pkg/storage/storeDataPipeline.go's
// lzma pipeline respectively.
package volumestore

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz/lzma"
)

// ErrAbsent means no blob is stored at the requested coordinate.
var ErrAbsent = errors.New("volumestore: blob absent at coordinate")

// Window restricts an operation to a byte sub-range of the stored blob.
// A nil *Window means "the whole blob".
type Window struct {
	Offset uint64
	Length uint64
}

// Config controls a Store.
type Config struct {
	Path string

	// Compress enables lzma compression of blob payloads before they hit
	// Badger, mirroring the teacher's WAL block compression.
	Compress bool

	Logger *logrus.Logger
}

// Store is a Badger-backed key/value store keyed by (volumeID, position).
type Store struct {
	cfg Config
	db  *badger.DB
	log *logrus.Logger
}

// Open opens (creating if necessary) the on-disk store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("volumestore: open: %w", err)
	}
	return &Store{cfg: cfg, db: db, log: cfg.Logger}, nil
}

// Close releases the underlying Badger handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func blobKey(volumeID string, position uint64) []byte {
	return []byte(fmt.Sprintf("blob\x00%s\x00%020d", volumeID, position))
}

func ackKey(volumeID string, position uint64) []byte {
	return []byte(fmt.Sprintf("ack\x00%s\x00%020d", volumeID, position))
}

func (s *Store) compress(data []byte) ([]byte, error) {
	if !s.cfg.Compress {
		return append([]byte{0}, data...), nil
	}
	var buf bytes.Buffer
	buf.WriteByte(1)
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("volumestore: new lzma writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("volumestore: lzma write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("volumestore: lzma close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, nil
	}
	flag, body := stored[0], stored[1:]
	switch flag {
	case 0:
		return body, nil
	case 1:
		r, err := lzma.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("volumestore: new lzma reader: %w", err)
		}
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("volumestore: unknown payload flag %d", flag)
	}
}

// Write stores data at (volumeID, position), replacing whatever was
// there before.
func (s *Store) Write(volumeID string, position uint64, data []byte) error {
	stored, err := s.compress(data)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blobKey(volumeID, position), stored)
	})
}

// readRaw returns the full decompressed blob, or ErrAbsent if unset.
func (s *Store) readRaw(volumeID string, position uint64) ([]byte, error) {
	var stored []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blobKey(volumeID, position))
		if err != nil {
			return err
		}
		stored, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("volumestore: read: %w", err)
	}
	return decompress(stored)
}

func applyWindow(data []byte, w *Window) ([]byte, error) {
	if w == nil {
		return data, nil
	}
	start := w.Offset
	end := w.Offset + w.Length
	if start > uint64(len(data)) || end > uint64(len(data)) || start > end {
		return nil, fmt.Errorf("volumestore: window [%d,%d) out of range for %d-byte blob", start, end, len(data))
	}
	return data[start:end], nil
}

// Read returns the bytes at (volumeID, position), optionally windowed.
func (s *Store) Read(volumeID string, position uint64, window *Window) ([]byte, error) {
	data, err := s.readRaw(volumeID, position)
	if err != nil {
		return nil, err
	}
	return applyWindow(data, window)
}

// Checksum recomputes the SHA-512 digest and length of the bytes at
// (volumeID, position), optionally windowed. Returns ErrAbsent if no
// blob is stored there.
func (s *Store) Checksum(volumeID string, position uint64, window *Window) (length uint64, digest [64]byte, err error) {
	data, err := s.readRaw(volumeID, position)
	if err != nil {
		return 0, digest, err
	}
	data, err = applyWindow(data, window)
	if err != nil {
		return 0, digest, err
	}
	digest = sha512.Sum512(data)
	return uint64(len(data)), digest, nil
}

// Delete removes the blob at (volumeID, position). Deleting an
// already-absent blob is not an error.
func (s *Store) Delete(volumeID string, position uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(blobKey(volumeID, position)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Delete(ackKey(volumeID, position))
	})
}

// Ack marks the blob at (volumeID, position) durable.
func (s *Store) Ack(volumeID string, position uint64) error {
	if _, err := s.readRaw(volumeID, position); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(ackKey(volumeID, position), []byte{1})
	})
}

// Acknowledged reports whether the blob at (volumeID, position) has been
// marked durable.
func (s *Store) Acknowledged(volumeID string, position uint64) (bool, error) {
	var acked bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(ackKey(volumeID, position))
		if errors.Is(err, badger.ErrKeyNotFound) {
			acked = false
			return nil
		}
		if err != nil {
			return err
		}
		acked = true
		return nil
	})
	return acked, err
}
