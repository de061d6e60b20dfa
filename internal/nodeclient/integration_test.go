package nodeclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/szulijun/sfs/internal/testutil"
	"github.com/szulijun/sfs/internal/volumestore"
	pkgnodeclient "github.com/szulijun/sfs/pkg/nodeclient"
)

func selfSignedTLSConfig(t *testing.T) *tls.Config {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("X509KeyPair() error = %v", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}
}

// startTestServer brings up a Server on the loopback interface backed by
// a fresh volumestore.Store, and returns a connected Client plus a
// cleanup func.
func startTestServer(t *testing.T) (*volumestore.Store, *Server, *Client) {
	t.Helper()
	testutil.RequireLong(t)

	store, err := volumestore.Open(volumestore.Config{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("volumestore.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srv, err := Listen("127.0.0.1:0", store, selfSignedTLSConfig(t), nil)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Serve(ctx) }()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	client, err := Dial(dialCtx, srv.Addr(), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return store, srv, client
}

func TestClientServerWriteChecksumRead(t *testing.T) {
	_, _, client := startTestServer(t)
	ctx := context.Background()

	data := []byte("round trip over quic")
	if err := client.Write(ctx, "vol1", 1, data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	digest, err := client.Checksum(ctx, "vol1", 1, nil, pkgnodeclient.SHA512)
	if err != nil {
		t.Fatalf("Checksum() error = %v", err)
	}
	if digest.Length != uint64(len(data)) {
		t.Fatalf("Checksum().Length = %d, want %d", digest.Length, len(data))
	}

	got, err := client.Read(ctx, "vol1", 1, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("Read() = %q, want %q", got, data)
	}
}

func TestClientChecksumAbsentBlob(t *testing.T) {
	_, _, client := startTestServer(t)
	ctx := context.Background()

	_, err := client.Checksum(ctx, "vol1", 99, nil, pkgnodeclient.SHA512)
	if !errors.Is(err, pkgnodeclient.ErrBlobAbsent) {
		t.Fatalf("Checksum() on an absent coordinate error = %v, want ErrBlobAbsent", err)
	}
}

func TestClientDeleteAndAck(t *testing.T) {
	_, _, client := startTestServer(t)
	ctx := context.Background()

	if err := client.Write(ctx, "vol1", 5, []byte("x")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := client.Ack(ctx, "vol1", 5); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}
	if err := client.Delete(ctx, "vol1", 5); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := client.Read(ctx, "vol1", 5, nil)
	if !errors.Is(err, pkgnodeclient.ErrBlobAbsent) {
		t.Fatalf("Read() after Delete() error = %v, want ErrBlobAbsent", err)
	}
}
