package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/szulijun/sfs/internal/clustercontroller"
	"github.com/szulijun/sfs/internal/config"
	"github.com/szulijun/sfs/pkg/cluster"
)

func main() {
	cfg := parseFlags()

	log := logrus.New()
	if cfg.debug {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("sfsnode exited with an error")
		os.Exit(1)
	}
}

// nodeConfig holds the parsed command line configuration.
type nodeConfig struct {
	nodeID     string
	listenAddr string
	volumeIDs  string
	configPath string
	isMaster   bool
	debug      bool
}

func parseFlags() nodeConfig {
	cfg := nodeConfig{}

	flag.StringVar(&cfg.nodeID, "node-id", "", "unique identifier for this node (required)")
	flag.StringVar(&cfg.listenAddr, "listen", ":4243", "address to listen on for node RPCs")
	flag.StringVar(&cfg.volumeIDs, "volumes", "", "comma-separated list of volume IDs this node serves")
	flag.StringVar(&cfg.configPath, "config", "", "path to a metastore config YAML file (optional)")
	flag.BoolVar(&cfg.isMaster, "master", false, "apply the fixed index mapping set on start")
	flag.BoolVar(&cfg.debug, "debug", false, "enable debug logging")

	flag.Parse()
	return cfg
}

func run(ctx context.Context, cfg nodeConfig, log *logrus.Logger) error {
	if cfg.nodeID == "" {
		return fmt.Errorf("sfsnode: -node-id is required")
	}

	storeCfg, err := config.Load(cfg.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tlsConf, err := selfSignedServerTLSConfig()
	if err != nil {
		return fmt.Errorf("generate server TLS config: %w", err)
	}

	var volumeIDs []string
	if cfg.volumeIDs != "" {
		volumeIDs = strings.Split(cfg.volumeIDs, ",")
	}

	ctrl, err := clustercontroller.New(clustercontroller.Config{
		NodeID:     cluster.NodeID(cfg.nodeID),
		ListenAddr: cfg.listenAddr,
		VolumeIDs:  volumeIDs,
		IsMaster:   cfg.isMaster,
		Store:      storeCfg,
		Logger:     log,
		TLSConfig:  tlsConf,
	})
	if err != nil {
		return fmt.Errorf("assemble controller: %w", err)
	}

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := ctrl.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("error stopping controller")
		}
	}()

	log.WithField("node_id", cfg.nodeID).Info("sfsnode ready")
	<-ctx.Done()
	log.Info("sfsnode shutting down")
	return nil
}

// selfSignedServerTLSConfig generates an ephemeral self-signed
// certificate for the QUIC RPC listener. Cluster-wide node authentication
// is a layer this module deliberately leaves out of scope (see
// DESIGN.md); this keeps the listener runnable without an external CA.
func selfSignedServerTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour * 365),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("build key pair: %w", err)
	}

	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
