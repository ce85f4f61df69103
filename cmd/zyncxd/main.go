// main.go - zyncxd: shielded pool daemon.
//
// Serves the pool engine over HTTP: vault management, proof-gated
// deposit/withdraw/swap transitions, the confidential computation queue,
// and read-only root/nullifier queries, plus /healthz and /metrics.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/0xr10t/zyncx/internal/dex"
	"github.com/0xr10t/zyncx/internal/mxe"
	"github.com/0xr10t/zyncx/internal/store"
	"github.com/0xr10t/zyncx/internal/verifier"
	"github.com/0xr10t/zyncx/internal/zyncx"
)

const version = "0.2.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "zyncxd",
		Short: "Shielded asset pool daemon",
		Long: "zyncxd runs the shielded pool engine: commitment trees, the " +
			"nullifier double-spend guard, proof-gated transitions and the " +
			"confidential computation queue, exposed over a REST API.",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "zyncxd.json", "path to the config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the pool daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("zyncxd", version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, closeLog, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	log.WithField("version", version).Info("starting zyncxd")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	kv, err := store.OpenLevelDB(filepath.Join(cfg.DataDir, "nullifiers"))
	if err != nil {
		return fmt.Errorf("open nullifier store: %w", err)
	}
	defer kv.Close()

	v, err := buildVerifier(cfg, log)
	if err != nil {
		return err
	}
	auth, err := buildAuthenticator(cfg, log)
	if err != nil {
		return err
	}

	// Same-asset transfers settle in custody accounting; cross-asset routes
	// are acknowledged and left to the configured settlement layer.
	executor := dex.ExecutorFunc(func(_ context.Context, ins dex.Instruction) (uint64, error) {
		log.WithFields(logrus.Fields{
			"amount_in":      ins.AmountIn,
			"min_amount_out": ins.MinAmountOut,
		}).Info("swap routed to execution venue")
		return ins.AmountIn, nil
	})

	engine := zyncx.NewEngine(
		zyncx.NewNullifierGuard(kv),
		v,
		zyncx.WithConfig(cfg.Engine),
		zyncx.WithExecutor(executor),
		zyncx.WithAuthenticator(auth),
		zyncx.WithFabric(mxe.NopFabric{}),
		zyncx.WithLogger(log),
	)
	if err := engine.LoadFromFile(cfg.StatePath); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	metrics := NewMetrics()
	stop := make(chan struct{})
	go metrics.Observe(engine.Events(), stop)

	health := NewHealthChecker(version)
	health.RegisterComponent("nullifier_store", func() error {
		_, err := kv.Has([]byte("health_probe"))
		return err
	})
	health.RegisterComponent("state_file", func() error {
		_, err := os.Stat(filepath.Dir(cfg.StatePath))
		return err
	})

	limiter := NewClientRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefill)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: NewServer(engine, log, metrics, health, limiter).Handler(),
	}

	// Periodic snapshots bound the loss window on a crash.
	snapshotTicker := time.NewTicker(time.Duration(cfg.SnapshotIntervalSeconds) * time.Second)
	go func() {
		for {
			select {
			case <-snapshotTicker.C:
				if err := engine.SaveToFile(cfg.StatePath); err != nil {
					log.WithError(err).Error("periodic snapshot failed")
				}
			case <-stop:
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		close(stop)
		snapshotTicker.Stop()
		return err
	case s := <-sig:
		log.WithField("signal", s.String()).Info("shutting down")
	}

	close(stop)
	snapshotTicker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := engine.SaveToFile(cfg.StatePath); err != nil {
		return fmt.Errorf("final snapshot: %w", err)
	}
	log.Info("state saved, bye")
	return nil
}

func buildVerifier(cfg *Config, log *logrus.Logger) (verifier.Verifier, error) {
	if cfg.VerifyingKeyPath == "" {
		log.Warn("no verifying key configured, accepting any non-empty proof")
		return verifier.Func(func(proof []byte, _ [][32]byte) error {
			if len(proof) == 0 {
				return fmt.Errorf("empty proof")
			}
			return nil
		}), nil
	}
	vkBytes, err := os.ReadFile(cfg.VerifyingKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read verifying key: %w", err)
	}
	return verifier.LoadGroth16(vkBytes)
}

func buildAuthenticator(cfg *Config, log *logrus.Logger) (mxe.Authenticator, error) {
	if cfg.FabricPublicKey == "" {
		log.Warn("no fabric public key configured, callback attestations are not checked")
		return mxe.NopAuthenticator{}, nil
	}
	raw, err := hex.DecodeString(cfg.FabricPublicKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("fabric_public_key must be %d hex-encoded bytes", ed25519.PublicKeySize)
	}
	return mxe.NewEd25519Authenticator(ed25519.PublicKey(raw)), nil
}
