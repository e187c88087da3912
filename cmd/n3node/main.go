package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/n3node/core/blocksync"
	"github.com/n3node/core/consensus"
	"github.com/n3node/core/hash"
	"github.com/n3node/core/ledger"
	"github.com/n3node/core/mempool"
	"github.com/n3node/core/p2p"
	"github.com/n3node/core/pkg/config"
	"github.com/n3node/core/smartcontract/native"
	"github.com/n3node/core/store"
)

// version is stamped at release time; left as a placeholder here since
// this module builds from source rather than a release pipeline.
const version = "0.1.0-dev"

func main() {
	root := &cobra.Command{Use: "n3node"}
	root.AddCommand(versionCmd())
	root.AddCommand(startCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the node version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func startCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "run a full node: store, mempool, P2P, block sync and consensus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a node configuration YAML document")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("n3node: loading config: %w", err)
	}
	if level, lerr := logrus.ParseLevel(cfg.Logging.Level); lerr == nil {
		logrus.SetLevel(level)
	}

	eng, err := openEngine(cfg)
	if err != nil {
		return fmt.Errorf("n3node: opening storage: %w", err)
	}

	natives := native.NewSet()
	chain, err := ledger.Open(eng, natives)
	if err != nil {
		return fmt.Errorf("n3node: opening chain: %w", err)
	}

	pool := mempool.New(int(cfg.Network.MaxTransactionsPerBlock)*4, chain)

	syncer := blocksync.NewSyncer(chain, nil, blocksync.DefaultConfig())
	node := p2p.NewNode(p2p.Config{
		Magic:          cfg.Network.Magic,
		UserAgent:      "/n3node:" + version + "/",
		ListenAddress:  fmt.Sprintf("%s:%d", cfg.P2P.BindAddress, cfg.P2P.Port),
		SeedNodes:      cfg.P2P.SeedNodes,
		MaxConnections: cfg.P2P.MaxConnections,
	}, syncer)
	syncer.SetNode(node)

	validators, err := decodeCommittee(cfg.Network.StandbyCommittee)
	if err != nil {
		return fmt.Errorf("n3node: decoding standby_committee: %w", err)
	}

	var privKey []byte
	if cfg.Network.ValidatorKey != "" {
		privKey, err = hex.DecodeString(cfg.Network.ValidatorKey)
		if err != nil {
			return fmt.Errorf("n3node: decoding validator_key: %w", err)
		}
	}

	var svc *consensus.Service
	if len(validators) > 0 {
		svc, err = consensus.NewService(consensus.Config{
			Validators:    validators,
			PrivateKey:    privKey,
			Curve:         hash.CurveSecp256r1,
			BlockTime:     time.Duration(cfg.Network.MillisPerBlock) * time.Millisecond,
			MaxTxPerBlock: int(cfg.Network.MaxTransactionsPerBlock),
			Chain:         chain,
			Pool:          pool,
			Broadcast:     node,
		})
		if err != nil {
			return fmt.Errorf("n3node: building consensus service: %w", err)
		}
		syncer.SetConsensus(svc)
	} else {
		logrus.Warn("n3node: no standby_committee configured, running as a relay-only node")
	}

	if err := node.ListenAndServe(); err != nil {
		return fmt.Errorf("n3node: listening: %w", err)
	}
	defer node.Close()

	node.DialSeeds()
	syncer.Start()
	defer syncer.Stop()

	if svc != nil {
		if err := svc.Start(); err != nil {
			return fmt.Errorf("n3node: starting consensus: %w", err)
		}
		defer svc.Stop()
		if svc.IsValidator() {
			logrus.Info("n3node: running as a validating committee member")
		}
	}

	logrus.WithFields(logrus.Fields{
		"listen": node.ListenAddress(),
		"height": chain.Height(),
	}).Info("n3node started")

	select {}
}

func openEngine(cfg *config.Config) (store.Engine, error) {
	switch cfg.Storage.Engine {
	case "", "memory":
		return store.NewMemory(), nil
	case "leveldb":
		return store.OpenLevelDB(cfg.Storage.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

// decodeCommittee parses the YAML document's hex-encoded compressed
// public keys into the raw form consensus.Config and the witness
// script builders expect.
func decodeCommittee(hexKeys []string) ([][]byte, error) {
	out := make([][]byte, len(hexKeys))
	for i, k := range hexKeys {
		b, err := hex.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}
