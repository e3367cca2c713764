// Command node starts a sumeragi consensus node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tolelom/sumeragi/config"
	"github.com/tolelom/sumeragi/core"
	"github.com/tolelom/sumeragi/crypto/certgen"
	"github.com/tolelom/sumeragi/events"
	"github.com/tolelom/sumeragi/genesis"
	"github.com/tolelom/sumeragi/indexer"
	"github.com/tolelom/sumeragi/metrics"
	"github.com/tolelom/sumeragi/network"
	"github.com/tolelom/sumeragi/peer"
	"github.com/tolelom/sumeragi/pipeline"
	"github.com/tolelom/sumeragi/rpc"
	"github.com/tolelom/sumeragi/storage"
	"github.com/tolelom/sumeragi/sumeragi"
	"github.com/tolelom/sumeragi/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/sumeragi/vm/modules/transfer"
)

func main() {
	log := logrus.New()
	root := &cobra.Command{Use: "node", Short: "run a sumeragi consensus node"}

	var cfgPath, keyPath string
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.json", "path to config file")
	root.PersistentFlags().StringVar(&keyPath, "key", "validator.key", "path to keystore file")

	root.AddCommand(genKeyCmd(log, &keyPath))
	root.AddCommand(genCertsCmd(log, &cfgPath))
	root.AddCommand(runCmd(log, &cfgPath, &keyPath))

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func genKeyCmd(log *logrus.Logger, keyPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "generate a new validator key and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("SUMERAGI_PASSWORD")
			if password == "" {
				log.Warn("SUMERAGI_PASSWORD not set, keystore will use an empty password")
			}
			w, err := wallet.Generate()
			if err != nil {
				return err
			}
			if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
				return err
			}
			fmt.Printf("Generated key. Public key: %s\n", w.PubKey())
			fmt.Printf("Saved to: %s\n", *keyPath)
			return nil
		},
	}
}

func genCertsCmd(log *logrus.Logger, cfgPath *string) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "gencerts",
		Short: "generate CA and node TLS certificates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if err := certgen.GenerateAll(outDir, cfg.NodeID, nil); err != nil {
				return fmt.Errorf("gencerts: %w", err)
			}
			fmt.Printf("Certificates generated in %s for node %q\n", outDir, cfg.NodeID)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "./certs", "output directory for generated certificates")
	return cmd
}

func runCmd(log *logrus.Logger, cfgPath, keyPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(log, *cfgPath, *keyPath)
		},
	}
}

func run(log *logrus.Logger, cfgPath, keyPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	password := os.Getenv("SUMERAGI_PASSWORD")
	if password == "" {
		log.Warn("SUMERAGI_PASSWORD not set, keystore will use an empty password")
	}
	privKey, err := wallet.LoadKey(keyPath, password)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	self := peer.ID{Address: fmt.Sprintf(":%d", cfg.P2PPort), PublicKey: privKey.Public()}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	auditDB, err := storage.NewLevelDB(cfg.DataDir + "/audit")
	if err != nil {
		return fmt.Errorf("open audit db: %w", err)
	}
	defer auditDB.Close()
	auditLog := storage.NewAuditLog(auditDB)

	wsv := storage.NewStateDB(db)
	blockStore := storage.NewLevelBlockStore(db)
	chain := core.NewChain(blockStore)
	if err := chain.Init(); err != nil {
		return fmt.Errorf("chain init: %w", err)
	}

	emitter := events.NewEmitter(log.WithField("component", "events"))
	wsv.SetEmitter(emitter)
	metrics.Subscribe(emitter)
	idx := indexer.New(db, emitter, log.WithField("component", "indexer"))

	engineMempool := core.NewMempool()
	queueMempool := core.NewMempool()

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if tlsCfg != nil {
		log.Info("mTLS enabled for P2P")
	}

	node := network.NewNode(self, privKey, self.Address, tlsCfg, log.WithField("component", "network"))

	orch := pipeline.New(nil, queueMempool, wsv, auditLog, chain.Height()+1, log.WithField("component", "pipeline"))

	engineCfg := sumeragi.Config{
		Self:        self,
		PrivateKey:  privKey,
		MaxBlockTxs: cfg.MaxBlockTxs,
		Timeouts: sumeragi.Timeouts{
			NoTransactionReceipt: 5 * time.Second,
			BlockCreation:        5 * time.Second,
			Commit:               5 * time.Second,
		},
		MaxViewChangesBeforeReshuffle: cfg.NTopologyShiftsBeforeReshuffle,
	}
	engine := sumeragi.New(engineCfg, node, wsv, engineMempool, chain, emitter, log.WithField("component", "sumeragi"), orch.OnCommit)
	node.SetEngine(engine)
	orch.SetEngine(engine)

	syncer := network.NewSyncer(node, chain, orch, log.WithField("component", "sync"))

	if err := node.Start(); err != nil {
		return fmt.Errorf("p2p start: %w", err)
	}
	defer node.Stop()
	log.Infof("P2P listening on %s", self.Address)

	peers, err := cfg.PeerSet()
	if err != nil {
		return fmt.Errorf("peer set: %w", err)
	}
	for _, target := range peers {
		if target.Equal(self) {
			continue
		}
		conn, err := node.AddPeer(target)
		if err != nil {
			log.WithError(err).Warnf("peer %s: connect failed", target)
			continue
		}
		log.Infof("Connected to peer %s", target)
		if err := syncer.RequestBlocks(conn, chain.Height()+1); err != nil {
			log.WithError(err).Debug("initial block-sync request failed")
		}
	}

	if err := genesis.Bootstrap(cfg, engine, chain, wsv); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	rpcHandler := rpc.NewHandler(chain, queueMempool, wsv, idx)
	rpcServer := rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	log.Infof("RPC listening on :%d", cfg.RPCPort)

	ctx, cancel := context.WithCancel(context.Background())
	pipelineDone := make(chan error, 1)
	go func() { pipelineDone <- orch.Run(ctx) }()
	log.Infof("Consensus running (peer: %s)", self.Key())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("Shutting down...")
	cancel()
	<-pipelineDone
	log.Info("Shutdown complete.")
	return nil
}
