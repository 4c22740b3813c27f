// Package main provides perpcored, the daemon that wires together the
// protocol client core's components: storage, RPC transport, oracle
// resolution, the subaccount allocator, the transaction orchestrator, and
// the periodic reconciliation sweep.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perpcore/agent-core/internal/addresses"
	"github.com/perpcore/agent-core/internal/config"
	"github.com/perpcore/agent-core/internal/cryptovault"
	"github.com/perpcore/agent-core/internal/oracle"
	"github.com/perpcore/agent-core/internal/reconciler"
	"github.com/perpcore/agent-core/internal/rpcclient"
	"github.com/perpcore/agent-core/internal/store"
	"github.com/perpcore/agent-core/internal/subaccount"
	"github.com/perpcore/agent-core/internal/svm"
	"github.com/perpcore/agent-core/internal/sweep"
	"github.com/perpcore/agent-core/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

// core bundles the long-lived component handles the daemon owns. The
// request-scoped pieces (executor, orchestrator) are built per wallet once
// its UMK session is unlocked, since they need a live signing key.
type core struct {
	cfg       config.Config
	st        *store.SQLiteStore
	rpc       rpcclient.Client
	ids       addresses.ProgramIDs
	oracles   *oracle.Resolver
	allocator *subaccount.Allocator
	reconcile *reconciler.Reconciler
	sessions  *cryptovault.SessionStore
	nonces    *cryptovault.NonceStore
	sweeper   *sweep.Sweep
}

func main() {
	var (
		configFile  = flag.String("config", "", "Config file path")
		dataDir     = flag.String("data-dir", "./data", "Data directory")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("perpcored %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal("load config", "error", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	st, err := store.Open(store.Config{DataDir: cfg.DataDir})
	if err != nil {
		log.Fatal("open store", "error", err)
	}
	defer st.Close()

	// This core only depends on the rpcclient.Client interface and ships no
	// network transport; perpcored always runs against the in-memory
	// rpcclient.Mock.
	var rpc rpcclient.Client = rpcclient.NewMock()

	ids := addresses.ProgramIDs{}
	fallbackOracle := svm.PublicKey{}

	c := &core{
		cfg:       cfg,
		st:        st,
		rpc:       rpc,
		ids:       ids,
		oracles:   oracle.New(rpc, ids, cfg.OracleCacheTTL, fallbackOracle),
		allocator: subaccount.New(rpc, ids, st),
		reconcile: reconciler.New(st),
		sessions:  cryptovault.NewSessionStore(),
		nonces:    cryptovault.NewNonceStore(),
	}
	c.sweeper = sweep.New(st, rpc, ids, c.reconcile)
	defer c.sessions.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.sweeper.Run(ctx)

	log.Info("perpcored started", "env", cfg.Env, "data_dir", cfg.DataDir, "rpc_url", cfg.RPCURL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
}
