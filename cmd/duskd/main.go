// Command duskd runs the full node core: peer session multiplexing, chain
// sync, dandelion mempool relay, dependent-tx chaining, bulletin-board
// replication, and miner coordination, wired together by internal/node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duskchain/fullnode/internal/config"
	"github.com/duskchain/fullnode/internal/eventbus"
	"github.com/duskchain/fullnode/internal/logging"
	"github.com/duskchain/fullnode/internal/metrics"
	"github.com/duskchain/fullnode/internal/miner"
	"github.com/duskchain/fullnode/internal/node"
	"github.com/duskchain/fullnode/internal/processor"
	"github.com/duskchain/fullnode/internal/processor/fake"
	"github.com/duskchain/fullnode/internal/store"
	"github.com/duskchain/fullnode/internal/store/badgerstore"
	"github.com/duskchain/fullnode/internal/store/memory"
	"github.com/duskchain/fullnode/pkg/core"
)

func main() {
	v := viper.New()
	root := &cobra.Command{
		Use:   "duskd",
		Short: "duskd runs a full node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v)
		},
	}
	bindFlags(root, v)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath, v)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New("duskd")
	log.Info().Str("runtime_id", cfg.RuntimeID).Str("listen_addr", cfg.ListenAddr).Msg("starting")

	promReg := prometheus.NewRegistry()
	reg := metrics.NewRegistry(promReg)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// bus is constructed here, ahead of both the processor and the node, so
	// the Observer below can publish onto the same bus the node reads from.
	bus := eventbus.New()
	observer := processor.Observer{
		OnStateChanged: func(height uint64, hash core.HashT) {
			bus.NewState.Pub(eventbus.NewStateEvent{Height: height, Hash: hash})
		},
		OnRolledBack: func(fromHeight, toHeight uint64) {
			bus.RolledBack.Pub(eventbus.RolledBackEvent{FromHeight: fromHeight, ToHeight: toHeight})
		},
		OnSyncError: func(reason string) {
			bus.SyncError.Pub(eventbus.SyncErrorEvent{Reason: reason})
		},
		// OnSyncProgress is left unset: syncctl.Controller already publishes
		// SyncProgress directly from its own OnHeaderPack/OnBodyApplied
		// bookkeeping, so a second delivery path here would just double the
		// same reporting rather than reach any additional subscriber.
	}
	proc := fake.New(cfg.Sync.FastSyncHorizon, cfg.Sync.MaxAutoRollback, observer)

	// No external mining solver is wired in this build; a solver
	// implementation is a separate operational concern outside this scope.
	var solver miner.ExternalSolver

	n := node.New(cfg, bus, proc, st, solver, log, reg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	n.Run(ctx)
	return nil
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.DataDir == "" {
		return memory.New(), nil
	}
	return badgerstore.Open(cfg.DataDir)
}
