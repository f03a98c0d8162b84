// Command istctl demonstrates a donor/joiner IST session end to end over
// real TCP, wiring config, logging, and metrics together the way a host
// process embedding the ist packages would.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dutow/galera/asyncsender"
	"github.com/dutow/galera/internal/config"
	"github.com/dutow/galera/internal/ist"
	"github.com/dutow/galera/log"
	"github.com/dutow/galera/receiver"
)

var (
	recvAddr string
	recvBind string
	baseHost string
	basePort int
	logLevel string
	version  int
)

func bindCommonFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&recvAddr, "ist.recv_addr", "tcp://127.0.0.1:0", "advertisable listen address")
	cmd.PersistentFlags().StringVar(&recvBind, "ist.recv_bind", "", "actual bind address, defaults to recv_addr")
	cmd.PersistentFlags().StringVar(&baseHost, "base_host", "127.0.0.1", "fallback host")
	cmd.PersistentFlags().IntVar(&basePort, "base_port", 4567, "fallback port; ist listens on base_port+1")
	cmd.PersistentFlags().IntVar(&version, "protocol-version", 8, "proposed IST protocol version")
	cmd.PersistentFlags().StringVar(&logLevel, "level", "info", "log level")
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		fmt.Fprintln(os.Stderr, "bind flags:", err)
	}
}

func newLogger() log.Log {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(logLevel))
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return log.New(lvl.Level())
}

func loadConfig() config.Config {
	v := viper.GetViper()
	cfg, err := config.Load(v)
	if err != nil {
		cfg = config.Default()
	}
	cfg.RecvAddr = recvAddr
	cfg.RecvBind = recvBind
	cfg.BaseHost = baseHost
	cfg.BasePort = basePort
	return cfg
}

func newJoinerCmd() *cobra.Command {
	var first, last int64
	var sourceID string
	cmd := &cobra.Command{
		Use:   "joiner",
		Short: "run the receiver side of an IST session and print the advertised address",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger().Named("receiver")
			log.SetupGlobal(logger)

			cfg := loadConfig()
			h := logHandler{logger: logger}
			r := receiver.New(h, receiver.WithLog(logger), receiver.WithKeepKeys(cfg.KeepKeys))

			addr, err := r.Prepare(cfg, ist.SeqNo(first), ist.SeqNo(last), version, sourceID)
			if err != nil {
				return fmt.Errorf("prepare: %w", err)
			}
			fmt.Println(addr)

			r.Ready(ist.SeqNo(first))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			final := r.Finished()
			logger.Info("joiner session finished", log.SeqNo("final_seqno", int64(final)))
			return nil
		},
	}
	cmd.Flags().Int64Var(&first, "first", 1, "first seqno the joiner needs applied")
	cmd.Flags().Int64Var(&last, "last", 0, "last seqno the donor is expected to stream")
	cmd.Flags().StringVar(&sourceID, "source-id", uuid.NewString(), "joiner identifier logged by the donor")
	return cmd
}

func newDonorCmd() *cobra.Command {
	var peer string
	var first, last, preloadStart int64
	cmd := &cobra.Command{
		Use:   "donor",
		Short: "run one outbound IST session, supervised by an asyncsender.Map, against a joiner",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger().Named("asyncsender")
			log.SetupGlobal(logger)

			cfg := loadConfig()
			cache := newMemCache(demoEntries(ist.SeqNo(first), ist.SeqNo(last)))
			m := asyncsender.New(cache, asyncsender.WithLog(logger), asyncsender.WithKeepKeys(cfg.KeepKeys))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := m.Run(ctx, peer, ist.SeqNo(first), ist.SeqNo(last), ist.SeqNo(preloadStart), version); err != nil {
				return fmt.Errorf("run: %w", err)
			}

			<-ctx.Done()
			m.Cancel()
			logger.Info("donor session map drained")
			return nil
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "joiner address, e.g. tcp://127.0.0.1:5001 (required)")
	cmd.Flags().Int64Var(&first, "first", 1, "first seqno to stream")
	cmd.Flags().Int64Var(&last, "last", 0, "last seqno to stream")
	cmd.Flags().Int64Var(&preloadStart, "preload-start", 0, "seqno at/after which write-sets are marked preload-only")
	cmd.MarkFlagRequired("peer")
	return cmd
}

// demoEntries fabricates a contiguous run of write-sets for the donor demo
// cache; a real deployment wires gcache.Cache to the storage engine
// instead.
func demoEntries(first, last ist.SeqNo) []ist.WriteSetAction {
	if first > last {
		return nil
	}
	out := make([]ist.WriteSetAction, 0, int(last-first+1))
	for s := first; s <= last; s++ {
		out = append(out, ist.WriteSetAction{SeqNoG: s, Kind: ist.ActionWriteSet, Buf: []byte("demo")})
	}
	return out
}

func main() {
	root := &cobra.Command{
		Use:   "istctl",
		Short: "demonstrate an IST donor/joiner session",
	}
	bindCommonFlags(root)
	root.AddCommand(newJoinerCmd(), newDonorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
