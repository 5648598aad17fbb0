package main

import (
	"context"
	"fmt"
	"github.com/securerx/go-securerx/config"
	"github.com/securerx/go-securerx/node"
	"github.com/securerx/go-securerx/utils"
	"github.com/spf13/cobra"
	"github.com/ztrue/tracerr"
	"os"
	"os/signal"
	"syscall"
)

var (
	configDir string
	nodeId    string
	apiAddr   string
	peers     []string
	logLevel  string
)

func addStartFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configDir, "config", ".", "Directory holding an optional securerx.yaml")
	cmd.Flags().StringVar(&nodeId, "node-id", "", "Node id, overrides NODE_ID")
	cmd.Flags().StringVar(&apiAddr, "api-addr", "", "HTTP API listen address, overrides API_ADDR")
	cmd.Flags().StringSliceVar(&peers, "peers", nil, "Peer addresses, overrides PEERS")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level, overrides LOG_LEVEL")
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "start",
		Short:        "Start the node (default command)",
		SilenceUsage: true,
		RunE:         runStart,
	}
	addStartFlags(cmd)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("securerx-node " + utils.Version)
		},
	}
}

func loadOptions(cmd *cobra.Command) (*node.InitializeOptions, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	flags := cmd.Flags()
	if flags.Changed("node-id") {
		cfg.NodeId = nodeId
	}
	if flags.Changed("api-addr") {
		cfg.ApiAddr = apiAddr
	}
	if flags.Changed("peers") {
		cfg.Peers = peers
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	options, err := cfg.NodeOptions()
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return options, nil
}

func runStart(cmd *cobra.Command, _ []string) error {
	options, err := loadOptions(cmd)
	if err != nil {
		return tracerr.Wrap(err)
	}
	state, err := node.Initialize(options)
	if err != nil {
		return tracerr.Wrap(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = state.Start(ctx)
	if err != nil {
		return tracerr.Wrap(err)
	}

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "Shutdown signal received, gracefully shutting down...")
	return tracerr.Wrap(state.Close())
}
