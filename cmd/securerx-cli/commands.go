package main

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/securerx/go-securerx/node_api"
	"github.com/securerx/go-securerx/utils"
	"github.com/spf13/cobra"
	"github.com/ztrue/tracerr"
	"strconv"
	"time"
)

var (
	// ErrorChainInvalid is returned by the validate command when the node reports a broken chain
	ErrorChainInvalid = utils.NewRxError("CLI_CHAIN_INVALID", "the node chain does not validate")
	// ErrorInvalidIndex is returned by get-block when the index is not a non-negative integer
	ErrorInvalidIndex = utils.NewRxError("CLI_INVALID_INDEX", "block index must be a non-negative integer")
)

type cliOptions struct {
	nodeUrl    string
	timeout    time.Duration
	jsonOutput bool
}

func (o *cliOptions) client() *node_api.ApiClient {
	return node_api.NewApiClient(o.nodeUrl, &node_api.ClientOptions{Timeout: o.timeout, NodeId: "securerx-cli"})
}

func (o *cliOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return tracerr.Wrap(err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return tracerr.Wrap(err)
}

func newRootCmd() *cobra.Command {
	options := &cliOptions{}
	rootCmd := &cobra.Command{
		Use:           "securerx-cli",
		Short:         "Client for SecureRx ledger nodes",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       utils.Version,
	}
	rootCmd.PersistentFlags().StringVar(&options.nodeUrl, "node-url", "http://localhost:8080", "Node to talk to")
	rootCmd.PersistentFlags().DurationVar(&options.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&options.jsonOutput, "json", false, "Print raw JSON responses")

	rootCmd.AddCommand(healthCmd(options))
	rootCmd.AddCommand(issuePrescriptionCmd(options))
	rootCmd.AddCommand(getBlocksCmd(options))
	rootCmd.AddCommand(getBlockCmd(options))
	rootCmd.AddCommand(validateCmd(options))
	return rootCmd
}

func healthCmd(options *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the node is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := options.context(cmd)
			defer cancel()
			health, err := options.client().Health(ctx)
			if err != nil {
				return tracerr.Wrap(err)
			}
			if options.jsonOutput {
				return printJSON(cmd, health)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), renderHealth(health))
			return tracerr.Wrap(err)
		},
	}
}

func issuePrescriptionCmd(options *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-prescription <issuer-id> <subject-id> <payload>",
		Short: "Record a new signed prescription",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := options.context(cmd)
			defer cancel()
			response, err := options.client().SubmitPrescription(ctx, node_api.PrescriptionRequest{
				IssuerId:  args[0],
				SubjectId: args[1],
				Payload:   args[2],
			})
			if err != nil {
				return tracerr.Wrap(err)
			}
			if options.jsonOutput {
				return printJSON(cmd, response)
			}
			rendered, err := renderPrescription(response)
			if err != nil {
				return tracerr.Wrap(err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
			return tracerr.Wrap(err)
		},
	}
}

func getBlocksCmd(options *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get-blocks",
		Short: "List the whole chain of the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := options.context(cmd)
			defer cancel()
			blocks, err := options.client().GetBlocks(ctx)
			if err != nil {
				return tracerr.Wrap(err)
			}
			if options.jsonOutput {
				return printJSON(cmd, blocks)
			}
			rendered, err := renderBlocks(blocks)
			if err != nil {
				return tracerr.Wrap(err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
			return tracerr.Wrap(err)
		},
	}
}

func getBlockCmd(options *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get-block <index>",
		Short: "Show one block and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return tracerr.Wrap(ErrorInvalidIndex.AddDetails(args[0]))
			}
			ctx, cancel := options.context(cmd)
			defer cancel()
			block, err := options.client().GetBlock(ctx, index)
			if err != nil {
				return tracerr.Wrap(err)
			}
			if options.jsonOutput {
				return printJSON(cmd, block)
			}
			rendered, err := renderBlock(block)
			if err != nil {
				return tracerr.Wrap(err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
			return tracerr.Wrap(err)
		},
	}
}

func validateCmd(options *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Ask the node to validate its chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := options.context(cmd)
			defer cancel()
			validation, err := options.client().Validate(ctx)
			if err != nil {
				return tracerr.Wrap(err)
			}
			if options.jsonOutput {
				err = printJSON(cmd, validation)
			} else {
				_, err = fmt.Fprint(cmd.OutOrStdout(), renderValidation(validation))
			}
			if err != nil {
				return tracerr.Wrap(err)
			}
			if !validation.Valid {
				return tracerr.Wrap(ErrorChainInvalid.AddDetails(validation.Error))
			}
			return nil
		},
	}
}
