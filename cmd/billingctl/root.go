package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/graham/backend/internal/bootstrap"
	"github.com/graham/backend/internal/infrastructure/config"
	"github.com/graham/backend/internal/infrastructure/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	output   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operate the Graham usage ledger and billing runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("unsupported output %q, use text or json", opts.output)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text|json")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newReconcileCmd(opts))
	rootCmd.AddCommand(newUsageCmd(opts))
	rootCmd.AddCommand(newInvoicesCmd(opts))
	rootCmd.AddCommand(newTokenCmd(opts))

	return rootCmd
}

// openContainer loads configuration and wires the services against the
// configured database and Redis
func openContainer(opts *rootOptions) (*bootstrap.Container, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	log, err := logger.New(&logger.Config{Level: opts.logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	container, err := bootstrap.New(bootstrap.Config{Config: cfg}, log)
	if err != nil {
		return nil, nil, err
	}
	return container, log, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
