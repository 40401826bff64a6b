package main

import (
	"fmt"
	"time"

	"github.com/graham/backend/internal/infrastructure/auth"
	"github.com/graham/backend/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <userId>",
		Short: "Mint a bearer token for local testing",
		Long: `Sign a short lived token for userId with the configured jwt.secret.

Production tokens come from the identity provider; this command refuses to
run when app.env is production.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to mint tokens in production")
			}
			token, err := auth.NewJWTService(cfg.JWT).IssueToken(args[0], ttl)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{"userId": args[0], "token": token})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
