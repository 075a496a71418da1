// ABOUTME: "admin token" subcommand, mints a signed admin bearer token via auth.JWTVerifier.Generate

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/skillserver/internal/auth"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative helper commands",
	}
	cmd.AddCommand(newAdminTokenCommand())
	return cmd
}

func newAdminTokenCommand() *cobra.Command {
	var subject string
	var scopes []string
	var ttl time.Duration
	var secret string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed admin bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("admin token: --secret is required")
			}
			verifier := auth.NewJWTVerifier([]byte(secret))
			token, err := verifier.Generate(subject, scopes, ttl)
			if err != nil {
				return fmt.Errorf("admin token: generating token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject claim")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{"admin"}, "token scopes claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret (must match ADMIN_AUTH_TOKEN's verifier secret)")

	return cmd
}
