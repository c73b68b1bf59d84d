// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markusbegerow/local-llm-chat/internal/secrets"
)

func newSecretCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the endpoint auth token",
		Long: `Manage the bearer token sent to the model endpoint.

The token is stored AES-256-GCM encrypted in ~/.llmchat/secrets.db. Set
` + PassphraseEnv + ` to derive the key from a passphrase instead of the
generated key file.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set",
			Short: "Store the auth token (read from the terminal or stdin)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requirePersistentSecrets(); err != nil {
					return err
				}
				token, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Auth token: ")
				if err != nil {
					return err
				}
				if token == "" {
					return fmt.Errorf("no token given; use llmchat secret delete to remove it")
				}
				if err := a.secrets.Set(cmd.Context(), secrets.AuthTokenKey, token); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Auth token saved."))
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Remove the stored auth token",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requirePersistentSecrets(); err != nil {
					return err
				}
				if err := a.secrets.Set(cmd.Context(), secrets.AuthTokenKey, ""); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Auth token removed.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether an auth token is stored",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.requirePersistentSecrets(); err != nil {
					return err
				}
				token, ok, err := a.secrets.Get(cmd.Context(), secrets.AuthTokenKey)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !ok {
					fmt.Fprintln(out, "Auth token: not set")
					return nil
				}
				fmt.Fprintf(out, "Auth token: set (%d characters)\n", len([]rune(token)))
				return nil
			},
		},
	)
	return cmd
}

func (a *app) requirePersistentSecrets() error {
	if a.secretsErr != nil {
		return fmt.Errorf("secret store unavailable: %w", a.secretsErr)
	}
	return nil
}
