// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models the endpoint offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, err := a.endpoint(cmd)
			if err != nil {
				return err
			}
			models, err := a.client.ListModels(cmd.Context(), endpoint)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Current string   `json:"current"`
					Models  []string `json:"models"`
				}{endpoint.Model, models})
			}

			if len(models) == 0 {
				fmt.Fprintln(out, "The endpoint reported no models.")
				return nil
			}
			for _, m := range models {
				if m == endpoint.Model {
					fmt.Fprintf(out, "%s %s\n", m, SuccessStyle.Render("(current)"))
					continue
				}
				fmt.Fprintln(out, m)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}
