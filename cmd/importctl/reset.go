package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/shopimport/internal/admin"
	"github.com/JonMunkholm/shopimport/internal/application"
)

func newResetCmd(c *cli) *cobra.Command {
	var (
		resources []string
		yes       bool
	)

	cmd := &cobra.Command{
		Use:     "reset",
		Short:   "Delete all items of resources",
		Example: `  importctl reset --resource product --resource product/lists/type --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes data; confirm with --yes")
			}

			app, err := application.Open(cmd.Context(), c.cfg, application.Options{Logger: c.logger})
			if err != nil {
				return err
			}
			defer app.Close()

			r := &admin.Resetter{Managers: app.Env.Managers}
			deleted, err := r.ResetAll(cmd.Context(), resources...)
			for _, resource := range resources {
				if n, ok := deleted[resource]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d deleted\n", resource, n)
				}
			}
			return err
		},
	}

	cmd.Flags().StringArrayVar(&resources, "resource", nil, "Resource to reset, e.g. product (repeatable, required)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}
