package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/shopimport/internal/application"
	"github.com/JonMunkholm/shopimport/internal/core"
)

func newChainsCmd(c *cli) *cobra.Command {
	var domains []string

	cmd := &cobra.Command{
		Use:   "chains",
		Short: "Validate the configured processor chains",
		Long: `Builds the processors configured for each domain without importing
anything and reports configuration errors. Exits non-zero if any chain is
invalid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.Open(cmd.Context(), c.cfg, application.Options{Memory: true, Logger: c.logger})
			if err != nil {
				return err
			}
			defer app.Close()

			if len(domains) == 0 {
				domains = app.Tree.Keys("")
			}

			importer := app.Importer()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOMAIN\tFORMAT\tSTATUS\tPROCESSORS")

			invalid := 0
			for _, dom := range domains {
				for _, kind := range []core.Kind{core.KindCSV, core.KindXML} {
					if _, ok := app.Tree.Get(dom + "/" + string(kind)); !ok {
						continue
					}
					status := "ok"
					if err := importer.Validate(dom, kind); err != nil {
						status = err.Error()
						invalid++
					}
					var names string
					if kind == core.KindCSV {
						names = strings.Join(core.ChainNames(app.Tree, dom), ", ")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", dom, kind, status, names)
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if invalid > 0 {
				return fmt.Errorf("%d invalid processor chain(s)", invalid)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&domains, "domain", nil, "Domains to validate (default: all configured)")
	return cmd
}

func newProcessorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "processors",
		Short: "List the registered processors",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FORMAT\tNAME")
			for _, kind := range []core.Kind{core.KindCSV, core.KindXML} {
				for _, name := range core.Names(kind) {
					fmt.Fprintf(tw, "%s\t%s\n", kind, name)
				}
			}
			return tw.Flush()
		},
	}
}
