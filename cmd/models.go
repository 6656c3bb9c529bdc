package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ollama-proxy/internal/config"
	"ollama-proxy/internal/provider"
	providerfactory "ollama-proxy/internal/provider/factory"
)

func newModelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the proxy advertises",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			registry := provider.NewRegistry()
			if err := providerfactory.RegisterConfiguredProviders(cfg, registry); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tUPSTREAM\tPARAMETERS")
			for _, m := range registry.Models() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, m.Model, m.Details.ParameterSize)
			}
			return w.Flush()
		},
	}
}
