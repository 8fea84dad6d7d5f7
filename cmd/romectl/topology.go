package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var topologyFormat string

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Export the chassis, blades, ports and their mappings",
	Long: `Reads the port table of every controller in the address and prints the
exported topology. Only ports of the addressed matrix are listed; connected
ports carry the address of the port they map to.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			chassis, err := s.adapter.GetTopology(ctx)
			if err != nil {
				return err
			}

			switch topologyFormat {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(chassis)
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(chassis)
			default:
				return fmt.Errorf("unknown format %q", topologyFormat)
			}
		})
	},
}

func init() {
	topologyCmd.Flags().StringVarP(&topologyFormat, "output", "o", "yaml", "Output format: yaml or json")
	rootCmd.AddCommand(topologyCmd)
}
