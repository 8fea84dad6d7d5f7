package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var portCmd = &cobra.Command{
	Use:   "port NAME",
	Short: "Show the sub-ports of a logical port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			subPorts, err := s.adapter.PortStatus(ctx, args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "HOST\tSUB-PORT\tNAME\tLOCKED\tENABLED\tCONNECTED\tPEER")
			for _, sp := range subPorts {
				peer := sp.ConnectedTo.String()
				if peer == "" {
					peer = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					sp.Host, sp.Ref(), sp.Name(), yesNo(sp.Locked), yesNo(sp.Enabled), yesNo(sp.Connected), peer)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(portCmd)
}
