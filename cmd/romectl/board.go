package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the controller board: serial number, model and software version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			info, err := s.adapter.BoardInfo(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model:            %s\n", info.ModelName)
			fmt.Fprintf(out, "Serial number:    %s\n", info.SerialNumber)
			fmt.Fprintf(out, "Software version: %s\n", info.SoftwareVersion)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(boardCmd)
}
