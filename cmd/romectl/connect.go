package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nanoncore/nano-rome/vendors/rome"
)

var (
	connectUni     bool
	disconnectBidi bool
)

var connectCmd = &cobra.Command{
	Use:   "connect SRC DST",
	Short: "Cross-connect two ports",
	Long: `Connects SRC to DST in both directions. With --uni only SRC's transmit side
is wired to DST's receive side; this is refused on ports that span two
controllers. A pair that is already connected is left untouched.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			if err := s.adapter.ConnectPorts(ctx, args[0], args[1], !connectUni); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s connected to %s\n", args[0], args[1])
			return nil
		})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect SRC DST [SRC DST]...",
	Short: "Remove the connection between port pairs",
	Long: `Removes the connections the device currently shows between each pair. With
--bidi both directions of every pair are removed explicitly.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%2 != 0 {
			return fmt.Errorf("expected port pairs, got %d argument(s)", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs := make([]rome.PortPair, 0, len(args)/2)
		for i := 0; i < len(args); i += 2 {
			pairs = append(pairs, rome.PortPair{Src: args[i], Dst: args[i+1]})
		}
		return withSession(cmd, func(ctx context.Context, s *session) error {
			if err := s.adapter.DisconnectPorts(ctx, pairs, disconnectBidi); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d pair(s) disconnected\n", len(pairs))
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear PORT...",
	Short: "Remove every connection touching the given ports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			if err := s.adapter.ClearPorts(ctx, args); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d port(s) cleared\n", len(args))
			return nil
		})
	},
}

func init() {
	connectCmd.Flags().BoolVar(&connectUni, "uni", false, "Unidirectional (tap) connection")
	disconnectCmd.Flags().BoolVar(&disconnectBidi, "bidi", false, "Remove both directions of every pair")
	rootCmd.AddCommand(connectCmd, disconnectCmd, clearCmd)
}
