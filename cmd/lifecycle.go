package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStartCmd(opts *globalOptions) *cobra.Command {
	var noTargets bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Create or bind the load balancer and register current targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.rec.Start(ctx); err != nil {
				return err
			}
			if !noTargets {
				if err := a.rec.Reload(ctx); err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), a.rec.Hostname())
			return nil
		},
	}

	cmd.Flags().BoolVar(&noTargets, "no-targets", false, "Skip registering targets after start")
	return cmd
}

func newStopCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Delete the load balancer this tool created or bound",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.rec.Stop(ctx)
		},
	}
}

func newReloadCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Synchronize registered targets with current membership",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.rec.Reload(ctx)
		},
	}
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the named load balancer regardless of lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.rec.DeleteLoadBalancer(ctx)
		},
	}
}
