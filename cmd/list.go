package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	awsclient "tasnim.dev/elbctl/internal/aws"
	"tasnim.dev/elbctl/internal/lb"
	"tasnim.dev/elbctl/internal/theme"
	"tasnim.dev/elbctl/internal/utils"
)

// lister is implemented by sessions that can enumerate load balancers.
type lister interface {
	ListLoadBalancers(ctx context.Context) ([]lb.ObservedState, error)
}

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List Classic Load Balancers in the region",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			profile, region := opts.cfg.Merge(opts.profile, opts.region)

			loc, err := awsclient.ResolveLocation(ctx, profile, region)
			if err != nil {
				return err
			}
			sess, err := awsclient.NewConnector().Connect(ctx, loc)
			if err != nil {
				return err
			}
			defer sess.Close()

			l, ok := sess.(lister)
			if !ok {
				return fmt.Errorf("listing load balancers is not supported for %s", loc)
			}
			all, err := l.ListLoadBalancers(ctx)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), renderList(loc, all))
			return nil
		},
	}
}

func renderList(loc lb.Location, all []lb.ObservedState) string {
	db := utils.NewDetailBuilder(34, theme.SectionStyle)
	db.Section(fmt.Sprintf("Load Balancers (%s, %d)", loc.RegionName(), len(all)))
	if len(all) == 0 {
		db.Row(theme.MutedStyle.Render("none"), "")
		return db.String()
	}
	for _, o := range all {
		db.Row(o.Name, o.DNSName)
	}
	return db.String()
}
