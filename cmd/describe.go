package cmd

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/containerd/errdefs"
	"github.com/spf13/cobra"

	awsclient "tasnim.dev/elbctl/internal/aws"
	"tasnim.dev/elbctl/internal/lb"
	"tasnim.dev/elbctl/internal/reconciler"
	"tasnim.dev/elbctl/internal/theme"
	"tasnim.dev/elbctl/internal/utils"
)

const labelWidth = 18

// status is the locally known lifecycle view of the reconciler.
type status struct {
	ID       string
	State    reconciler.State
	Name     string
	Account  string
	Region   string
	Hostname string
	Problems map[string]string
}

func newDescribeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Show lifecycle state and the live load balancer configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			st := status{
				ID:       a.rec.ID(),
				State:    a.rec.State(),
				Name:     a.cfg.LoadBalancer.Name,
				Account:  a.location.Account,
				Region:   a.location.Region,
				Hostname: a.rec.Hostname(),
			}
			if h, ok := a.rec.Handle(); ok {
				st.Name, st.Region = h.Name, h.Region
			}

			var obs *lb.ObservedState
			if st.Name != "" {
				loc := a.location
				loc.Region = st.Region
				obs, err = describeRemote(ctx, loc, st.Name)
				if err != nil && !errdefs.IsNotFound(err) {
					return err
				}
			}
			if a.rec.State() == reconciler.StateRunning {
				a.rec.Refresh(ctx)
			}
			st.Problems = a.sink.Problems()

			fmt.Fprint(cmd.OutOrStdout(), renderDescription(st, obs))
			return nil
		},
	}
}

func describeRemote(ctx context.Context, loc lb.Location, name string) (*lb.ObservedState, error) {
	sess, err := awsclient.NewConnector().Connect(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return sess.Describe(ctx, name)
}

// renderDescription formats the local status and, when present, the live
// load balancer. A nil obs renders as "not found".
func renderDescription(st status, obs *lb.ObservedState) string {
	db := utils.NewDetailBuilder(labelWidth, theme.SectionStyle)

	db.Section("Reconciler")
	db.Row("ID", st.ID)
	db.Row("State", theme.RenderStatus(string(st.State)))
	db.Row("Name", utils.OrDash(st.Name))
	db.Row("Account", utils.OrDash(st.Account))
	db.Row("Region", utils.OrDash(st.Region))
	db.Row("Hostname", utils.OrDash(st.Hostname))
	for _, key := range slices.Sorted(maps.Keys(st.Problems)) {
		db.Row("Problem ("+key+")", theme.ErrorStyle.Render(st.Problems[key]))
	}

	if st.Name == "" {
		return db.String()
	}

	db.Blank()
	db.Section("Load Balancer")
	if obs == nil {
		db.Row("Status", theme.MutedStyle.Render("not found"))
		return db.String()
	}
	db.Row("DNS Name", obs.DNSName)
	db.Row("Scheme", utils.OrDash(obs.Scheme))
	db.Row("VPC", utils.OrDash(obs.VPCID))
	db.Row("Hosted Zone", utils.OrDash(obs.CanonicalHostedZoneID))
	db.Row("Created", utils.TimeOrDash(obs.CreatedAt, utils.DateTime))

	db.Blank()
	db.Section("Placement")
	db.Row("Zones", utils.ListOrDash(obs.AvailabilityZones))
	db.Row("Subnets", utils.ListOrDash(obs.Subnets))
	db.Row("Security Groups", utils.ListOrDash(obs.SecurityGroups))

	db.Blank()
	db.Section("Listeners")
	listeners := make([]string, 0, len(obs.Listeners))
	for _, l := range obs.Listeners {
		s := utils.Endpoint(l.Protocol, l.Port) + " → " + utils.Endpoint(l.InstanceProtocol, l.InstancePort)
		if l.SSLCertificateID != "" {
			s += " (" + utils.ShortName(l.SSLCertificateID) + ")"
		}
		listeners = append(listeners, s)
	}
	db.Rows("Listener", listeners)

	db.Blank()
	db.Section("Health Check")
	if hc := obs.HealthCheck; hc != nil {
		db.Row("Target", hc.Target)
		db.Row("Interval", strconv.Itoa(int(hc.Interval))+"s")
		db.Row("Timeout", strconv.Itoa(int(hc.Timeout))+"s")
		db.Row("Thresholds", fmt.Sprintf("healthy %d / unhealthy %d", hc.HealthyThreshold, hc.UnhealthyThreshold))
	} else {
		db.Row("Target", utils.Dash)
	}

	db.Blank()
	db.Section("Targets")
	db.Rows("Instances", obs.Targets)

	return db.String()
}
