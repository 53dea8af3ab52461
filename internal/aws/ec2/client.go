package ec2

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type EC2API interface {
	DescribeInstances(ctx context.Context, params *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error)
	DescribeAvailabilityZones(ctx context.Context, params *awsec2.DescribeAvailabilityZonesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeAvailabilityZonesOutput, error)
}

type Client struct {
	api EC2API
}

func NewClient(api EC2API) *Client {
	return &Client{api: api}
}

// AvailableZones returns the names of the region's zones in the "available"
// state, sorted.
func (c *Client) AvailableZones(ctx context.Context) ([]string, error) {
	out, err := c.api.DescribeAvailabilityZones(ctx, &awsec2.DescribeAvailabilityZonesInput{
		Filters: []types.Filter{{
			Name:   aws.String("state"),
			Values: []string{string(types.AvailabilityZoneStateAvailable)},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("DescribeAvailabilityZones: %w", err)
	}

	var zones []string
	for _, z := range out.AvailabilityZones {
		if z.State != types.AvailabilityZoneStateAvailable {
			continue
		}
		if name := aws.ToString(z.ZoneName); name != "" {
			zones = append(zones, name)
		}
	}
	slices.Sort(zones)
	return zones, nil
}

// InstancesByTags returns running instances carrying every key=value pair in
// tags, ordered by instance id.
func (c *Client) InstancesByTags(ctx context.Context, tags map[string]string) ([]Instance, error) {
	filters := []types.Filter{{
		Name:   aws.String("instance-state-name"),
		Values: []string{string(types.InstanceStateNameRunning)},
	}}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		filters = append(filters, types.Filter{
			Name:   aws.String("tag:" + k),
			Values: []string{tags[k]},
		})
	}

	var instances []Instance
	var nextToken *string

	for {
		out, err := c.api.DescribeInstances(ctx, &awsec2.DescribeInstancesInput{
			Filters:   filters,
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("DescribeInstances: %w", err)
		}

		for _, reservation := range out.Reservations {
			for _, inst := range reservation.Instances {
				if inst.State != nil && inst.State.Name != types.InstanceStateNameRunning {
					continue
				}
				name := ""
				for _, tag := range inst.Tags {
					if aws.ToString(tag.Key) == "Name" {
						name = aws.ToString(tag.Value)
						break
					}
				}
				var state, zone string
				if inst.State != nil {
					state = string(inst.State.Name)
				}
				if inst.Placement != nil {
					zone = aws.ToString(inst.Placement.AvailabilityZone)
				}
				instances = append(instances, Instance{
					InstanceID:       aws.ToString(inst.InstanceId),
					Name:             name,
					State:            state,
					AvailabilityZone: zone,
				})
			}
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	sort.Slice(instances, func(i, j int) bool { return instances[i].InstanceID < instances[j].InstanceID })
	return instances, nil
}
