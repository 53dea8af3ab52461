package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"tasnim.dev/elbctl/internal/lb"
)

// LoadConfig loads an AWS config with optional profile and region overrides.
func LoadConfig(ctx context.Context, profile, region string, extra ...func(*config.LoadOptions) error) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	opts = append(opts, extra...)

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// GetAccountID returns the AWS account ID for the given config.
// Returns empty string on error (non-fatal).
func GetAccountID(ctx context.Context, cfg aws.Config) string {
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return ""
	}
	return aws.ToString(out.Account)
}

// ResolveLocation builds an lb.Location from a profile and region. An empty
// region falls back to the one the shared config resolves for the profile.
func ResolveLocation(ctx context.Context, profile, region string) (lb.Location, error) {
	cfg, err := LoadConfig(ctx, profile, region)
	if err != nil {
		return lb.Location{}, err
	}
	if region == "" {
		region = cfg.Region
	}
	if region == "" {
		return lb.Location{}, &lb.InvalidLocationError{Reason: "no region configured (use --region or default_region)"}
	}
	return lb.Location{
		Provider: lb.ProviderAWS,
		Region:   region,
		Profile:  profile,
		Account:  GetAccountID(ctx, cfg),
	}, nil
}
