package lb

import (
	"fmt"
	"unicode"
)

// ProviderAWS is the only provider the engine knows how to drive.
const ProviderAWS = "aws-ec2"

// Location is where the load balancer lives and which credentials reach it.
// Region may name an availability zone (e.g. "us-east-1a"); RegionName and
// Zone split that apart.
type Location struct {
	Provider string
	Region   string
	Profile  string
	Account  string
}

func (l Location) String() string {
	if l.Profile != "" {
		return fmt.Sprintf("%s:%s (profile %s)", l.Provider, l.Region, l.Profile)
	}
	return fmt.Sprintf("%s:%s", l.Provider, l.Region)
}

// IsAvailabilityZone reports whether the location names a single zone rather
// than a region. Zones end in a letter, regions in a digit.
func (l Location) IsAvailabilityZone() bool {
	if l.Region == "" {
		return false
	}
	r := rune(l.Region[len(l.Region)-1])
	return unicode.IsLetter(r)
}

// RegionName returns the region, stripping the zone letter if the location
// is an availability zone.
func (l Location) RegionName() string {
	if l.IsAvailabilityZone() {
		return l.Region[:len(l.Region)-1]
	}
	return l.Region
}

// Zone returns the availability zone, or "" when the location is a region.
func (l Location) Zone() string {
	if l.IsAvailabilityZone() {
		return l.Region
	}
	return ""
}

// InferLocation picks the single location a load balancer should be started
// in. An empty list falls back to def.
func InferLocation(locations []Location, def *Location) (Location, error) {
	if len(locations) == 0 {
		if def == nil {
			return Location{}, &InvalidLocationError{Reason: "no locations specified"}
		}
		locations = []Location{*def}
	}
	if len(locations) != 1 {
		return Location{}, &InvalidLocationError{Reason: fmt.Sprintf("ambiguous locations: %v", locations)}
	}
	loc := locations[0]
	if loc.Provider != ProviderAWS {
		return Location{}, &InvalidLocationError{
			Location: loc,
			Reason:   fmt.Sprintf("must be a %s location, but given provider %q", ProviderAWS, loc.Provider),
		}
	}
	if loc.Region == "" {
		return Location{}, &InvalidLocationError{Location: loc, Reason: "region is required"}
	}
	return loc, nil
}
