package ec2

// Instance is the subset of an EC2 instance the membership sources need.
type Instance struct {
	InstanceID       string
	Name             string
	State            string
	AvailabilityZone string
}
