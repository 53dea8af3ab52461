package utils

import "strings"

// ShortName extracts the last segment after "/" from an ARN or path, such as
// a certificate ARN or a Kubernetes providerID.
// Returns the input unchanged if no "/" is found.
func ShortName(arn string) string {
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}
