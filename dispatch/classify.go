// Package dispatch implements the executor interaction logic of §4.4: agent
// resolution, spawn-error classification, retry/backoff, and deadletter.
package dispatch

import "regexp"

// Class is the spawn-failure classification bucket.
type Class string

const (
	ClassPermanent   Class = "permanent"
	ClassRateLimited Class = "rate_limited"
	ClassTransient   Class = "transient"
)

var (
	permanentPattern = regexp.MustCompile(`(?i)agent not found|agent_not_found|no such agent|agent deregistered|permission denied|forbidden|unauthorized`)
	rateLimitPattern = regexp.MustCompile(`(?i)rate[ _-]?limit|too many requests|429|throttled|quota exceeded`)
)

// Classify buckets a spawnSession error message per §4.4. Unmatched errors
// (including connection-refused, gateway-timeout, and unrecognized strings)
// are transient.
func Classify(errMsg string) Class {
	switch {
	case permanentPattern.MatchString(errMsg):
		return ClassPermanent
	case rateLimitPattern.MatchString(errMsg):
		return ClassRateLimited
	default:
		return ClassTransient
	}
}
