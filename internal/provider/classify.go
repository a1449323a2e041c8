package provider

import "strings"

// classifyBody inspects a 200-OK response body for the error markers both
// upstream APIs are known to embed instead of using a non-2xx status, per
// SPEC_FULL.md §4.3 step 4. It returns the matched classification, or
// classNone if the body looks like a legitimate payload.
type bodyClass int

const (
	classNone bodyClass = iota
	classInvalidAPIKey
	classInvalidAPICall
	classRateLimited
)

var (
	invalidKeyMarkers  = []string{"invalid api key", "apikey is invalid", "invalid authentication"}
	invalidCallMarkers = []string{"invalid api call", "invalid request"}
	rateLimitMarkers   = []string{"rate limit", "frequency", "note", "thank you for using alpha vantage"}
)

func classifyBody(body string) bodyClass {
	lower := strings.ToLower(body)

	for _, m := range invalidKeyMarkers {
		if strings.Contains(lower, m) {
			return classInvalidAPIKey
		}
	}
	for _, m := range invalidCallMarkers {
		if strings.Contains(lower, m) {
			return classInvalidAPICall
		}
	}
	for _, m := range rateLimitMarkers {
		if strings.Contains(lower, m) {
			return classRateLimited
		}
	}
	return classNone
}

// classifyEnvelope checks the dedicated error/info fields premium-style
// wire formats wrap around an otherwise-200 response ("Error Message",
// "Note", "Information"), independent of body-text scanning.
func classifyEnvelope(errorMessage, note, information string) bodyClass {
	if errorMessage != "" {
		return classifyBody(errorMessage)
	}
	if note != "" {
		return classRateLimited
	}
	if information != "" {
		return classifyBody(information)
	}
	return classNone
}
