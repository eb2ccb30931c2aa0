// Package estimate derives an advisory processing-time estimate for
// text-mode requests from the shape of the input. The estimate only drives
// progress-bar fill while the server has not yet reported progress; actual
// completion always comes from the job's status payloads, never from here.
package estimate

import "regexp"

// Reference constants for the duration heuristic.
const (
	BaseSeconds    = 5
	PerUnitSeconds = 15

	// FillCap keeps the advisory bar from falsely reaching 100% before the
	// real terminal signal arrives.
	FillCap = 95
)

// A coordination marker separates two addresses in free text: the word
// "and" (case-insensitive) or a literal ampersand.
var conjunctionRe = regexp.MustCompile(`(?i)\band\b|&`)

// Units counts the address units suggested by the input's coordination
// markers: occurrences+1 when any marker is present, else 1.
func Units(text string) int {
	occ := len(conjunctionRe.FindAllString(text, -1))
	if occ == 0 {
		return 1
	}
	return occ + 1
}

// Seconds returns the estimated processing duration for the input. Pure
// function, no I/O.
func Seconds(text string) int {
	return BaseSeconds + Units(text)*PerUnitSeconds
}
