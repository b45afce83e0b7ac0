package update

import (
	"slices"
	"strings"
)

// Rule describes how a tool signals that it had nothing to do.
type Rule struct {
	// NoChangeExitCodes are exit statuses meaning "nothing to do". They win over text.
	NoChangeExitCodes []int
	// NoChangePhrases are case-insensitive substrings meaning "nothing to do".
	NoChangePhrases []string
	// ChangedPhrases, when set, must appear for the output to count as a change.
	ChangedPhrases []string
}

// WithPhrases returns a copy of the rule with extra no-change phrases.
func (r Rule) WithPhrases(phrases ...string) Rule {
	if len(phrases) == 0 {
		return r
	}

	out := r
	out.NoChangePhrases = append(slices.Clone(r.NoChangePhrases), phrases...)

	return out
}

// Classify turns a finished command into an Outcome.
//
// With strict set, a non-zero exit that is not listed in NoChangeExitCodes
// is Failed. Without it only the text decides, so a failed command whose
// output lacks a no-change phrase counts as Changed.
func Classify(rule Rule, output string, exitCode int, strict bool) Outcome {
	if slices.Contains(rule.NoChangeExitCodes, exitCode) {
		return NoChange
	}

	if strict && exitCode != 0 {
		return Failed
	}

	lower := strings.ToLower(output)

	for _, phrase := range rule.NoChangePhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return NoChange
		}
	}

	if len(rule.ChangedPhrases) == 0 {
		return Changed
	}

	for _, phrase := range rule.ChangedPhrases {
		if strings.Contains(output, phrase) {
			return Changed
		}
	}

	return NoChange
}
