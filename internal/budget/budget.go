// Package budget estimates token counts for prompts and context passages.
// Backends use different tokenizers, so it uses a conservative character
// heuristic: 1 token ≈ 4 characters of English prose.
package budget

import (
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default budget for assembled retrieval
	// context. It leaves room for the prompt template and the answer on
	// 8k-context models.
	DefaultMaxContextTokens = 6000

	// minTruncateTokens is the smallest remainder worth filling with a
	// truncated passage.
	minTruncateTokens = 100
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs,
// counting role, content and a small per-message overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Truncate shortens s to roughly maxTokens, cutting at the last sentence
// end inside the limit when there is one. The cut never splits a UTF-8
// sequence. It returns "" when maxTokens is below the smallest useful
// remainder.
func Truncate(s string, maxTokens int) string {
	if Estimate(s) <= maxTokens {
		return s
	}
	if maxTokens < minTruncateTokens {
		return ""
	}

	end := maxTokens * charsPerToken
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	cut := s[:end]
	if i := strings.LastIndexAny(cut, ".!?\n"); i > len(cut)/2 {
		cut = cut[:i+1]
	}
	return strings.TrimSpace(cut)
}

// Fit returns the longest prefix of passages whose estimated size, including
// one separator between neighbours, stays within maxTokens. When the next
// passage does not fit but enough budget remains, a truncated copy of it is
// appended. A non-positive maxTokens means no limit.
func Fit(passages []string, sep string, maxTokens int) []string {
	if maxTokens <= 0 {
		return passages
	}

	out := make([]string, 0, len(passages))
	used := 0
	for _, p := range passages {
		cost := Estimate(p)
		if len(out) > 0 {
			cost += Estimate(sep)
		}
		if used+cost <= maxTokens {
			out = append(out, p)
			used += cost
			continue
		}

		remaining := maxTokens - used
		if len(out) > 0 {
			remaining -= Estimate(sep)
		}
		if t := Truncate(p, remaining); t != "" {
			out = append(out, t)
		}
		break
	}
	return out
}
