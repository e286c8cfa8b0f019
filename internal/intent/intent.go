// Package intent labels a raw query with a coarse intent using keyword
// heuristics. The label is reported alongside answers; the pipeline does not
// branch on it.
package intent

import "strings"

// Intent is one of QA, Recommend or Conversational.
type Intent string

const (
	// QA is a factual question about the corpus. It is the default.
	QA Intent = "qa"
	// Recommend asks for similar or suggested titles.
	Recommend Intent = "recommend"
	// Conversational is small talk.
	Conversational Intent = "conversational"
)

// Keyword lists are matched as lowercase substrings, so "like" also fires
// inside "likely" and "hi" inside "this". Recommend is checked first.
var (
	recommendKeywords      = []string{"recommend", "suggest", "similar", "like", "more like"}
	conversationalKeywords = []string{"hello", "hi", "how are you", "tell me a story", "chat"}
)

// Classify returns the intent of text. It never fails: empty or unmatched
// text is QA.
func Classify(text string) Intent {
	t := strings.ToLower(text)
	if containsAny(t, recommendKeywords) {
		return Recommend
	}
	if containsAny(t, conversationalKeywords) {
		return Conversational
	}
	return QA
}

// ClassifyValue classifies v when it is a string and returns QA otherwise.
func ClassifyValue(v any) Intent {
	s, ok := v.(string)
	if !ok {
		return QA
	}
	return Classify(s)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
