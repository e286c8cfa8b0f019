package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want Intent
	}{
		{"recommend keyword", "recommend something like Inception", Recommend},
		{"suggest", "Can you SUGGEST a thriller?", Recommend},
		{"similar", "movies similar to Heat", Recommend},
		{"greeting", "hello there", Conversational},
		{"story", "tell me a story about pirates", Conversational},
		{"plain question", "who is the CEO of Acme", QA},
		{"empty", "", QA},
		{"recommend beats conversational", "hello, recommend me a film", Recommend},
		{"substring match", "this plot is confusing", Conversational},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.text))
		})
	}
}

func TestClassifyValue_NonString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, QA, ClassifyValue(nil))
	assert.Equal(t, QA, ClassifyValue(42))
	assert.Equal(t, QA, ClassifyValue(map[string]any{"q": "recommend"}))
	assert.Equal(t, Recommend, ClassifyValue("something similar"))
}
