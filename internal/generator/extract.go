package generator

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"
)

// Extractor pulls answer text out of one kind of backend response. ok is
// false when the response is not of the kind it understands.
type Extractor struct {
	Name    string
	Extract func(resp any) (text string, ok bool)
}

// jsonTextPaths are tried in order against JSON-shaped responses. Only
// non-empty string values count, so an object at "candidates.0.content"
// falls through to the Gemini REST parts path and an empty "content" falls
// through to "text".
var jsonTextPaths = []string{
	"text",
	"output.text",
	"candidates.0.content",
	"candidates.0.text",
	"outputs.0.content",
	"outputs.0.text",
	"candidates.0.content.parts.0.text",
	"choices.0.message.content",
	"choices.0.text",
	"response",
}

// jsonItemPaths name the first-item objects whose raw JSON is returned when
// none of jsonTextPaths yields text.
var jsonItemPaths = []string{
	"candidates.0",
	"outputs.0",
}

// DefaultExtractors is the order in which response shapes are recognised.
var DefaultExtractors = []Extractor{
	{Name: "chat-message", Extract: extractMessage},
	{Name: "text-accessor", Extract: extractTextAccessor},
	{Name: "plain-string", Extract: extractString},
	{Name: "json-fields", Extract: extractJSON},
}

// ExtractText runs extractors in order and falls back to the stringified
// response when none recognises it.
func ExtractText(resp any, extractors []Extractor) string {
	for _, e := range extractors {
		if text, ok := e.Extract(resp); ok {
			return text
		}
	}
	return stringify(resp)
}

func extractMessage(resp any) (string, bool) {
	msg, ok := resp.(*schema.Message)
	if !ok || msg == nil {
		return "", false
	}
	return msg.Content, true
}

func extractTextAccessor(resp any) (string, bool) {
	t, ok := resp.(interface{ Text() string })
	if !ok {
		return "", false
	}
	return t.Text(), true
}

func extractString(resp any) (string, bool) {
	s, ok := resp.(string)
	return s, ok
}

func extractJSON(resp any) (string, bool) {
	raw, ok := jsonBytes(resp)
	if !ok {
		return "", false
	}
	for _, path := range jsonTextPaths {
		if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.Str != "" {
			return v.Str, true
		}
	}
	for _, path := range jsonItemPaths {
		if v := gjson.GetBytes(raw, path); v.IsObject() {
			return v.Raw, true
		}
	}
	return "", false
}

// jsonBytes returns resp as JSON when it is raw JSON or a generic map/slice.
func jsonBytes(resp any) ([]byte, bool) {
	switch r := resp.(type) {
	case json.RawMessage:
		return r, gjson.ValidBytes(r)
	case []byte:
		return r, gjson.ValidBytes(r)
	case map[string]any, []any:
		b, err := json.Marshal(r)
		return b, err == nil
	default:
		return nil, false
	}
}

func stringify(resp any) string {
	switch r := resp.(type) {
	case nil:
		return ""
	case json.RawMessage:
		return string(r)
	case []byte:
		return string(r)
	case fmt.Stringer:
		return r.String()
	}
	if b, err := json.Marshal(resp); err == nil {
		return string(b)
	}
	return fmt.Sprint(resp)
}
