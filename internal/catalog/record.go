// Package catalog talks to the external movie catalog service and implements
// lexical retrieval over the records it returns.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one movie as returned by the catalog. Only the fields used for
// matching and ingestion are typed; Raw keeps the full decoded document and
// is what callers see as the record's metadata.
type Record struct {
	ID     string
	Title  string
	Genres []string
	Cast   []string
	Plot   string
	Raw    map[string]any
}

// RecordFromMap builds a Record from a decoded JSON object. List fields that
// arrive as scalars become one-element lists of their string form.
func RecordFromMap(m map[string]any) Record {
	return Record{
		ID:     idString(m["_id"], m["id"]),
		Title:  stringify(m["title"]),
		Genres: stringList(m["genres"]),
		Cast:   stringList(m["cast"]),
		Plot:   stringify(m["plot"]),
		Raw:    m,
	}
}

// SearchText is the lowercased text a lexical query is matched against:
// title, genres and cast separated by single spaces.
func (r Record) SearchText() string {
	return strings.ToLower(strings.Join([]string{
		r.Title,
		strings.Join(r.Genres, " "),
		strings.Join(r.Cast, " "),
	}, " "))
}

// Rating returns the raw imdb.rating value, or nil when absent.
func (r Record) Rating() any {
	imdb, ok := r.Raw["imdb"].(map[string]any)
	if !ok {
		return nil
	}
	return imdb["rating"]
}

// idString accepts plain ids as well as extended-JSON {"$oid": "..."} ids.
func idString(values ...any) string {
	for _, v := range values {
		switch id := v.(type) {
		case nil:
			continue
		case map[string]any:
			if oid, ok := id["$oid"].(string); ok {
				return oid
			}
		default:
			if s := stringify(id); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringList(v any) []string {
	switch list := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, stringify(item))
		}
		return out
	case []string:
		return list
	default:
		return []string{stringify(list)}
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return fmt.Sprintf("%g", s)
	default:
		return fmt.Sprint(s)
	}
}
