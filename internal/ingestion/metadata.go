package ingestion

import (
	"path/filepath"
	"strings"

	"github.com/54b3r/cinerag-go/internal/catalog"
)

// MovieMetadata returns the payload stored alongside every chunk of a catalog
// movie. The imdb sub-document is copied as-is so the reranker can read
// imdb.rating from retrieved chunks.
func MovieMetadata(rec catalog.Record) map[string]any {
	meta := map[string]any{
		"movie_id": rec.ID,
		"title":    rec.Title,
	}
	if len(rec.Genres) > 0 {
		genres := make([]any, len(rec.Genres))
		for i, g := range rec.Genres {
			genres[i] = g
		}
		meta["genres"] = genres
	}
	if imdb, ok := rec.Raw["imdb"].(map[string]any); ok {
		meta["imdb"] = imdb
	}
	return meta
}

// fileFormats maps supported extensions to the format label stored in metadata.
var fileFormats = map[string]string{
	".txt":      "text",
	".text":     "text",
	".md":       "markdown",
	".markdown": "markdown",
	".pdf":      "pdf",
}

// SupportedFile reports whether path has an extension the file loader reads.
func SupportedFile(path string) bool {
	_, ok := fileFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// InferFileMetadata derives best-effort metadata for a local document.
// The title comes from the first markdown heading when there is one, and
// otherwise from the file name with separators turned into spaces.
//
//	reviews/the_matrix.md  "# The Matrix (1999)"  -> title "The Matrix (1999)"
//	notes/heat-1995.txt                          -> title "heat 1995"
func InferFileMetadata(relPath, content string) map[string]any {
	ext := strings.ToLower(filepath.Ext(relPath))
	format, ok := fileFormats[ext]
	if !ok {
		format = "text"
	}

	title := ""
	if format == "markdown" {
		title = firstHeading(content)
	}
	if title == "" {
		base := strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))
		title = strings.Join(strings.FieldsFunc(base, func(r rune) bool {
			return r == '_' || r == '-' || r == '.'
		}), " ")
	}

	meta := map[string]any{
		"source": filepath.ToSlash(relPath),
		"title":  title,
		"format": format,
	}
	if dir := filepath.Dir(relPath); dir != "." {
		meta["collection"] = filepath.ToSlash(dir)
	}
	return meta
}

// firstHeading returns the text of the first "#"-style heading, or "".
func firstHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#") {
			continue
		}
		if h := strings.TrimSpace(strings.TrimLeft(line, "#")); h != "" {
			return h
		}
	}
	return ""
}
