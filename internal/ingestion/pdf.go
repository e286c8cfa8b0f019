package ingestion

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// loadPDF returns one source per page of the PDF at path that has
// extractable text. Source.Page and the "page" metadata are 0-based, so
// chunk keys read "<rel>:<page>:<index>".
func loadPDF(path, rel string) (sources []Source, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	// The reader panics on malformed object streams.
	defer func() {
		if p := recover(); p != nil {
			sources, err = nil, fmt.Errorf("parsing %s: %v", path, p)
		}
	}()

	total := r.NumPage()
	name := filepath.ToSlash(rel)
	for n := 1; n <= total; n++ {
		page := r.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("reading %s page %d: %w", path, n, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		meta := InferFileMetadata(rel, text)
		meta["page"] = n - 1
		meta["total_pages"] = total
		sources = append(sources, Source{
			Name:     name,
			Page:     n - 1,
			Text:     text,
			Metadata: meta,
		})
	}
	return sources, nil
}
