package corpus

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Page is one unit of source text carrying its page label.
type Page struct {
	Label string
	Text  string
}

type parsedPage struct {
	PageLabel string `json:"pageLabel"`
	Text      string `json:"text"`
}

type parsedObject struct {
	Text  string       `json:"text"`
	Pages []parsedPage `json:"pages"`
}

// ExtractPages splits raw object content into labeled pages. Normalized
// JSON documents carry an explicit pages array; plain text uses form-feed
// page breaks when present, otherwise the whole object is one page.
func ExtractPages(data []byte, uri string) []Page {
	if strings.HasSuffix(strings.ToLower(uri), ".json") {
		if pages, ok := extractJSONPages(data); ok {
			return pages
		}
	}

	text := string(data)
	if !strings.Contains(text, "\f") {
		return []Page{{Text: text}}
	}

	parts := strings.Split(text, "\f")
	pages := make([]Page, 0, len(parts))
	for i, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		pages = append(pages, Page{
			Label: strconv.Itoa(i + 1),
			Text:  part,
		})
	}
	return pages
}

func extractJSONPages(data []byte) ([]Page, bool) {
	var obj parsedObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}

	if len(obj.Pages) > 0 {
		pages := make([]Page, 0, len(obj.Pages))
		for i, p := range obj.Pages {
			label := p.PageLabel
			if label == "" {
				label = strconv.Itoa(i + 1)
			}
			pages = append(pages, Page{Label: label, Text: p.Text})
		}
		return pages, true
	}

	if obj.Text != "" {
		return []Page{{Text: obj.Text}}, true
	}
	return nil, false
}
