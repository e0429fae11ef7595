package parser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLInfo summarizes an HTML document served as a gopher leaf
type HTMLInfo struct {
	Title       string
	Description string
	Links       []string
}

// InspectHTML extracts the title, meta description and links of an HTML
// document. ok is false when content cannot be parsed.
func InspectHTML(content []byte) (info HTMLInfo, ok bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return HTMLInfo{}, false
	}

	info.Title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("meta").EachWithBreak(func(i int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if prop, exists := s.Attr("property"); exists && name == "" {
			name = prop
		}
		if name == "description" || name == "og:description" {
			info.Description, _ = s.Attr("content")
			return false
		}
		return true
	})

	info.Links = ExtractLinks(content)
	return info, true
}
