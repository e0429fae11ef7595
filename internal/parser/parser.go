package parser

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// ExtractLinks returns the distinct href targets of anchors and alternate
// links in an HTML document, in document order.
func ExtractLinks(content []byte) []string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil
	}

	links := make([]string, 0)
	visited := make(map[string]bool)

	add := func(href string) {
		href = strings.TrimSpace(href)
		if skipHref(href) || visited[href] {
			return
		}
		visited[href] = true
		links = append(links, href)
	}

	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if href, ok := attr(n, "href"); ok {
					add(href)
				}
			case "link":
				rel, _ := attr(n, "rel")
				if rel == "alternate" || rel == "canonical" {
					if href, ok := attr(n, "href"); ok {
						add(href)
					}
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}

	extract(doc)
	return links
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// skipHref filters out fragments and non-navigational schemes
func skipHref(href string) bool {
	return href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:")
}
