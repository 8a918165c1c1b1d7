package content

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/corvidlabs/helmsman/internal/types"
)

// attr returns the value of the named attribute on n, or "" if absent.
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// textContent concatenates all text node descendants of n.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// ExtractLinksFromHTML walks raw HTML with x/net/html and returns every
// anchor carrying an href. Used as a fallback when a CDP-driven element
// query (rod) comes back empty — some pages build their link markup in a
// way the live DOM selector misses but a static parse of the response body
// still catches.
func ExtractLinksFromHTML(rawHTML, baseURL string) []types.Link {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	var links []types.Link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); href != "" {
				links = append(links, types.Link{
					URL:     href,
					Text:    strings.TrimSpace(textContent(n)),
					BaseURL: baseURL,
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

// ExtractImagesFromHTML walks raw HTML with x/net/html and returns every
// img carrying a src, the same fallback role as ExtractLinksFromHTML.
func ExtractImagesFromHTML(rawHTML string) []types.Image {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	var images []types.Image
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			if src := attr(n, "src"); src != "" {
				images = append(images, types.Image{Src: src, Alt: attr(n, "alt")})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return images
}
