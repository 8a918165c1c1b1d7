package content

import "testing"

func TestExtractLinksFromHTML(t *testing.T) {
	raw := `<html><body><a href="/a">First</a><a href="https://example.com/b">Second</a><a>No href</a></body></html>`

	links := ExtractLinksFromHTML(raw, "https://example.com")
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[0].URL != "/a" || links[0].Text != "First" || links[0].BaseURL != "https://example.com" {
		t.Errorf("unexpected first link: %+v", links[0])
	}
	if links[1].URL != "https://example.com/b" || links[1].Text != "Second" {
		t.Errorf("unexpected second link: %+v", links[1])
	}
}

func TestExtractLinksFromHTMLNoAnchors(t *testing.T) {
	links := ExtractLinksFromHTML(`<html><body><p>no links here</p></body></html>`, "")
	if len(links) != 0 {
		t.Errorf("expected no links, got %d", len(links))
	}
}

func TestExtractImagesFromHTML(t *testing.T) {
	raw := `<html><body><img src="/cat.png" alt="a cat"><img src="/dog.png"><img></body></html>`

	images := ExtractImagesFromHTML(raw)
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if images[0].Src != "/cat.png" || images[0].Alt != "a cat" {
		t.Errorf("unexpected first image: %+v", images[0])
	}
	if images[1].Src != "/dog.png" || images[1].Alt != "" {
		t.Errorf("unexpected second image: %+v", images[1])
	}
}

func TestExtractLinksFromHTMLMalformed(t *testing.T) {
	// x/net/html is forgiving of malformed input; this should not panic
	// and should simply find what it can.
	links := ExtractLinksFromHTML(`<a href="/x">unterminated`, "")
	if len(links) != 1 {
		t.Errorf("expected 1 link from malformed input, got %d", len(links))
	}
}
