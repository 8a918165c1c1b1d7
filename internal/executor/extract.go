package executor

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/corvidlabs/helmsman/internal/content"
	"github.com/corvidlabs/helmsman/internal/session"
	"github.com/corvidlabs/helmsman/internal/types"
)

// contentPipelineConfig holds the content-pipeline toggles. extractText
// always uses defaultContentPipelineConfig (chunking and deduplication on,
// chunk confidence threshold 0.7); the matching config.Config settings are
// not applied to it.
type contentPipelineConfig struct {
	SemanticChunkingEnabled  bool
	ChunkConfidenceThreshold float64
	DeduplicationEnabled     bool
}

func defaultContentPipelineConfig() contentPipelineConfig {
	return contentPipelineConfig{
		SemanticChunkingEnabled:  true,
		ChunkConfidenceThreshold: 0.7,
		DeduplicationEnabled:     true,
	}
}

// sharedDeduplicator is process-wide: the same body fetched by two
// different sessions in quick succession is still the same content.
var sharedDeduplicator = content.NewDeduplicator(1 * time.Hour)

// Extract pulls req.Type content from the session's current page. Text (the
// default type) runs through the content pipeline: quality scoring, CAPTCHA
// detection, type detection, structured extraction, deduplication, and
// semantic chunking; html, table, links and images are returned as extracted.
func (e *Executor) Extract(ctx context.Context, sess *session.Session, req types.ExtractRequest) (*types.ExtractResult, error) {
	if err := sess.CheckQuota("requests"); err != nil {
		return nil, err
	}
	sess.RecordRequest()

	timeout, err := validateTimeout(req.Timeout)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, release := sess.AcquirePageWithRelease()
	if page == nil {
		return nil, types.NewBrowserOperationError("extract", types.ErrSessionPageNil)
	}
	defer release()

	p := page.Context(ctx)

	extractType := req.Type
	if extractType == "" {
		extractType = types.ExtractText
	}

	switch extractType {
	case types.ExtractHTML:
		html, err := extractHTML(p, req.Selector)
		if err != nil {
			sess.RecordError(err)
			return nil, types.NewBrowserOperationError("extract", err)
		}
		return &types.ExtractResult{Content: html}, nil

	case types.ExtractTable:
		table, err := extractTable(p, req.Selector)
		if err != nil {
			sess.RecordError(err)
			return nil, types.NewBrowserOperationError("extract", err)
		}
		return &types.ExtractResult{Content: table, Data: table}, nil

	case types.ExtractLinks:
		links, err := extractLinks(p, req.Selector)
		if err != nil {
			sess.RecordError(err)
			return nil, types.NewBrowserOperationError("extract", err)
		}
		return &types.ExtractResult{Content: links, Data: links}, nil

	case types.ExtractImages:
		images, err := extractImages(p, req.Selector)
		if err != nil {
			sess.RecordError(err)
			return nil, types.NewBrowserOperationError("extract", err)
		}
		return &types.ExtractResult{Content: images, Data: images}, nil

	default:
		return e.extractText(p)
	}
}

func (e *Executor) extractText(p *rod.Page) (*types.ExtractResult, error) {
	body, err := p.Element("body")
	if err != nil {
		return nil, types.NewBrowserOperationError("extract", err)
	}
	raw, err := body.Text()
	if err != nil {
		return nil, types.NewBrowserOperationError("extract", err)
	}

	text := content.Normalize(raw)
	cfg := defaultContentPipelineConfig()

	probe := func(selector string) bool {
		has, _, err := p.Has(selector)
		return err == nil && has
	}

	captcha := e.detectCaptcha(text, probe)
	quality := content.Quality(text)
	kind, kindScore := content.DetectType(text)
	structured := content.StructuredExtract(text, kind)

	result := &types.ExtractResult{
		Content:   text,
		Quality:   &quality,
		Captcha:   &captcha,
		Kind:      kind,
		KindScore: kindScore,
		Data:      structured,
	}

	if cfg.DeduplicationEnabled {
		result.Duplicate = sharedDeduplicator.IsDuplicate(text)
	}

	if cfg.SemanticChunkingEnabled && quality.Meaningful {
		result.Chunks = content.ChunkContent(text, kind, cfg.ChunkConfidenceThreshold)
	}

	return result, nil
}

func extractHTML(p *rod.Page, selector string) (string, error) {
	if selector == "" {
		return p.HTML()
	}
	el, err := p.Element(selector)
	if err != nil {
		return "", err
	}
	return el.HTML()
}

func extractLinks(p *rod.Page, selector string) ([]types.Link, error) {
	sel := selector
	if sel == "" {
		sel = "a[href]"
	}
	elements, err := p.Elements(sel)
	if err != nil {
		return nil, err
	}

	info, _ := p.Info()
	baseURL := ""
	if info != nil {
		baseURL = info.URL
	}

	links := make([]types.Link, 0, len(elements))
	for _, el := range elements {
		href, err := el.Attribute("href")
		if err != nil || href == nil {
			continue
		}
		text, _ := el.Text()
		links = append(links, types.Link{URL: *href, Text: strings.TrimSpace(text), BaseURL: baseURL})
	}

	// Some pages assemble anchors in a way the live-DOM selector misses
	// (e.g. shadow DOM, script-mutated attributes mid-query). Fall back to
	// a static parse of the response body rather than reporting no links,
	// but only for the default selector — a caller-supplied selector that
	// legitimately matched nothing should stay empty.
	if len(links) == 0 && selector == "" {
		if rawHTML, err := p.HTML(); err == nil {
			links = content.ExtractLinksFromHTML(rawHTML, baseURL)
		}
	}

	return links, nil
}

func extractImages(p *rod.Page, selector string) ([]types.Image, error) {
	sel := selector
	if sel == "" {
		sel = "img[src]"
	}
	elements, err := p.Elements(sel)
	if err != nil {
		return nil, err
	}

	images := make([]types.Image, 0, len(elements))
	for _, el := range elements {
		src, err := el.Attribute("src")
		if err != nil || src == nil {
			continue
		}
		alt := ""
		if altAttr, err := el.Attribute("alt"); err == nil && altAttr != nil {
			alt = *altAttr
		}
		images = append(images, types.Image{Src: *src, Alt: alt})
	}

	if len(images) == 0 && selector == "" {
		if rawHTML, err := p.HTML(); err == nil {
			images = content.ExtractImagesFromHTML(rawHTML)
		}
	}

	return images, nil
}

func extractTable(p *rod.Page, selector string) (types.Table, error) {
	sel := selector
	if sel == "" {
		sel = "table"
	}
	tableEl, err := p.Element(sel)
	if err != nil {
		return types.Table{}, err
	}

	rowEls, err := tableEl.Elements("tr")
	if err != nil {
		return types.Table{}, err
	}

	var rows [][]string
	maxCols := 0
	for _, rowEl := range rowEls {
		cellEls, err := rowEl.Elements("td, th")
		if err != nil {
			continue
		}
		row := make([]string, 0, len(cellEls))
		for _, cellEl := range cellEls {
			text, _ := cellEl.Text()
			row = append(row, strings.TrimSpace(text))
		}
		if len(row) > maxCols {
			maxCols = len(row)
		}
		rows = append(rows, row)
	}

	return types.Table{Rows: rows, NumRows: len(rows), NumCols: maxCols}, nil
}
