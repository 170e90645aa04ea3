package main

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/arachne-crawler/arachne/internal/crawler"
)

// defaultExtraction is the built-in page-processing routine: a compact
// snapshot of the rendered page. Library consumers replace it with
// their own crawler.ExtractionFunc; the CLI keeps crawls useful out of
// the box.
func defaultExtraction(ctx context.Context, pc *crawler.PageContext) (any, error) {
	html, err := pc.Page.HTML(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"url":   pc.Request.URL,
		"title": strings.TrimSpace(doc.Find("title").First().Text()),
		"links": doc.Find("a[href]").Length(),
	}
	if pc.Response != nil {
		payload["statusCode"] = pc.Response.StatusCode
		if pc.Response.FinalURL != "" && pc.Response.FinalURL != pc.Request.URL {
			payload["finalUrl"] = pc.Response.FinalURL
		}
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		payload["description"] = strings.TrimSpace(desc)
	}
	return payload, nil
}
