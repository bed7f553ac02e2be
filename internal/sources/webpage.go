package sources

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"git.home.luguber.info/inful/contentpipe/internal/config"
	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

// webpage scrapes an arbitrary listing page with configured CSS selectors.
// Selectors rot when the page changes layout; a selector matching nothing is
// reported as an error rather than an empty fetch so health tracking notices.
type webpage struct {
	name          string
	url           string
	limit         int
	itemSelector  string
	titleSelector string
	linkSelector  string
	client        *http.Client
}

func newWebpage(spec config.SourceSpec, client *http.Client) *webpage {
	limit := spec.Limit
	if limit <= 0 {
		limit = 25
	}
	return &webpage{
		name:          spec.Name,
		url:           spec.URL,
		limit:         limit,
		itemSelector:  spec.ItemSelector,
		titleSelector: spec.TitleSelector,
		linkSelector:  spec.LinkSelector,
		client:        client,
	}
}

func (w *webpage) Name() string { return w.name }

func (w *webpage) Fetch(ctx context.Context) ([]pipeline.DiscoveryItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return nil, fetchError(w.name, "create request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fetchError(w.name, "fetch page", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(w.name, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fetchError(w.name, "parse page", err)
	}

	base, err := url.Parse(w.url)
	if err != nil {
		return nil, fetchError(w.name, "parse base url", err)
	}

	var items []pipeline.DiscoveryItem
	doc.Find(w.itemSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(items) >= w.limit {
			return false
		}

		titleSel := sel
		if w.titleSelector != "" {
			titleSel = sel.Find(w.titleSelector).First()
		}
		title := NormalizeTitle(titleSel.Text())
		if title == "" {
			return true
		}

		linkSel := sel
		if w.linkSelector != "" {
			linkSel = sel.Find(w.linkSelector).First()
		}
		href, ok := linkSel.Attr("href")
		if !ok || href == "" {
			return true
		}
		link, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}

		items = append(items, pipeline.DiscoveryItem{
			Source:   w.name,
			SourceID: link.String(),
			Title:    title,
			URL:      link.String(),
			RawData:  map[string]any{"page": w.url},
		})
		return true
	})

	if len(items) == 0 {
		return nil, pipeerrors.Retryable(pipeerrors.CategorySource, pipeerrors.SeverityError,
			"selectors matched no items").
			WithContext("source", w.name).
			WithContext("item_selector", w.itemSelector)
	}
	return items, nil
}
