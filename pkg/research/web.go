package research

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/monitor"
	"github.com/go-go-golems/mangiafuoco/pkg/security"
)

const (
	// DefaultSearchURL is the HTML (no-JS) DuckDuckGo endpoint.
	DefaultSearchURL = "https://html.duckduckgo.com/html/"
	// DefaultMaxPages bounds how many pages one search-and-extract visits.
	DefaultMaxPages = 5
	// DefaultNumResults is the search hit count when the caller gives none.
	DefaultNumResults = 10
	// DefaultTimeout bounds one HTTP fetch.
	DefaultTimeout = 30 * time.Second

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	// minContentBlock filters boilerplate fragments out of extraction.
	minContentBlock = 20
	// maxLinks caps the links returned per page.
	maxLinks = 20
	// maxLinkText drops navigation elements with very long link text.
	maxLinkText = 100
)

// WebResearcher searches the web and extracts page content. It keeps
// the most recently navigated page so extraction can run as a
// separate tool call, mirroring a browse session.
type WebResearcher struct {
	mu         sync.Mutex
	httpClient *http.Client
	searchURL  string
	userAgent  string
	maxPages   int
	monitor    *monitor.Monitor

	// allowLocalNetworks permits http and private-range targets, for
	// tests and self-hosted search endpoints.
	allowLocalNetworks bool

	current    *goquery.Document
	currentURL string
}

type Option func(*WebResearcher)

func WithHTTPClient(client *http.Client) Option {
	return func(w *WebResearcher) {
		w.httpClient = client
	}
}

func WithSearchURL(rawURL string) Option {
	return func(w *WebResearcher) {
		w.searchURL = rawURL
	}
}

func WithMaxPages(n int) Option {
	return func(w *WebResearcher) {
		w.maxPages = n
	}
}

// WithMonitor wires search, visit and extraction activity into the
// task monitor.
func WithMonitor(m *monitor.Monitor) Option {
	return func(w *WebResearcher) {
		w.monitor = m
	}
}

func WithAllowLocalNetworks() Option {
	return func(w *WebResearcher) {
		w.allowLocalNetworks = true
	}
}

func NewWebResearcher(options ...Option) *WebResearcher {
	w := &WebResearcher{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		searchURL:  DefaultSearchURL,
		userAgent:  defaultUserAgent,
		maxPages:   DefaultMaxPages,
	}
	for _, o := range options {
		o(w)
	}
	return w
}

func (w *WebResearcher) validateURL(rawURL string) error {
	if w.allowLocalNetworks {
		return security.ValidateOutboundURL(rawURL, security.OutboundURLOptions{
			AllowHTTP:          true,
			AllowLocalNetworks: true,
		})
	}
	return security.ValidateFetchURL(rawURL)
}

func (w *WebResearcher) fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := w.validateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.httpClient.Do(req) // #nosec G704 - URL is validated above
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page")
	}
	// goquery's Text() would include script bodies, which rendered text
	// never shows.
	doc.Find("script, style, noscript").Remove()
	return doc, nil
}

// WebSearch queries the search endpoint and returns up to numResults
// hits (DefaultNumResults when numResults <= 0).
func (w *WebResearcher) WebSearch(ctx context.Context, query string, numResults int) (*SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		w.logActivity(monitor.ActivitySearch, "Web search with empty query", map[string]interface{}{
			"query": query,
		}, false)
		return nil, errors.New("empty search query")
	}
	if numResults <= 0 {
		numResults = DefaultNumResults
	}

	searchURL := w.searchURL + "?q=" + url.QueryEscape(query)
	doc, err := w.fetch(ctx, searchURL)
	if err != nil {
		w.logActivity(monitor.ActivityError, "Web search failed for: "+query, map[string]interface{}{
			"query": query,
			"error": err.Error(),
		}, false)
		return nil, errors.Wrapf(err, "search failed for %q", query)
	}

	results := parseSearchResults(doc, numResults)

	if w.monitor != nil {
		w.monitor.LogSearch(query, len(results))
	}
	log.Debug().Str("query", query).Int("results", len(results)).Msg("web search completed")

	return &SearchResponse{
		Query:        query,
		Results:      results,
		TotalResults: len(results),
	}, nil
}

// parseSearchResults walks the DuckDuckGo HTML result list.
func parseSearchResults(doc *goquery.Document, limit int) []SearchResult {
	results := []SearchResult{}
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		anchor := sel.Find("a.result__a").First()
		href, ok := anchor.Attr("href")
		if !ok {
			return true
		}
		title := strings.TrimSpace(anchor.Text())
		if title == "" {
			return true
		}

		results = append(results, SearchResult{
			URL:     decodeResultURL(href),
			Title:   title,
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
		})
		return len(results) < limit
	})
	return results
}

// decodeResultURL unwraps the redirect DuckDuckGo puts around result
// links (/l/?uddg=<escaped target>).
func decodeResultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(u.Path, "/") {
		return "https://duckduckgo.com" + href
	}
	return href
}

// NavigateTo fetches a page and makes it the current document.
func (w *WebResearcher) NavigateTo(ctx context.Context, rawURL string) error {
	doc, err := w.fetch(ctx, rawURL)

	if w.monitor != nil {
		w.monitor.LogPageVisit(rawURL, err == nil)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to navigate to %s", rawURL)
	}

	w.mu.Lock()
	w.current = doc
	w.currentURL = rawURL
	w.mu.Unlock()

	log.Debug().Str("url", rawURL).Msg("navigated")
	return nil
}

// ExtractContent pulls title, text blocks and links from the current
// page. NavigateTo must have succeeded first.
func (w *WebResearcher) ExtractContent(ctx context.Context) (*PageExtract, error) {
	w.mu.Lock()
	doc := w.current
	currentURL := w.currentURL
	w.mu.Unlock()

	if doc == nil {
		return nil, errors.New("no page loaded: navigate to a URL first")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	extract := &PageExtract{
		URL:         currentURL,
		ExtractedAt: time.Now(),
	}

	doc.Find("h1, h2, h3, title").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			extract.Title = t
			return false
		}
		return true
	})

	blocks := []string{}
	doc.Find("p, article, main, div[class*='content'], div[class*='text']").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if len(text) > minContentBlock {
			blocks = append(blocks, text)
		}
	})
	extract.Content = strings.Join(blocks, "\n\n")

	base, baseErr := url.Parse(currentURL)
	links := []Link{}
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		text := strings.TrimSpace(sel.Text())
		if href == "" || text == "" || len(text) >= maxLinkText {
			return true
		}
		if baseErr == nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		links = append(links, Link{URL: href, Text: text})
		return len(links) < maxLinks
	})
	extract.Links = links

	if w.monitor != nil {
		w.monitor.LogExtraction(currentURL, len(extract.Content))
	}
	log.Debug().
		Str("url", currentURL).
		Int("content_length", len(extract.Content)).
		Int("links", len(links)).
		Msg("content extracted")

	return extract, nil
}

// SearchAndExtract searches, then visits hits in order until maxPages
// pages yield content (DefaultMaxPages when maxPages <= 0). Pages
// that fail to load or carry no text are skipped.
func (w *WebResearcher) SearchAndExtract(ctx context.Context, query string, maxPages int) ([]Page, error) {
	if maxPages <= 0 {
		maxPages = w.maxPages
	}

	search, err := w.WebSearch(ctx, query, maxPages*3)
	if err != nil {
		return nil, err
	}

	pages := []Page{}
	for _, result := range search.Results {
		if len(pages) >= maxPages {
			break
		}
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		if err := w.NavigateTo(ctx, result.URL); err != nil {
			log.Debug().Str("url", result.URL).Err(err).Msg("skipping unreachable result")
			continue
		}
		extract, err := w.ExtractContent(ctx)
		if err != nil || extract.Content == "" {
			log.Debug().Str("url", result.URL).Msg("skipping result without content")
			continue
		}

		title := extract.Title
		if title == "" {
			title = result.Title
		}
		pages = append(pages, Page{
			URL:     result.URL,
			Title:   title,
			Content: extract.Content,
			Query:   query,
		})
	}

	log.Info().
		Str("query", query).
		Int("extracted", len(pages)).
		Int("hits", len(search.Results)).
		Msg("search and extract completed")

	return pages, nil
}

func (w *WebResearcher) logActivity(typ monitor.ActivityType, description string, details map[string]interface{}, success bool) {
	if w.monitor == nil {
		return
	}
	w.monitor.LogActivity(typ, description, details, success)
}
