package research

import (
	"context"
	"time"
)

// SearchResult is one search hit.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SearchResponse is the transcript-facing payload of a web search.
type SearchResponse struct {
	Query        string         `json:"query"`
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
}

// Link is one outgoing link found on an extracted page.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// PageExtract is the content pulled from the currently loaded page.
type PageExtract struct {
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Links       []Link    `json:"links"`
	URL         string    `json:"url"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Page is one successfully extracted search hit.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Query   string `json:"query,omitempty"`
}

// Searcher is what a research phase needs from the web collaborator.
type Searcher interface {
	WebSearch(ctx context.Context, query string, numResults int) (*SearchResponse, error)
	SearchAndExtract(ctx context.Context, query string, maxPages int) ([]Page, error)
}
