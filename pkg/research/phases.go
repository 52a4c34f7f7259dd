package research

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// PhaseConcurrency is how many queries of one research phase run at
// the same time. The queries are independent, so this only bounds
// pressure on the search endpoint.
const PhaseConcurrency = 3

// PhaseResult is the outcome of one query within a phase. Err is set
// when that query failed; other queries are unaffected.
type PhaseResult struct {
	Query string
	Pages []Page
	Err   error
}

// RunPhase issues the phase's queries with bounded parallelism and
// returns per-query results in input order. A failed query records
// its error instead of cancelling its siblings.
func RunPhase(ctx context.Context, searcher Searcher, queries []string, maxPages int) []PhaseResult {
	results := make([]PhaseResult, len(queries))

	eg := errgroup.Group{}
	eg.SetLimit(PhaseConcurrency)

	for i, query := range queries {
		i, query := i, query
		eg.Go(func() error {
			pages, err := searcher.SearchAndExtract(ctx, query, maxPages)
			if err != nil {
				log.Warn().Str("query", query).Err(err).Msg("phase query failed")
			}
			results[i] = PhaseResult{Query: query, Pages: pages, Err: err}
			return nil
		})
	}

	// Goroutines only record errors, so Wait cannot fail.
	_ = eg.Wait()
	return results
}

// CollectPages concatenates the pages of all successful queries,
// preserving phase order.
func CollectPages(results []PhaseResult) []Page {
	pages := []Page{}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		pages = append(pages, r.Pages...)
	}
	return pages
}
