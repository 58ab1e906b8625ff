package reverse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/truthlens/internal/domain"
)

// DefaultMaxResults caps the merged result list
const DefaultMaxResults = 5

// Query describes the image being looked up
type Query struct {
	Filename  string
	Camera    *string
	DateTaken *string
	Image     []byte
}

// Provider is one reverse image search backend
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) ([]domain.SearchResult, error)
}

// Searcher queries its providers in order and merges their results
type Searcher struct {
	providers  []Provider
	maxResults int
	logger     *slog.Logger
}

// NewSearcher creates a searcher over the given providers
func NewSearcher(providers []Provider, maxResults int, logger *slog.Logger) *Searcher {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{providers: providers, maxResults: maxResults, logger: logger}
}

// Search returns results deduplicated by URL. A failing provider is skipped;
// an error is returned only when every provider failed.
func (s *Searcher) Search(ctx context.Context, q Query) ([]domain.SearchResult, error) {
	results := make([]domain.SearchResult, 0, s.maxResults)
	seen := make(map[string]bool)

	var errs []error
	for _, p := range s.providers {
		if len(results) >= s.maxResults {
			break
		}

		found, err := p.Search(ctx, q)
		if err != nil {
			s.logger.Warn("Reverse search provider failed",
				slog.String("provider", p.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		for _, r := range found {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			results = append(results, r)
			if len(results) >= s.maxResults {
				break
			}
		}
	}

	if len(s.providers) > 0 && len(errs) == len(s.providers) {
		return nil, errors.Join(errs...)
	}
	return results, nil
}
