package reverse

import (
	"context"

	"github.com/cuongbtq/truthlens/internal/domain"
)

// Mock returns fixed results for local development
type Mock struct{}

func (Mock) Name() string { return "mock" }

func (Mock) Search(context.Context, Query) ([]domain.SearchResult, error) {
	first, second := "2024-03-10", "2024-05-22"
	return []domain.SearchResult{
		{
			URL:   "https://example.com/original-photo",
			Title: "Possible original source found",
			Date:  &first,
		},
		{
			URL:   "https://socialmedia.example.com/post/123",
			Title: "Shared on social media",
			Date:  &second,
		},
	}, nil
}
