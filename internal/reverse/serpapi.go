package reverse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/truthlens/internal/domain"
)

const defaultSerpAPIURL = "https://serpapi.com/search.json"

// ErrEmptyQuery is returned when nothing usable can be searched for
var ErrEmptyQuery = errors.New("empty search query")

// SerpAPIConfig configures the SerpAPI provider
type SerpAPIConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxResults int
}

// SerpAPI searches Google Images through SerpAPI using the filename and
// camera metadata as the query
type SerpAPI struct {
	cfg    SerpAPIConfig
	http   *http.Client
	logger *slog.Logger
}

// NewSerpAPI creates a SerpAPI provider
func NewSerpAPI(cfg SerpAPIConfig, logger *slog.Logger) *SerpAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSerpAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SerpAPI{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (s *SerpAPI) Name() string { return "serpapi" }

type serpResponse struct {
	Error         string `json:"error"`
	ImagesResults []struct {
		Title     string `json:"title"`
		Link      string `json:"link"`
		Original  string `json:"original"`
		Thumbnail string `json:"thumbnail"`
		Date      string `json:"date"`
	} `json:"images_results"`
}

func (s *SerpAPI) Search(ctx context.Context, q Query) ([]domain.SearchResult, error) {
	query := BuildQuery(q)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	params := url.Values{}
	params.Set("engine", "google_images")
	params.Set("q", query)
	params.Set("api_key", s.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi http error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	s.logger.Debug("reverse.serpapi.response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("serpapi status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out serpResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode serpapi response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("serpapi: %s", out.Error)
	}

	results := make([]domain.SearchResult, 0, s.cfg.MaxResults)
	for _, r := range out.ImagesResults {
		if len(results) >= s.cfg.MaxResults {
			break
		}
		link := r.Link
		if link == "" {
			link = r.Original
		}
		if link == "" {
			continue
		}
		res := domain.SearchResult{URL: link, Title: r.Title, Thumbnail: r.Thumbnail}
		if r.Date != "" {
			date := r.Date
			res.Date = &date
		}
		results = append(results, res)
	}
	return results, nil
}

// BuildQuery turns the filename stem plus camera and capture date hints into
// a search string
func BuildQuery(q Query) string {
	stem := strings.TrimSuffix(filepath.Base(q.Filename), filepath.Ext(q.Filename))
	stem = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(stem)
	if stem == "." || stem == "/" {
		stem = ""
	}

	parts := strings.Fields(stem)
	if q.Camera != nil {
		parts = append(parts, strings.Fields(*q.Camera)...)
	}
	if q.DateTaken != nil && len(*q.DateTaken) >= 10 {
		// EXIF dates use colons: 2024:03:10 12:00:00
		parts = append(parts, strings.ReplaceAll((*q.DateTaken)[:10], ":", "-"))
	}
	return strings.Join(parts, " ")
}
