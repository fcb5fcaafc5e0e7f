package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ryanbradynd05/go-tmdb"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// SearchPage is one page of /search/tv. go-tmdb's TvSearchResults has no
// overview, so search is decoded here.
type SearchPage struct {
	Page         int         `json:"page"`
	Results      []SearchHit `json:"results"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
}

type SearchHit struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	PosterPath   string `json:"poster_path"`
	FirstAirDate string `json:"first_air_date"`
}

// liveAPI serves show and season lookups through go-tmdb and search through
// searchClient.
type liveAPI struct {
	*tmdb.TMDb
	search *searchClient
}

func (a *liveAPI) SearchTvShows(ctx context.Context, query string, options map[string]string) (*SearchPage, error) {
	return a.search.searchTv(ctx, query, options)
}

type searchClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type apiStatus struct {
	Code    int    `json:"status_code"`
	Message string `json:"status_message"`
}

func (s *searchClient) searchTv(ctx context.Context, query string, options map[string]string) (*SearchPage, error) {
	q := url.Values{}
	q.Set("api_key", s.apiKey)
	q.Set("query", query)
	for _, k := range []string{"language", "page", "first_air_date_year"} {
		if v, ok := options[k]; ok {
			q.Set(k, v)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search/tv?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search tv: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var status apiStatus
		_ = json.Unmarshal(body, &status)
		if status.Message == "" {
			status.Message = resp.Status
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, status.Message)
	}
	var page SearchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &page, nil
}

func newSearchClient(apiKey string, timeout time.Duration) *searchClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &searchClient{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}
