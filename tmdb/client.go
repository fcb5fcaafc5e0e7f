// Package tmdb is the metadata source: show search, show details and season
// episode lists from The Movie Database.
package tmdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/ryanbradynd05/go-tmdb"
)

// API is the metadata source the client wraps. Show and season lookups
// match *tmdb.TMDb.
type API interface {
	SearchTvShows(ctx context.Context, query string, options map[string]string) (*SearchPage, error)
	GetTvInfo(id int, options map[string]string) (*tmdb.TV, error)
	GetTvSeasonInfo(showID, seasonID int, options map[string]string) (*tmdb.TvSeason, error)
}

// Options configures a Client.
type Options struct {
	APIKey   string
	Language string
	CacheTTL time.Duration
	Timeout  time.Duration

	// Rate limit; zero values use 38 requests per 10 seconds.
	MaxRequests int
	Window      time.Duration
}

// Client fetches and caches show metadata. It is safe for concurrent use.
type Client struct {
	api      API
	cache    *cache.Cache
	limiter  *rateLimiter
	language string
}

// New returns a Client talking to the live TMDB API.
func New(opts Options) *Client {
	return NewWithAPI(&liveAPI{
		TMDb:   tmdb.Init(tmdb.Config{APIKey: opts.APIKey}),
		search: newSearchClient(opts.APIKey, opts.Timeout),
	}, opts)
}

// NewWithAPI returns a Client backed by api.
func NewWithAPI(api API, opts Options) *Client {
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = 38
	}
	if opts.Window <= 0 {
		opts.Window = 10 * time.Second
	}
	return &Client{
		api:      api,
		cache:    cache.New(opts.CacheTTL, 10*time.Minute),
		limiter:  newRateLimiter(opts.MaxRequests, opts.Window),
		language: opts.Language,
	}
}

// Search looks up shows by name.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	key := fmt.Sprintf("search:%s:%s", c.language, strings.ToLower(query))
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]SearchResult), nil
	}
	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.api.SearchTvShows(ctx, query, c.options())
	if err != nil {
		return nil, mapError(err)
	}
	results := searchResults(res)
	c.cache.Set(key, results, cache.DefaultExpiration)
	return results, nil
}

// Show returns the details of one show, including its season list.
func (c *Client) Show(ctx context.Context, id int) (Show, error) {
	key := fmt.Sprintf("show:%s:%d", c.language, id)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(Show), nil
	}
	if err := c.limiter.wait(ctx); err != nil {
		return Show{}, err
	}
	tv, err := c.api.GetTvInfo(id, c.options())
	if err != nil {
		return Show{}, mapError(err)
	}
	if tv == nil {
		return Show{}, &Error{Code: CodeNotFound, Message: fmt.Sprintf("show %d not found", id)}
	}
	show := showFromTV(tv)
	c.cache.Set(key, show, cache.DefaultExpiration)
	return show, nil
}

// Season returns one season with its episodes in the order the source
// lists them.
func (c *Client) Season(ctx context.Context, showID, season int) (Season, error) {
	key := fmt.Sprintf("season:%s:%d:%d", c.language, showID, season)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(Season), nil
	}
	if err := c.limiter.wait(ctx); err != nil {
		return Season{}, err
	}
	s, err := c.api.GetTvSeasonInfo(showID, season, c.options())
	if err != nil {
		return Season{}, mapError(err)
	}
	if s == nil {
		return Season{}, &Error{Code: CodeNotFound, Message: fmt.Sprintf("season %d of show %d not found", season, showID)}
	}
	out := seasonFromTMDB(s)
	c.cache.Set(key, out, cache.DefaultExpiration)
	return out, nil
}

func (c *Client) options() map[string]string {
	return map[string]string{"language": c.language}
}

func searchResults(res *SearchPage) []SearchResult {
	if res == nil {
		return []SearchResult{}
	}
	out := make([]SearchResult, 0, len(res.Results))
	for _, r := range res.Results {
		out = append(out, SearchResult{
			ID:           r.ID,
			Name:         r.Name,
			Overview:     r.Overview,
			PosterPath:   r.PosterPath,
			FirstAirDate: r.FirstAirDate,
			Year:         YearOf(r.FirstAirDate),
		})
	}
	return out
}

func showFromTV(tv *tmdb.TV) Show {
	show := Show{
		ID:           tv.ID,
		Name:         tv.Name,
		Overview:     tv.Overview,
		PosterPath:   tv.PosterPath,
		FirstAirDate: tv.FirstAirDate,
		Year:         YearOf(tv.FirstAirDate),
		Seasons:      make([]SeasonSummary, 0, len(tv.Seasons)),
	}
	for _, s := range tv.Seasons {
		show.Seasons = append(show.Seasons, SeasonSummary{
			ID:           s.ID,
			SeasonNumber: s.SeasonNumber,
			Name:         s.Name,
			Overview:     s.Overview,
			EpisodeCount: s.EpisodeCount,
			AirDate:      s.AirDate,
			PosterPath:   s.PosterPath,
		})
	}
	return show
}

func seasonFromTMDB(s *tmdb.TvSeason) Season {
	season := Season{
		ID:           s.ID,
		Name:         s.Name,
		Overview:     s.Overview,
		AirDate:      s.AirDate,
		PosterPath:   s.PosterPath,
		SeasonNumber: s.SeasonNumber,
		Episodes:     make([]Episode, 0, len(s.Episodes)),
	}
	for _, e := range s.Episodes {
		season.Episodes = append(season.Episodes, Episode{
			ID:            e.ID,
			EpisodeNumber: e.EpisodeNumber,
			Name:          e.Name,
			Overview:      e.Overview,
			AirDate:       e.AirDate,
			StillPath:     e.StillPath,
		})
	}
	return season
}

// YearOf returns the four-digit year of an ISO date, or "Unknown".
func YearOf(date string) string {
	if len(date) >= 4 {
		if _, err := strconv.Atoi(date[:4]); err == nil {
			return date[:4]
		}
	}
	return "Unknown"
}
