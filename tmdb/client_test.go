package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ryanbradynd05/go-tmdb"
)

type fakeAPI struct {
	searchCalls int
	showCalls   int
	seasonCalls int

	search *SearchPage
	show   *tmdb.TV
	season *tmdb.TvSeason
	err    error
}

func (f *fakeAPI) SearchTvShows(ctx context.Context, query string, options map[string]string) (*SearchPage, error) {
	f.searchCalls++
	return f.search, f.err
}

func (f *fakeAPI) GetTvInfo(id int, options map[string]string) (*tmdb.TV, error) {
	f.showCalls++
	return f.show, f.err
}

func (f *fakeAPI) GetTvSeasonInfo(showID, seasonID int, options map[string]string) (*tmdb.TvSeason, error) {
	f.seasonCalls++
	return f.season, f.err
}

func decode[T any](t *testing.T, raw string) *T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return &v
}

func TestSearchMapsResults(t *testing.T) {
	api := &fakeAPI{search: decode[SearchPage](t, `{
		"page": 1,
		"results": [
			{"id": 1396, "name": "Breaking Bad", "overview": "A chemistry teacher turns to crime.", "poster_path": "/bb.jpg", "first_air_date": "2008-01-20"},
			{"id": 7, "name": "Undated"}
		]
	}`)}
	c := NewWithAPI(api, Options{})

	got, err := c.Search(context.Background(), "breaking")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []SearchResult{
		{ID: 1396, Name: "Breaking Bad", Overview: "A chemistry teacher turns to crime.", PosterPath: "/bb.jpg", FirstAirDate: "2008-01-20", Year: "2008"},
		{ID: 7, Name: "Undated", Year: "Unknown"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search mismatch (-want +got):\n%s", diff)
	}
}

func TestShowIsCached(t *testing.T) {
	api := &fakeAPI{show: decode[tmdb.TV](t, `{
		"id": 1396,
		"name": "Breaking Bad",
		"overview": "Chemistry.",
		"poster_path": "/bb.jpg",
		"first_air_date": "2008-01-20",
		"seasons": [
			{"season_number": 0, "name": "Specials", "episode_count": 3, "air_date": "2009-02-17"},
			{"season_number": 1, "name": "Book One: Water", "overview": "Aang wakes up.", "episode_count": 7, "air_date": "2008-01-20", "poster_path": "/s1.jpg"}
		]
	}`)}
	c := NewWithAPI(api, Options{})
	ctx := context.Background()

	first, err := c.Show(ctx, 1396)
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	second, err := c.Show(ctx, 1396)
	if err != nil {
		t.Fatalf("Show second: %v", err)
	}
	if api.showCalls != 1 {
		t.Errorf("expected 1 API call, got %d", api.showCalls)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached show differs:\n%s", diff)
	}
	if first.Year != "2008" || first.Name != "Breaking Bad" {
		t.Errorf("unexpected show: %+v", first)
	}
	if len(first.Seasons) != 2 {
		t.Fatalf("expected 2 seasons, got %d", len(first.Seasons))
	}
	if first.Seasons[0].Name != "Specials" || first.Seasons[1].Name != "Book One: Water" {
		t.Errorf("season names should come from the source: %+v", first.Seasons)
	}
	if first.Seasons[1].Overview != "Aang wakes up." {
		t.Errorf("season overview = %q", first.Seasons[1].Overview)
	}
	if first.Seasons[1].EpisodeCount != 7 {
		t.Errorf("EpisodeCount = %d, want 7", first.Seasons[1].EpisodeCount)
	}
}

func TestSeasonKeepsSourceOrder(t *testing.T) {
	api := &fakeAPI{season: decode[tmdb.TvSeason](t, `{
		"id": 3572,
		"name": "Season 1",
		"season_number": 1,
		"episodes": [
			{"episode_number": 1, "name": "Pilot", "still_path": "/p.jpg"},
			{"episode_number": 2, "name": "Cat's in the Bag..."},
			{"episode_number": 3, "name": ""}
		]
	}`)}
	c := NewWithAPI(api, Options{})

	s, err := c.Season(context.Background(), 1396, 1)
	if err != nil {
		t.Fatalf("Season: %v", err)
	}
	if len(s.Episodes) != 3 {
		t.Fatalf("expected 3 episodes, got %d", len(s.Episodes))
	}
	for i, ep := range s.Episodes {
		if ep.EpisodeNumber != i+1 {
			t.Errorf("episode %d has number %d", i, ep.EpisodeNumber)
		}
	}
	if s.Episodes[0].StillPath != "/p.jpg" || s.Episodes[1].StillPath != "" {
		t.Errorf("unexpected still paths: %+v", s.Episodes)
	}
}

func TestErrorsAreMapped(t *testing.T) {
	cases := []struct {
		msg  string
		want error
	}{
		{"status 404: The resource you requested could not be found.", ErrNotFound},
		{"401 Unauthorized", ErrUnauthorized},
		{"429 too many requests", ErrRateLimited},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			c := NewWithAPI(&fakeAPI{err: errors.New(tc.msg)}, Options{})
			_, err := c.Show(context.Background(), 1)
			if !errors.Is(err, tc.want) {
				t.Errorf("errors.Is(%v, %v) = false", err, tc.want)
			}
			var te *Error
			if !errors.As(err, &te) {
				t.Errorf("expected *Error, got %T", err)
			}
		})
	}
}

func TestNilResponsesAreNotFound(t *testing.T) {
	c := NewWithAPI(&fakeAPI{}, Options{})
	if _, err := c.Show(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Show: expected ErrNotFound, got %v", err)
	}
	if _, err := c.Season(context.Background(), 1, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Season: expected ErrNotFound, got %v", err)
	}
}

func TestYearOf(t *testing.T) {
	cases := map[string]string{
		"2008-01-20": "2008",
		"1999":       "1999",
		"":           "Unknown",
		"abcd-01-01": "Unknown",
		"20":         "Unknown",
	}
	for in, want := range cases {
		if got := YearOf(in); got != want {
			t.Errorf("YearOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRateLimiterBlocksUntilWindowOpens(t *testing.T) {
	rl := newRateLimiter(2, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("third request should wait for the window, elapsed %v", elapsed)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	rl := newRateLimiter(1, time.Hour)
	if err := rl.wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
