package renamer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/maxgarvey/show_renamer/tmdb"
)

type fakeSource struct {
	show      tmdb.Show
	showErr   error
	seasons   map[int]tmdb.Season
	seasonErr error
}

func (f *fakeSource) Show(ctx context.Context, id int) (tmdb.Show, error) {
	return f.show, f.showErr
}

func (f *fakeSource) Season(ctx context.Context, showID, season int) (tmdb.Season, error) {
	if f.seasonErr != nil {
		return tmdb.Season{}, f.seasonErr
	}
	return f.seasons[season], nil
}

type fakeImages struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (f *fakeImages) Download(ctx context.Context, ref, dest string) (bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ref)
	f.mu.Unlock()
	if ref == "" {
		return false, nil
	}
	if f.fail {
		return false, errors.New("image host down")
	}
	return true, os.WriteFile(dest, []byte(ref), 0o644)
}

func (f *fakeImages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recorder struct {
	renames []string
	seasons []int
}

func (r *recorder) Renamed(season, episode int, oldPath, newPath string) {
	r.renames = append(r.renames, filepath.Base(newPath))
}

func (r *recorder) SeasonDone(season int, folder string, stats Stats, err error) {
	r.seasons = append(r.seasons, season)
}

func seasonWith(titles ...string) tmdb.Season {
	s := tmdb.Season{SeasonNumber: 1}
	for i, title := range titles {
		s.Episodes = append(s.Episodes, tmdb.Episode{
			EpisodeNumber: i + 1,
			Name:          title,
			StillPath:     "/still" + string(rune('a'+i)) + ".jpg",
		})
	}
	return s
}

func newTestProcessor(src Source, images ImageFetcher) (*Processor, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Processor{
		Source: src,
		Images: images,
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	}, &buf
}

func readNames(t *testing.T, dir string) []string {
	t.Helper()
	files, err := ListVideoFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}
