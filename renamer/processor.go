// Package renamer matches episode video files in season folders to
// metadata, renames them to a canonical scheme and fetches poster art.
package renamer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maxgarvey/show_renamer/tmdb"
)

var (
	ErrNoSeasonFolders = errors.New("no season folders found")
	ErrNoEpisodes      = errors.New("no episode data found")
	ErrTargetExists    = errors.New("rename target already exists")
	ErrInvalidStrategy = errors.New("invalid match strategy")
)

// Source provides show and season records.
type Source interface {
	Show(ctx context.Context, id int) (tmdb.Show, error)
	Season(ctx context.Context, showID, season int) (tmdb.Season, error)
}

// ImageFetcher downloads an image reference to a local path.
type ImageFetcher interface {
	Download(ctx context.Context, ref, dest string) (bool, error)
}

// Tagger writes episode metadata into a renamed file's container.
type Tagger interface {
	Tag(path, show string, season int, ep tmdb.Episode) error
}

// Observer is told about every rename and every finished season. Calls
// happen on the processing goroutine.
type Observer interface {
	Renamed(season, episode int, oldPath, newPath string)
	SeasonDone(season int, folder string, stats Stats, err error)
}

// Stats counts what happened to the files of one season.
type Stats struct {
	Renamed           int `json:"renamed"`
	Skipped           int `json:"skipped"`
	Errors            int `json:"errors"`
	PostersDownloaded int `json:"posters_downloaded"`
}

// Add returns the sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Renamed:           s.Renamed + o.Renamed,
		Skipped:           s.Skipped + o.Skipped,
		Errors:            s.Errors + o.Errors,
		PostersDownloaded: s.PostersDownloaded + o.PostersDownloaded,
	}
}

// Processor runs the folder and season pipeline. Its fields are set once
// and not modified while processing.
type Processor struct {
	Source     Source
	Images     ImageFetcher
	Tagger     Tagger // nil disables tag writing
	SeasonSort SeasonSort
	Logger     *slog.Logger
}

// Options shared by folder and season runs.
type Options struct {
	DownloadPosters bool
	WriteTags       bool
	Matcher         Matcher  // nil means IndexMatcher
	Observer        Observer // may be nil
}

func (o Options) matcher() Matcher {
	if o.Matcher == nil {
		return IndexMatcher{}
	}
	return o.Matcher
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
