package renamer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maxgarvey/show_renamer/artwork"
)

// PostersDir is the per-season subdirectory holding episode stills.
const PostersDir = "posters"

// SeasonRequest identifies one season folder to process.
type SeasonRequest struct {
	FolderPath string
	ShowID     int
	ShowName   string
	Season     int
	Options
}

// ProcessSeason fetches the season's episodes, pairs them with the video
// files in the folder and renames each file to its canonical name. Errors on
// individual files are counted in the returned Stats and processing moves on;
// the returned error is non-nil only when the season could not be processed
// at all or ctx was cancelled.
func (p *Processor) ProcessSeason(ctx context.Context, req SeasonRequest) (Stats, error) {
	log := p.logger().With("season", req.Season, "folder", req.FolderPath)
	log.Info("processing season")

	stats, err := p.processSeason(ctx, req)
	if err != nil {
		log.Error("season processing failed", "error", err)
	}
	log.Info("season processing complete",
		"renamed", stats.Renamed,
		"skipped", stats.Skipped,
		"posters_downloaded", stats.PostersDownloaded,
		"errors", stats.Errors,
	)
	if req.Observer != nil {
		req.Observer.SeasonDone(req.Season, req.FolderPath, stats, err)
	}
	return stats, err
}

func (p *Processor) processSeason(ctx context.Context, req SeasonRequest) (Stats, error) {
	var stats Stats
	log := p.logger().With("season", req.Season)

	season, err := p.Source.Season(ctx, req.ShowID, req.Season)
	if err != nil {
		return stats, fmt.Errorf("fetch season %d: %w", req.Season, err)
	}
	if len(season.Episodes) == 0 {
		return stats, fmt.Errorf("season %d: %w", req.Season, ErrNoEpisodes)
	}

	var postersDir string
	if req.DownloadPosters {
		postersDir = filepath.Join(req.FolderPath, PostersDir)
		if err := os.MkdirAll(postersDir, 0o755); err != nil {
			return stats, fmt.Errorf("create posters dir: %w", err)
		}
	}

	files, err := ListVideoFiles(req.FolderPath)
	if err != nil {
		return stats, fmt.Errorf("list video files: %w", err)
	}
	if len(files) != len(season.Episodes) {
		log.Warn("video file count does not match episode count",
			"files", len(files), "episodes", len(season.Episodes))
	}

	matches := req.matcher().Match(files, season.Episodes)
	if unmatched := len(files) - len(matches); unmatched > 0 {
		log.Warn("files left unmatched", "count", unmatched)
	}

	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := p.processMatch(ctx, req, m, postersDir, &stats); err != nil {
			stats.Errors++
			log.Error("error processing file", "file", m.File.Name, "error", err)
		}
	}
	return stats, nil
}

func (p *Processor) processMatch(ctx context.Context, req SeasonRequest, m Match, postersDir string, stats *Stats) error {
	log := p.logger().With("season", req.Season, "file", m.File.Name)
	target := CanonicalName(req.ShowName, req.Season, m.Episode.EpisodeNumber, m.Episode.Name)

	if m.File.Base() == target {
		stats.Skipped++
	} else {
		newPath := filepath.Join(filepath.Dir(m.File.Path), target+m.File.Ext)
		if err := renameNoClobber(m.File.Path, newPath); err != nil {
			return err
		}
		stats.Renamed++
		log.Info("renamed", "target", target+m.File.Ext)
		if req.Observer != nil {
			req.Observer.Renamed(req.Season, m.Episode.EpisodeNumber, m.File.Path, newPath)
		}
		if req.WriteTags && p.Tagger != nil {
			if err := p.Tagger.Tag(newPath, req.ShowName, req.Season, m.Episode); err != nil {
				log.Warn("write tags", "error", err)
			}
		}
	}

	if postersDir == "" || m.Episode.StillPath == "" || p.Images == nil {
		return nil
	}
	posterPath := filepath.Join(postersDir, target+".jpg")
	if artwork.Exists(posterPath) {
		return nil
	}
	ok, err := p.Images.Download(ctx, m.Episode.StillPath, posterPath)
	if err != nil {
		return fmt.Errorf("download poster: %w", err)
	}
	if ok {
		stats.PostersDownloaded++
		log.Info("downloaded poster", "target", target)
	}
	return nil
}

// renameNoClobber renames oldPath to newPath unless newPath is a different
// existing file. A target that is the same file (a case-only rename on a
// case-insensitive filesystem) is allowed.
func renameNoClobber(oldPath, newPath string) error {
	if oldPath == newPath {
		return nil
	}
	dst, err := os.Lstat(newPath)
	switch {
	case err == nil:
		src, serr := os.Lstat(oldPath)
		if serr != nil {
			return serr
		}
		if !os.SameFile(src, dst) {
			return fmt.Errorf("%w: %s", ErrTargetExists, newPath)
		}
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	return os.Rename(oldPath, newPath)
}
