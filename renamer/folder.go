package renamer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/maxgarvey/show_renamer/artwork"
)

// FolderRequest identifies a show's root folder.
type FolderRequest struct {
	FolderPath string
	ShowID     int
	ShowName   string
	Options
}

// SeasonReport is the outcome for one season folder.
type SeasonReport struct {
	Folder string
	Season int
	Stats  Stats
	Err    error
}

// Report summarises a folder run.
type Report struct {
	ShowPoster bool
	Seasons    []SeasonReport
}

// Totals sums the stats of every season.
func (r Report) Totals() Stats {
	var total Stats
	for _, s := range r.Seasons {
		total = total.Add(s.Stats)
	}
	return total
}

// ProcessFolder downloads the show poster and processes every season folder
// under req.FolderPath in the processor's season order. Seasons run one after
// another; a failed season does not stop the rest.
func (p *Processor) ProcessFolder(ctx context.Context, req FolderRequest) (Report, error) {
	var report Report
	log := p.logger().With("folder", req.FolderPath, "show", req.ShowName)
	log.Info("processing show folder")

	show, err := p.Source.Show(ctx, req.ShowID)
	if err != nil {
		log.Error("fetch show", "show_id", req.ShowID, "error", err)
		return report, fmt.Errorf("fetch show %d: %w", req.ShowID, err)
	}
	if req.ShowName == "" {
		req.ShowName = show.Name
	}

	if req.DownloadPosters && show.PosterPath != "" && p.Images != nil {
		posterPath := filepath.Join(req.FolderPath, ShowPosterName(req.ShowName))
		if !artwork.Exists(posterPath) {
			log.Info("downloading show poster")
			ok, err := p.Images.Download(ctx, show.PosterPath, posterPath)
			if err != nil {
				log.Error("download show poster", "error", err)
			}
			report.ShowPoster = ok
		}
	}

	folders, err := ListSeasonFolders(req.FolderPath, p.SeasonSort)
	if err != nil {
		log.Error("list season folders", "error", err)
		return report, fmt.Errorf("list season folders: %w", err)
	}
	if len(folders) == 0 {
		log.Error("no season folders found")
		return report, ErrNoSeasonFolders
	}

	for _, f := range folders {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		stats, err := p.ProcessSeason(ctx, SeasonRequest{
			FolderPath: f.Path,
			ShowID:     req.ShowID,
			ShowName:   req.ShowName,
			Season:     f.Number,
			Options:    req.Options,
		})
		report.Seasons = append(report.Seasons, SeasonReport{Folder: f.Path, Season: f.Number, Stats: stats, Err: err})
	}
	log.Info("show folder processing complete", "seasons", len(report.Seasons))
	return report, nil
}
