package renamer

import (
	"fmt"
	"strconv"

	"github.com/maxgarvey/show_renamer/metadata"
	"github.com/maxgarvey/show_renamer/tmdb"
)

// FFmpegTagger writes episode tags with ffmpeg. It is a no-op when ffmpeg is
// not installed.
type FFmpegTagger struct{}

func (FFmpegTagger) Tag(path, show string, season int, ep tmdb.Episode) error {
	title := ep.Name
	if title == "" {
		title = UnknownTitle
	}
	seasonNum := strconv.Itoa(season)
	episodeNum := strconv.Itoa(ep.EpisodeNumber)
	episodeID := fmt.Sprintf("S%02dE%02d", season, ep.EpisodeNumber)
	u := metadata.Updates{
		Title:      &title,
		Show:       &show,
		SeasonNum:  &seasonNum,
		EpisodeNum: &episodeNum,
		EpisodeID:  &episodeID,
		Keywords:   []string{show, fmt.Sprintf("Season %d", season)},
	}
	if ep.Overview != "" {
		u.Description = &ep.Overview
	}
	if ep.AirDate != "" {
		u.Date = &ep.AirDate
	}
	return metadata.Write(path, u)
}
