// Package metadata reads and writes container tags of video files using the
// ffprobe and ffmpeg binaries.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Meta holds native metadata read from a video file via ffprobe.
type Meta struct {
	Title       string
	Description string
	Date        string
	Show        string
	SeasonNum   string
	EpisodeNum  string
	EpisodeID   string
	Keywords    []string
}

// HasData reports whether any metadata field is populated.
func (m Meta) HasData() bool {
	return m.Title != "" || m.Description != "" || m.Date != "" ||
		m.Show != "" || m.EpisodeID != "" || len(m.Keywords) > 0
}

// Updates holds metadata fields to write back to a file.
// A nil pointer means "leave this field unchanged".
type Updates struct {
	Title       *string // nil = preserve, "" = clear
	Description *string
	Date        *string
	Show        *string
	SeasonNum   *string
	EpisodeNum  *string
	EpisodeID   *string
	Keywords    []string // nil = preserve, []string{} = clear
}

// Satisfied reports whether m already carries every value u would set.
func (u Updates) Satisfied(m Meta) bool {
	eq := func(want *string, have string) bool { return want == nil || *want == have }
	return eq(u.Title, m.Title) && eq(u.Description, m.Description) && eq(u.Date, m.Date) &&
		eq(u.Show, m.Show) && eq(u.SeasonNum, m.SeasonNum) && eq(u.EpisodeNum, m.EpisodeNum) &&
		eq(u.EpisodeID, m.EpisodeID) &&
		(u.Keywords == nil || strings.Join(u.Keywords, ",") == strings.Join(m.Keywords, ","))
}

func (u Updates) args() []string {
	var args []string
	add := func(key string, v *string) {
		if v != nil {
			args = append(args, "-metadata", key+"="+*v)
		}
	}
	add("title", u.Title)
	add("description", u.Description)
	add("date", u.Date)
	add("show", u.Show)
	add("season_number", u.SeasonNum)
	add("episode_sort", u.EpisodeNum)
	add("episode_id", u.EpisodeID)
	if u.Keywords != nil {
		args = append(args, "-metadata", "keywords="+strings.Join(u.Keywords, ","))
	}
	return args
}

// Read reads native metadata from a video file using ffprobe.
// Returns an empty Meta (no error) if ffprobe is not available.
func Read(path string) (Meta, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return Meta{}, nil
	}
	out, err := exec.Command(
		"ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	).Output()
	if err != nil {
		return Meta{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseFFProbeOutput(out)
}

// Write updates metadata in a video file using ffmpeg with -codec copy (no
// re-encode). Files that already carry the requested values are left alone.
// Returns nil if ffmpeg is not available; callers should log but not fail.
func Write(path string, u Updates) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil
	}
	if current, err := Read(path); err == nil && current.HasData() && u.Satisfied(current) {
		return nil
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	tmp, err := os.CreateTemp(dir, ".sr_tmp_*"+ext)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath) // no-op if Rename succeeds

	args := []string{"-i", path, "-codec", "copy", "-map", "0", "-map_metadata", "0", "-y"}
	args = append(args, u.args()...)
	args = append(args, tmpPath)

	if out, err := exec.Command("ffmpeg", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, out)
	}
	return os.Rename(tmpPath, path)
}

// --- internal ---

type ffprobeOutput struct {
	Format struct {
		Tags map[string]string `json:"tags"`
	} `json:"format"`
}

func parseFFProbeOutput(data []byte) (Meta, error) {
	var result ffprobeOutput
	if err := json.Unmarshal(data, &result); err != nil {
		return Meta{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	tags := lowerKeys(result.Format.Tags)
	m := Meta{
		Title:       tags["title"],
		Date:        firstOf(tags, "date", "year"),
		Description: firstOf(tags, "description", "desc", "synopsis"),
		Show:        firstOf(tags, "show", "album"),
		SeasonNum:   tags["season_number"],
		EpisodeNum:  firstOf(tags, "episode_sort", "track"),
		EpisodeID:   tags["episode_id"],
	}
	if kw := firstOf(tags, "keywords", "keyword"); kw != "" {
		for _, k := range strings.FieldsFunc(kw, func(r rune) bool {
			return r == ',' || r == ';'
		}) {
			if k = strings.TrimSpace(k); k != "" {
				m.Keywords = append(m.Keywords, k)
			}
		}
	}
	return m, nil
}

// lowerKeys normalises tag names; Matroska reports them upper-case.
func lowerKeys(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[strings.ToLower(k)] = v
	}
	return out
}

func firstOf(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return ""
}
