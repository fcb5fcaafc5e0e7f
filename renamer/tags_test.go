package renamer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maxgarvey/show_renamer/tmdb"
)

func TestFFmpegTaggerWithoutFFmpeg(t *testing.T) {
	t.Setenv("PATH", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "Show - S01E01 - Pilot.mkv")
	touch(t, dir, filepath.Base(path))

	err := FFmpegTagger{}.Tag(path, "Show", 1, tmdb.Episode{EpisodeNumber: 1, Name: "Pilot"})
	if err != nil {
		t.Fatalf("Tag without ffmpeg should be a no-op, got %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != filepath.Base(path) {
		t.Error("file contents changed")
	}
}
