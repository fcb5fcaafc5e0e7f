package renamer

import (
	"os"
	"path/filepath"
	"strings"
)

// VideoFile is one candidate episode file in a season folder.
type VideoFile struct {
	Name string // file name including extension
	Path string
	Ext  string // extension as found on disk, with the dot
}

// Base is the file name without its extension.
func (f VideoFile) Base() string {
	return strings.TrimSuffix(f.Name, f.Ext)
}

func isVideoFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".mkv", ".avi":
		return true
	}
	return false
}

// ListVideoFiles returns the video files directly inside dir, sorted by
// name byte-wise. Subdirectories are skipped.
func ListVideoFiles(dir string) ([]VideoFile, error) {
	// os.ReadDir returns entries sorted by file name.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []VideoFile
	for _, e := range entries {
		if !isVideoFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if isDir(e, path) {
			continue
		}
		files = append(files, VideoFile{Name: e.Name(), Path: path, Ext: filepath.Ext(e.Name())})
	}
	return files, nil
}
