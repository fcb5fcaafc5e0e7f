package renamer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var (
	seasonFolderPattern = regexp.MustCompile(`(?i)season\s*\d+`)
	firstNumber         = regexp.MustCompile(`\d+`)
)

// SeasonSort orders discovered season folders.
type SeasonSort int

const (
	// SortLexical orders folders by name as plain strings, so "Season 10"
	// comes before "Season 2".
	SortLexical SeasonSort = iota
	// SortNumeric orders folders by their season number, ties by name.
	SortNumeric
)

// ParseSeasonSort maps a config value to a SeasonSort.
func ParseSeasonSort(s string) (SeasonSort, error) {
	switch s {
	case "", "lexical":
		return SortLexical, nil
	case "numeric":
		return SortNumeric, nil
	}
	return SortLexical, fmt.Errorf("unknown season sort %q", s)
}

func (s SeasonSort) String() string {
	if s == SortNumeric {
		return "numeric"
	}
	return "lexical"
}

// SeasonFolder is a subdirectory that looks like it holds one season.
type SeasonFolder struct {
	Name   string
	Path   string
	Number int
}

// IsSeasonFolder reports whether name looks like "Season N" in any case.
func IsSeasonFolder(name string) bool {
	return seasonFolderPattern.MatchString(name)
}

// SeasonNumber returns the first integer in name.
func SeasonNumber(name string) (int, bool) {
	m := firstNumber.FindString(name)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ListSeasonFolders returns the immediate season subdirectories of dir in
// the given order.
func ListSeasonFolders(dir string, order SeasonSort) ([]SeasonFolder, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var folders []SeasonFolder
	for _, e := range entries {
		if !IsSeasonFolder(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if !isDir(e, path) {
			continue
		}
		n, ok := SeasonNumber(e.Name())
		if !ok {
			continue
		}
		folders = append(folders, SeasonFolder{Name: e.Name(), Path: path, Number: n})
	}
	sortSeasonFolders(folders, order)
	return folders, nil
}

func sortSeasonFolders(folders []SeasonFolder, order SeasonSort) {
	switch order {
	case SortNumeric:
		sort.SliceStable(folders, func(i, j int) bool {
			if folders[i].Number != folders[j].Number {
				return folders[i].Number < folders[j].Number
			}
			return folders[i].Name < folders[j].Name
		})
	default:
		sort.SliceStable(folders, func(i, j int) bool {
			return folders[i].Name < folders[j].Name
		})
	}
}

// isDir follows symlinks the way a plain stat would.
func isDir(e os.DirEntry, path string) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
