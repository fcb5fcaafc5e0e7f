package renamer

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/maxgarvey/show_renamer/tmdb"
)

// Match pairs one file with one episode.
type Match struct {
	File    VideoFile
	Episode tmdb.Episode
}

// Matcher pairs sorted video files with a season's episodes. Implementations
// must use every file and every episode at most once.
type Matcher interface {
	Match(files []VideoFile, episodes []tmdb.Episode) []Match
}

// Matcher names accepted by NewMatcher.
const (
	MatchByIndex    = "index"
	MatchByFilename = "filename"
	MatchManual     = "manual"
)

// NewMatcher returns the matcher for name. A non-empty mapping selects the
// manual matcher regardless of name.
func NewMatcher(name string, mapping map[string]int) (Matcher, error) {
	if len(mapping) > 0 {
		return ManualMatcher{Mapping: mapping}, nil
	}
	switch name {
	case "", MatchByIndex:
		return IndexMatcher{}, nil
	case MatchByFilename:
		return FilenameMatcher{}, nil
	case MatchManual:
		return nil, fmt.Errorf("%w: manual matching needs a file mapping", ErrInvalidStrategy)
	}
	return nil, fmt.Errorf("%w %q", ErrInvalidStrategy, name)
}

// IndexMatcher pairs the i-th file with the i-th episode and stops at the
// shorter list.
type IndexMatcher struct{}

func (IndexMatcher) Match(files []VideoFile, episodes []tmdb.Episode) []Match {
	n := min(len(files), len(episodes))
	out := make([]Match, n)
	for i := 0; i < n; i++ {
		out[i] = Match{File: files[i], Episode: episodes[i]}
	}
	return out
}

var episodeTokens = []*regexp.Regexp{
	regexp.MustCompile(`(?i)s\d{1,3}[ ._-]*e(\d{1,4})`),
	regexp.MustCompile(`(?i)(?:^|[^a-z0-9])\d{1,2}x(\d{2,4})(?:[^0-9]|$)`),
	regexp.MustCompile(`(?i)(?:^|[^a-z])(?:ep|episode|e)[ ._-]?(\d{1,4})(?:[^0-9]|$)`),
}

// EpisodeNumberFromName extracts the episode number embedded in a file name
// (S01E02, 1x02, Ep 2).
func EpisodeNumberFromName(name string) (int, bool) {
	for _, re := range episodeTokens {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// FilenameMatcher pairs files with episodes by the episode number embedded
// in the file name. Files without a number, or whose episode is already
// taken, stay unmatched.
type FilenameMatcher struct{}

func (FilenameMatcher) Match(files []VideoFile, episodes []tmdb.Episode) []Match {
	return matchByNumber(files, episodes, func(f VideoFile) (int, bool) {
		return EpisodeNumberFromName(f.Base())
	})
}

// ManualMatcher pairs files with episodes using an explicit file name to
// episode number mapping.
type ManualMatcher struct {
	Mapping map[string]int
}

func (m ManualMatcher) Match(files []VideoFile, episodes []tmdb.Episode) []Match {
	return matchByNumber(files, episodes, func(f VideoFile) (int, bool) {
		n, ok := m.Mapping[f.Name]
		return n, ok
	})
}

func matchByNumber(files []VideoFile, episodes []tmdb.Episode, number func(VideoFile) (int, bool)) []Match {
	byNumber := make(map[int]tmdb.Episode, len(episodes))
	for _, ep := range episodes {
		if _, dup := byNumber[ep.EpisodeNumber]; !dup {
			byNumber[ep.EpisodeNumber] = ep
		}
	}
	used := make(map[int]bool, len(episodes))
	var out []Match
	for _, f := range files {
		n, ok := number(f)
		if !ok || used[n] {
			continue
		}
		ep, ok := byNumber[n]
		if !ok {
			continue
		}
		used[n] = true
		out = append(out, Match{File: f, Episode: ep})
	}
	return out
}
