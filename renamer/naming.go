package renamer

import (
	"fmt"
	"regexp"
	"strings"
)

// UnknownTitle stands in for an episode without a name.
const UnknownTitle = "Unknown"

var (
	illegalChars   = regexp.MustCompile(`[\\/:*?"<>|]`)
	pathSeparators = strings.NewReplacer("/", "", `\`, "")
)

// SanitizeTitle strips characters that are illegal in file names on common
// filesystems, collapses Unicode whitespace runs to one space and trims the
// result.
func SanitizeTitle(title string) string {
	return strings.Join(strings.Fields(illegalChars.ReplaceAllString(title, "")), " ")
}

// showName keeps the show name as the source spells it, minus path
// separators so the name cannot escape the folder.
func showName(show string) string {
	return pathSeparators.Replace(show)
}

// CanonicalName is the target base name (no extension) for an episode:
// "<show> - S<ss>E<ee> - <title>". Numbers are padded to two digits and
// never truncated.
func CanonicalName(show string, season, episode int, title string) string {
	if strings.TrimSpace(title) == "" {
		title = UnknownTitle
	}
	return fmt.Sprintf("%s - S%02dE%02d - %s", showName(show), season, episode, SanitizeTitle(title))
}

// ShowPosterName is the file name of the show-level poster.
func ShowPosterName(show string) string {
	return showName(show) + " - Poster.jpg"
}
