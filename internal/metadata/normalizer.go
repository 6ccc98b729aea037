package metadata

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Noise suffixes common in downloaded file names.
var titleCleanupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[\(\[]official\s+(music\s+|lyric\s+)?(video|audio|visualizer)[\)\]]`),
	regexp.MustCompile(`(?i)\s*[\(\[](lyrics?|visual(?:izer)?|audio|hd|hq|4k|explicit|clean)[\)\]]`),
	regexp.MustCompile(`\s*[\(（\[【](无损|高品质|Hi-?Res|FLAC|320k(bps)?)[\)）\]】]`),
}

var featuringPattern = regexp.MustCompile(`(?i)\s*[\(\[]\s*(?:feat\.?|ft\.?|featuring)\s+([^\)\]]+)[\)\]]`)

// "Artist - Title", "Artist-Title", with hyphen, en or em dash.
var artistTitleSeparator = regexp.MustCompile(`^(.+?)\s*[-–—]\s*(.+)$`)

// NormalizeQuery cleans a title and artist before a platform search.
// When artist is empty, an "Artist - Title" title is split.
func NormalizeQuery(title, artist string) SearchQuery {
	title = strings.TrimSpace(title)
	artist = strings.TrimSpace(artist)

	if title == "" {
		return SearchQuery{Title: title, Artist: artist}
	}

	for _, p := range titleCleanupPatterns {
		title = p.ReplaceAllString(title, "")
	}
	title = featuringPattern.ReplaceAllString(title, "")

	if artist == "" {
		if m := artistTitleSeparator.FindStringSubmatch(title); m != nil {
			artist = strings.TrimSpace(m[1])
			title = strings.TrimSpace(m[2])
		}
	}

	return SearchQuery{
		Title:  strings.TrimSpace(title),
		Artist: strings.TrimSpace(artist),
	}
}

// QueryFromFilename derives a search query from a file name such as
// "宋冬野-莉莉安.flac". Names are NFC-normalized since macOS stores them
// decomposed.
func QueryFromFilename(name string) SearchQuery {
	base := norm.NFC.String(filepath.Base(name))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "_", " ")
	return NormalizeQuery(base, "")
}
