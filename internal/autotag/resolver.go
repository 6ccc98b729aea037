// Package autotag fills in the tags of audio files from the search results of
// one music platform.
package autotag

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"musicmanager/internal/logger"
	"musicmanager/internal/metadata"
	"musicmanager/internal/resource"
)

const defaultConfidenceThreshold = 0.7

// Searcher returns ranked candidates for a free-text title. A
// *gateway.Gateway satisfies it.
type Searcher interface {
	FetchID3ByTitle(ctx context.Context, title string) []resource.TrackCandidate
}

// Result counts what happened to each file of a Resolve call.
type Result struct {
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Resolver reads the tags of a file, searches the platform, scores the
// candidates and writes the best one back when it is close enough.
type Resolver struct {
	searcher  Searcher
	logger    *logger.Logger
	threshold float64

	// Covers downloads the chosen candidate's cover and embeds it.
	Covers bool
	// OnFile is called after each file, whatever its outcome.
	OnFile func()

	readID3    func(string) (metadata.MusicID3, error)
	save       func(metadata.MusicID3) error
	fetchCover func(ctx context.Context, url string) ([]byte, error)
	writeCover func(path string, data []byte) error
}

// NewResolver creates a Resolver searching with s.
// If threshold is 0, the default (0.7) is used.
func NewResolver(s Searcher, log *logger.Logger, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}
	r := &Resolver{
		searcher:   s,
		logger:     log,
		threshold:  threshold,
		readID3:    metadata.ReadID3,
		save:       func(m metadata.MusicID3) error { return m.Save() },
		writeCover: metadata.WriteArtwork,
	}
	covers := resource.NewTransport()
	r.fetchCover = func(ctx context.Context, url string) ([]byte, error) {
		return covers.Get(ctx, url, nil, nil)
	}
	return r
}

// Resolve processes files one by one. It fails when the context is
// cancelled or when every file failed.
func (r *Resolver) Resolve(ctx context.Context, files []string) (Result, error) {
	var res Result
	r.logger.Info("=== Resolving metadata for %d files ===", len(files))

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("metadata resolution cancelled: %w", err)
		}

		r.logger.Debug("[%d/%d] Processing: %s", i+1, len(files), path)

		updated, err := r.ResolveFile(ctx, path)
		switch {
		case err != nil:
			r.logger.Warn("[%d/%d] Failed to resolve metadata: %v", i+1, len(files), err)
			res.Failed++
		case updated:
			res.Updated++
		default:
			res.Unchanged++
		}
		if r.OnFile != nil {
			r.OnFile()
		}
	}

	if len(files) > 0 && res.Failed == len(files) {
		return res, fmt.Errorf("all %d files failed metadata resolution", len(files))
	}
	if res.Failed > 0 {
		r.logger.Warn("%d of %d files failed metadata resolution", res.Failed, len(files))
	}
	r.logger.Info("Metadata resolution completed: %d updated, %d unchanged, %d failed", res.Updated, res.Unchanged, res.Failed)
	return res, nil
}

// ResolveFile tags one file and reports whether its tags were rewritten.
// A file without a title is searched by its "Artist-Title" file name.
func (r *Resolver) ResolveFile(ctx context.Context, path string) (bool, error) {
	m, err := r.readID3(path)
	if err != nil {
		return false, fmt.Errorf("failed to read existing tags: %w", err)
	}

	query := metadata.NormalizeQuery(m.Title, m.Artist)
	if query.Title == "" {
		query = metadata.QueryFromFilename(path)
	}
	if query.Title == "" {
		r.logger.Debug("  Skipping: no title metadata")
		return false, nil
	}
	r.logger.Debug("  Normalized: title=%q artist=%q", query.Title, query.Artist)

	candidates := r.searcher.FetchID3ByTitle(ctx, query.Keyword())
	if len(candidates) == 0 {
		r.logger.Debug("  No results for %q", query.Keyword())
		return false, nil
	}

	best, confidence := candidates[0], score(query, candidates[0])
	for _, c := range candidates[1:] {
		if s := score(query, c); s > confidence {
			best, confidence = c, s
		}
	}
	r.logger.Debug("  Best match: %q by %q (confidence: %.2f)", best.Title, best.Artist, confidence)

	if confidence < r.threshold {
		r.logger.Debug("  Confidence %.2f below threshold %.2f, keeping original tags", confidence, r.threshold)
		return false, nil
	}

	m.Title = best.Title
	m.Artist = best.Artist
	if best.Album != "" {
		m.Album = best.Album
	}
	if year := leadingYear(best.Year); year > 0 {
		m.Year = year
	}
	// Existing artwork stays embedded; only a downloaded cover replaces it.
	m.Artwork = ""

	if err := r.save(m); err != nil {
		return false, fmt.Errorf("failed to write tags: %w", err)
	}

	if r.Covers && best.CoverURL != "" {
		if err := r.embedCover(ctx, path, best.CoverURL); err != nil {
			r.logger.Warn("  Failed to embed artwork: %v", err)
		}
	}
	return true, nil
}

func (r *Resolver) embedCover(ctx context.Context, path, url string) error {
	data, err := r.fetchCover(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to download artwork: %w", err)
	}
	return r.writeCover(path, data)
}

// score computes a similarity score (0.0-1.0) between the query and a candidate.
func score(query metadata.SearchQuery, c resource.TrackCandidate) float64 {
	titleScore := similarity(normalize(query.Title), normalize(c.Title))
	if query.Artist == "" {
		return titleScore
	}
	artistScore := similarity(normalize(query.Artist), normalize(c.Artist))
	// Weight: 60% title, 40% artist
	return titleScore*0.6 + artistScore*0.4
}

// similarity returns how similar two normalized strings are (0.0-1.0),
// comparing them without spaces first and by token overlap otherwise.
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	if strings.ReplaceAll(a, " ", "") == strings.ReplaceAll(b, " ", "") {
		return 1.0
	}

	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		setB[t] = true
	}
	matches := 0
	for _, t := range tokensA {
		if setB[t] {
			matches++
		}
	}
	return float64(matches) / float64(max(len(tokensA), len(tokensB)))
}

// normalize lowercases s and turns punctuation into spaces, so that
// comma-joined artist lists split into tokens.
func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// leadingYear parses the year of "2020", "2020-03-20" or "2020年".
func leadingYear(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && end < 4 && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end != 4 {
		return 0
	}
	year, _ := strconv.Atoi(s[:end])
	return year
}
