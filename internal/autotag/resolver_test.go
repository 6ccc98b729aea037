package autotag

import (
	"context"
	"errors"
	"testing"

	"musicmanager/internal/gateway"
	"musicmanager/internal/logger"
	"musicmanager/internal/metadata"
	"musicmanager/internal/resource"
)

var _ Searcher = (*gateway.Gateway)(nil)

// mockSearcher records the keywords it was asked for.
type mockSearcher struct {
	results  []resource.TrackCandidate
	keywords []string
}

func (m *mockSearcher) FetchID3ByTitle(_ context.Context, title string) []resource.TrackCandidate {
	m.keywords = append(m.keywords, title)
	return m.results
}

// newTestResolver wires fake tag access: tags maps a path to the tags read
// from it, and saved collects what was written.
func newTestResolver(s Searcher, tags map[string]metadata.MusicID3) (*Resolver, *[]metadata.MusicID3) {
	var saved []metadata.MusicID3
	r := NewResolver(s, logger.Nop(), 0)
	r.readID3 = func(path string) (metadata.MusicID3, error) {
		m, ok := tags[path]
		if !ok {
			return metadata.MusicID3{}, errors.New("no such file")
		}
		m.FileFullPath = path
		return m, nil
	}
	r.save = func(m metadata.MusicID3) error {
		saved = append(saved, m)
		return nil
	}
	r.fetchCover = func(context.Context, string) ([]byte, error) {
		return nil, errors.New("unexpected cover download")
	}
	return r, &saved
}

func TestResolvePicksBestMatch(t *testing.T) {
	search := &mockSearcher{results: []resource.TrackCandidate{
		{Title: "时光洪流 (Live)", Artist: "群星", Album: "现场"},
		{Title: "时光洪流", Artist: "程响", Album: "时光洪流", Year: "2020-03-20"},
	}}
	r, saved := newTestResolver(search, map[string]metadata.MusicID3{
		"/music/a.flac": {Title: "时光洪流 [无损]", Artist: "程响", Genre: "Pop", Artwork: "data:image/jpeg;base64,AA=="},
	})

	res, err := r.Resolve(context.Background(), []string{"/music/a.flac"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res != (Result{Updated: 1}) {
		t.Errorf("result = %+v", res)
	}
	if len(search.keywords) != 1 || search.keywords[0] != "程响 时光洪流" {
		t.Errorf("keywords = %q", search.keywords)
	}
	if len(*saved) != 1 {
		t.Fatalf("saved %d files, want 1", len(*saved))
	}

	got := (*saved)[0]
	if got.Title != "时光洪流" || got.Artist != "程响" || got.Album != "时光洪流" || got.Year != 2020 {
		t.Errorf("saved = %+v", got)
	}
	if got.Genre != "Pop" || got.FileFullPath != "/music/a.flac" {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if got.Artwork != "" {
		t.Error("existing artwork should not be rewritten")
	}
}

func TestResolveLowConfidence(t *testing.T) {
	search := &mockSearcher{results: []resource.TrackCandidate{
		{Title: "Completely Different Song", Artist: "Unknown Artist"},
	}}
	r, saved := newTestResolver(search, map[string]metadata.MusicID3{
		"/music/a.mp3": {Title: "My Song", Artist: "My Artist"},
	})

	res, err := r.Resolve(context.Background(), []string{"/music/a.mp3"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res != (Result{Unchanged: 1}) || len(*saved) != 0 {
		t.Errorf("result = %+v, saved = %v", res, *saved)
	}
}

func TestResolveFilenameFallback(t *testing.T) {
	search := &mockSearcher{}
	r, _ := newTestResolver(search, map[string]metadata.MusicID3{
		"/music/宋冬野-莉莉安.flac": {},
	})

	updated, err := r.ResolveFile(context.Background(), "/music/宋冬野-莉莉安.flac")
	if err != nil || updated {
		t.Fatalf("ResolveFile = %v, %v", updated, err)
	}
	if len(search.keywords) != 1 || search.keywords[0] != "宋冬野 莉莉安" {
		t.Errorf("keywords = %q", search.keywords)
	}
}

func TestResolveEmbedsCover(t *testing.T) {
	search := &mockSearcher{results: []resource.TrackCandidate{
		{Title: "莉莉安", Artist: "宋冬野", CoverURL: "http://example.com/cover.jpg"},
	}}
	r, _ := newTestResolver(search, map[string]metadata.MusicID3{
		"/music/a.flac": {Title: "莉莉安", Artist: "宋冬野"},
	})
	r.Covers = true

	var gotURL, gotPath string
	r.fetchCover = func(_ context.Context, url string) ([]byte, error) {
		gotURL = url
		return []byte{0xff, 0xd8}, nil
	}
	r.writeCover = func(path string, data []byte) error {
		gotPath = path
		return nil
	}

	if _, err := r.ResolveFile(context.Background(), "/music/a.flac"); err != nil {
		t.Fatalf("ResolveFile: %v", err)
	}
	if gotURL != "http://example.com/cover.jpg" || gotPath != "/music/a.flac" {
		t.Errorf("cover url = %q, path = %q", gotURL, gotPath)
	}
}

func TestResolveCoverFailureKeepsTags(t *testing.T) {
	search := &mockSearcher{results: []resource.TrackCandidate{
		{Title: "莉莉安", Artist: "宋冬野", CoverURL: "http://example.com/cover.jpg"},
	}}
	r, saved := newTestResolver(search, map[string]metadata.MusicID3{
		"/music/a.flac": {Title: "莉莉安", Artist: "宋冬野"},
	})
	r.Covers = true

	updated, err := r.ResolveFile(context.Background(), "/music/a.flac")
	if err != nil || !updated || len(*saved) != 1 {
		t.Errorf("ResolveFile = %v, %v, saved %d", updated, err, len(*saved))
	}
}

func TestResolveCounts(t *testing.T) {
	search := &mockSearcher{results: []resource.TrackCandidate{{Title: "莉莉安", Artist: "宋冬野"}}}
	r, _ := newTestResolver(search, map[string]metadata.MusicID3{
		"/music/a.flac": {Title: "莉莉安", Artist: "宋冬野"},
		"/music/b.flac": {Title: "Other", Artist: "Someone"},
	})
	var calls int
	r.OnFile = func() { calls++ }

	res, err := r.Resolve(context.Background(), []string{"/music/a.flac", "/music/b.flac", "/music/missing.flac"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := Result{Updated: 1, Unchanged: 1, Failed: 1}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if calls != 3 {
		t.Errorf("OnFile calls = %d, want 3", calls)
	}
}

func TestResolveAllFailed(t *testing.T) {
	r, _ := newTestResolver(&mockSearcher{}, nil)
	if _, err := r.Resolve(context.Background(), []string{"/a.flac", "/b.flac"}); err == nil {
		t.Error("expected error when every file fails")
	}
}

func TestResolveCancelled(t *testing.T) {
	r, _ := newTestResolver(&mockSearcher{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Resolve(ctx, []string{"/a.flac"}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		query     metadata.SearchQuery
		candidate resource.TrackCandidate
		wantAbove float64
		wantBelow float64
	}{
		{
			name:      "exact match",
			query:     metadata.SearchQuery{Title: "Blinding Lights", Artist: "The Weeknd"},
			candidate: resource.TrackCandidate{Title: "Blinding Lights", Artist: "The Weeknd"},
			wantAbove: 0.99,
		},
		{
			name:      "title match different artist",
			query:     metadata.SearchQuery{Title: "Blinding Lights", Artist: "The Weeknd"},
			candidate: resource.TrackCandidate{Title: "Blinding Lights", Artist: "Some Other Artist"},
			wantAbove: 0.5,
			wantBelow: 0.8,
		},
		{
			name:      "completely different",
			query:     metadata.SearchQuery{Title: "Blinding Lights", Artist: "The Weeknd"},
			candidate: resource.TrackCandidate{Title: "Bohemian Rhapsody", Artist: "Queen"},
			wantBelow: 0.1,
		},
		{
			name:      "no artist in query",
			query:     metadata.SearchQuery{Title: "时光洪流"},
			candidate: resource.TrackCandidate{Title: "时光洪流", Artist: "程响"},
			wantAbove: 0.99,
		},
		{
			name:      "one of several artists",
			query:     metadata.SearchQuery{Title: "时光洪流", Artist: "程响"},
			candidate: resource.TrackCandidate{Title: "时光洪流", Artist: "程响,群星"},
			wantAbove: 0.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := score(tt.query, tt.candidate)
			if tt.wantAbove > 0 && got < tt.wantAbove {
				t.Errorf("score = %.4f, want above %.4f", got, tt.wantAbove)
			}
			if tt.wantBelow > 0 && got > tt.wantBelow {
				t.Errorf("score = %.4f, want below %.4f", got, tt.wantBelow)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"blinding lights", "blinding lights", 1.0},
		{"theweeknd", "the weeknd", 1.0},
		{"", "", 1.0},
		{"something", "", 0.0},
		{"", "something", 0.0},
		{"a b", "a c", 0.5},
	}

	for _, tt := range tests {
		if got := similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("similarity(%q, %q) = %.4f, want %.4f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLeadingYear(t *testing.T) {
	tests := map[string]int{
		"2020":       2020,
		"2020-03-20": 2020,
		"2019年":      2019,
		"":           0,
		"20":         0,
		"unknown":    0,
	}
	for in, want := range tests {
		if got := leadingYear(in); got != want {
			t.Errorf("leadingYear(%q) = %d, want %d", in, got, want)
		}
	}
}
