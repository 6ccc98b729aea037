// Package resource defines the shape shared by every music platform client:
// the normalized TrackCandidate, the Client capability, the closed set of
// Provider tokens and the HTTP transport the clients talk through.
//
// Concrete clients live under internal/provider; internal/gateway picks one
// by Provider and contains its failures.
package resource

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider is returned for a provider token outside the closed enumeration.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrNotImplemented is returned by providers without a real backend.
	ErrNotImplemented = errors.New("provider not implemented")
	// ErrDecode marks a provider response whose shape did not match expectations.
	ErrDecode = errors.New("malformed provider response")
)

// TrackCandidate is one normalized search result.
type TrackCandidate struct {
	SourceID      string `json:"source_id"`
	DisplayID     string `json:"display_id"`
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	ArtistID      string `json:"artist_id"`
	Album         string `json:"album"`
	AlbumID       string `json:"album_id"`
	Year          string `json:"year"`
	CoverURL      string `json:"cover_url"`
	SizeLabel     string `json:"size_label"`
	SizeBytes     int64  `json:"size_bytes"`
	FormatTag     string `json:"format_tag"`
	CodePrefix    string `json:"code_prefix"`
	MediaID       string `json:"media_id"`
	QualityNotice string `json:"quality_notice"`
	ReadableText  string `json:"readable_text"`
}

// Client talks to exactly one third-party music service.
type Client interface {
	// Name is the provider token the client serves, used in logs and metrics.
	Name() string
	// FetchLyric returns the plain-text lyric for a provider-native track id.
	FetchLyric(ctx context.Context, songID string) (string, error)
	// FetchID3ByTitle searches by free text and returns candidates in the
	// provider's ranking order.
	FetchID3ByTitle(ctx context.Context, title string) ([]TrackCandidate, error)
}

// Provider names a music platform.
type Provider string

const (
	SmartTag Provider = "smart_tag"
	Netease  Provider = "netease"
	Migu     Provider = "migu"
	QMusic   Provider = "qmusic"
	Kugou    Provider = "kugou"
	Kuwo     Provider = "kuwo"
	AcoustID Provider = "acoustid"
)

// Providers lists every accepted token in declaration order.
var Providers = []Provider{SmartTag, Netease, Migu, QMusic, Kugou, Kuwo, AcoustID}

// ParseProvider validates a provider token.
func ParseProvider(token string) (Provider, error) {
	p := Provider(token)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, token)
	}
	return p, nil
}

// Valid reports whether p belongs to the enumeration.
func (p Provider) Valid() bool {
	switch p {
	case SmartTag, Netease, Migu, QMusic, Kugou, Kuwo, AcoustID:
		return true
	}
	return false
}

func (p Provider) String() string { return string(p) }

// UnmarshalText lets request bodies and config files carry a Provider directly.
func (p *Provider) UnmarshalText(text []byte) error {
	parsed, err := ParseProvider(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
