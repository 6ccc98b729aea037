package migu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"musicmanager/internal/resource"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:80.0) Gecko/20100101 Firefox/80.0"
	referer   = "https://m.music.migu.cn/"
	pageSize  = "10"
)

// Client is a Migu music client that implements resource.Client.
type Client struct {
	transport *resource.Transport
	searchURL string
	lyricURL  string
}

// New creates a new Migu client on top of the given transport.
func New(t *resource.Transport) *Client {
	return &Client{
		transport: t,
		searchURL: "https://m.music.migu.cn/migu/remoting/scr_search_tag",
		lyricURL:  "https://music.migu.cn/v3/api/music/audioPlayer/getLyric",
	}
}

func (c *Client) Name() string { return "migu" }

func (c *Client) headers() http.Header {
	return http.Header{
		"User-Agent": {userAgent},
		"Referer":    {referer},
	}
}

// FetchLyric returns the lyric text for a copyright id as the API delivers it.
func (c *Client) FetchLyric(ctx context.Context, songID string) (string, error) {
	body, err := c.transport.Get(ctx, c.lyricURL, url.Values{"copyrightId": {songID}}, c.headers())
	if err != nil {
		return "", fmt.Errorf("migu lyric request failed: %w", err)
	}

	var resp lyricResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: migu lyric: %v", resource.ErrDecode, err)
	}
	return resp.Lyric, nil
}

// FetchID3ByTitle searches Migu by free text.
func (c *Client) FetchID3ByTitle(ctx context.Context, title string) ([]resource.TrackCandidate, error) {
	q := url.Values{
		"rows":    {pageSize},
		"type":    {"2"},
		"keyword": {title},
		"pgc":     {"1"},
	}
	body, err := c.transport.Get(ctx, c.searchURL, q, c.headers())
	if err != nil {
		return nil, fmt.Errorf("migu search request failed: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: migu search: %v", resource.ErrDecode, err)
	}
	if resp.Musics == nil {
		return nil, fmt.Errorf("%w: migu search: missing musics", resource.ErrDecode)
	}
	return parseResults(*resp.Musics), nil
}

func parseResults(items []musicItem) []resource.TrackCandidate {
	results := make([]resource.TrackCandidate, 0, len(items))
	for _, item := range items {
		id := item.CopyrightID.String()
		results = append(results, resource.TrackCandidate{
			SourceID:  id,
			DisplayID: id,
			Title:     item.SongName,
			Artist:    item.SingerName,
			ArtistID:  item.SingerID.String(),
			Album:     item.AlbumName,
			AlbumID:   item.AlbumID.String(),
			CoverURL:  item.Cover,
		})
	}
	return results
}

// Migu API response types

type searchResponse struct {
	Musics *[]musicItem `json:"musics"`
}

type musicItem struct {
	CopyrightID resource.FlexString `json:"copyrightId"`
	SongName    string              `json:"songName"`
	SingerName  string              `json:"singerName"`
	SingerID    resource.FlexString `json:"singerId"`
	AlbumName   string              `json:"albumName"`
	AlbumID     resource.FlexString `json:"albumId"`
	Cover       string              `json:"cover"`
}

type lyricResponse struct {
	Lyric string `json:"lyric"`
}
