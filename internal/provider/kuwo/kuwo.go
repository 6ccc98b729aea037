package kuwo

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"

	"musicmanager/internal/logger"
	"musicmanager/internal/resource"
)

const (
	tokenCharset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	tokenLength  = 32
	pageSize     = "10"
)

// Client is a Kuwo client that implements resource.Client.
// Each instance carries its own anonymous session token.
type Client struct {
	transport *resource.Transport
	log       *logger.Logger
	token     string
	cross     string
	searchURL string
	lyricURL  string
}

// New creates a Kuwo client with a fresh random token and registers the
// session headers on the transport.
func New(t *resource.Transport, log *logger.Logger) *Client {
	token := newToken()
	c := &Client{
		transport: t,
		log:       log,
		token:     token,
		cross:     crossSignature(token),
		searchURL: "http://www.kuwo.cn/api/www/search/searchMusicBykeyWord",
		lyricURL:  "http://kuwo.cn/newh5/singles/songinfoandlrc",
	}
	t.SetHeader("Referer", "http://www.kuwo.cn/")
	t.SetHeader("Cross", c.cross)
	t.SetHeader("Cookie", "Hm_token="+token)
	return c
}

func (c *Client) Name() string { return "kuwo" }

// Token returns the session token generated at construction.
func (c *Client) Token() string { return c.token }

// Cross returns the signature derived from Token.
func (c *Client) Cross() string { return c.cross }

func newToken() string {
	b := make([]byte, tokenLength)
	for i := range b {
		b[i] = tokenCharset[rand.IntN(len(tokenCharset))]
	}
	return string(b)
}

// crossSignature is hex(md5(hex(sha1(token)))).
func crossSignature(token string) string {
	s := sha1.Sum([]byte(token))
	m := md5.Sum([]byte(hex.EncodeToString(s[:])))
	return hex.EncodeToString(m[:])
}

// FetchLyric renders the timed lyric lines of a track as "[H:MM:SS]text\n".
func (c *Client) FetchLyric(ctx context.Context, songID string) (string, error) {
	q := url.Values{
		"musicId":     {songID},
		"mid":         {songID},
		"type":        {"music"},
		"httpsStatus": {"1"},
		"plat":        {"web_www"},
	}
	body, err := c.transport.Get(ctx, c.lyricURL, q, nil)
	if err != nil {
		return "", fmt.Errorf("kuwo lyric request failed: %w", err)
	}

	var resp lyricResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: kuwo lyric: %v", resource.ErrDecode, err)
	}
	if resp.Data == nil {
		return "", nil
	}
	return formatLyricLines(resp.Data.LrcList, c.log), nil
}

// formatLyricLines keeps provider order. Lines with an unparsable time are
// logged and dropped.
func formatLyricLines(lines []lyricLine, log *logger.Logger) string {
	var sb strings.Builder
	for i, line := range lines {
		ts := string(line.Time)
		if ts == "" {
			ts = "0"
		}
		f, err := strconv.ParseFloat(ts, 64)
		if err != nil {
			log.Warn("kuwo: skipping lyric line %d: bad time %q", i, line.Time)
			continue
		}
		seconds := int(f)
		h, m, s := seconds/3600, seconds/60%60, seconds%60
		fmt.Fprintf(&sb, "[%d:%02d:%02d]%s\n", h, m, s, line.LineLyric)
	}
	return sb.String()
}

// FetchID3ByTitle searches Kuwo by keyword.
func (c *Client) FetchID3ByTitle(ctx context.Context, title string) ([]resource.TrackCandidate, error) {
	q := url.Values{
		"key":         {title},
		"pn":          {"1"},
		"rn":          {pageSize},
		"httpsStatus": {"1"},
	}
	body, err := c.transport.Get(ctx, c.searchURL, q, nil)
	if err != nil {
		return nil, fmt.Errorf("kuwo search request failed: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: kuwo search: %v", resource.ErrDecode, err)
	}
	if resp.Data == nil || resp.Data.List == nil {
		return nil, fmt.Errorf("%w: kuwo search: missing data.list", resource.ErrDecode)
	}
	return parseResults(*resp.Data.List), nil
}

func parseResults(items []songItem) []resource.TrackCandidate {
	results := make([]resource.TrackCandidate, 0, len(items))
	for _, item := range items {
		id := item.RID.String()
		results = append(results, resource.TrackCandidate{
			SourceID:  id,
			DisplayID: id,
			Title:     item.Name,
			Artist:    item.Artist,
			ArtistID:  item.ArtistID.String(),
			Album:     item.Album,
			AlbumID:   item.AlbumID.String(),
			CoverURL:  item.AlbumPic,
		})
	}
	return results
}

// Kuwo API response types

type searchResponse struct {
	Data *struct {
		List *[]songItem `json:"list"`
	} `json:"data"`
}

type songItem struct {
	RID      resource.FlexString `json:"rid"`
	Name     string              `json:"name"`
	Artist   string              `json:"artist"`
	ArtistID resource.FlexString `json:"artistid"`
	Album    string              `json:"album"`
	AlbumID  resource.FlexString `json:"albumid"`
	AlbumPic string              `json:"albumpic"`
}

type lyricResponse struct {
	Data *struct {
		LrcList []lyricLine `json:"lrclist"`
	} `json:"data"`
}

type lyricLine struct {
	Time      resource.FlexString `json:"time"`
	LineLyric string              `json:"lineLyric"`
}
