package qmusic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"musicmanager/internal/logger"
	"musicmanager/internal/resource"
)

const (
	userAgent     = "QQ%E9%9F%B3%E4%B9%90/73222 CFNetwork/1406.0.3 Darwin/22.4.0"
	searchKey     = "music.search.SearchCgiService.DoSearchForQQMusicDesktop"
	coverTemplate = "http://y.qq.com/music/photo_new/T002R300x300M000%s.jpg"
	defaultAlbum  = "未分类专辑"

	defaultPageSize = 15
)

// Tier is one audio quality bucket a QMusic track may be available in.
type Tier struct {
	Key    string
	Prefix string
	Ext    string
	Label  string
}

// Tiers in selection priority, best first.
var Tiers = []Tier{
	{"size_hires", "RS01", "flac", "高解析无损 Hi-Res"},
	{"size_flac", "F000", "flac", "无损品质 FLAC"},
	{"size_320mp3", "M800", "mp3", "超高品质 320kbps"},
	{"size_192ogg", "O600", "ogg", "高品质 OGG"},
	{"size_128mp3", "M500", "mp3", "标准品质 128kbps"},
	{"size_96aac", "C400", "m4a", "低品质 96kbps"},
}

// Client is a QQ Music client that implements resource.Client.
type Client struct {
	transport *resource.Transport
	log       *logger.Logger
	searchURL string
	lyricURL  string
}

// New creates a new QQ Music client. The transport gets the headers the
// QQ Music endpoints expect on every call.
func New(t *resource.Transport, log *logger.Logger) *Client {
	t.SetHeader("Accept", "*/*")
	t.SetHeader("Accept-Language", "zh-CN,zh-Hans;q=0.9")
	t.SetHeader("Referer", "http://y.qq.com")
	return &Client{
		transport: t,
		log:       log,
		searchURL: "https://u.y.qq.com/cgi-bin/musicu.fcg",
		lyricURL:  "https://c.y.qq.com/lyric/fcgi-bin/fcg_query_lyric_new.fcg",
	}
}

func (c *Client) Name() string { return "qmusic" }

// SearchPage is one page of cleaned search results.
type SearchPage struct {
	Songs []Song
	Total int64
	// Next is the next page number, -1 once the results are exhausted.
	Next    int64
	Current int64
	Key     string
}

// Song is a search hit reduced to the fields the formatter needs.
type Song struct {
	Album      Album
	DocID      string
	ID         string
	Mid        string
	Name       string
	Singers    []Singer
	TimePublic string
	Title      string
	File       map[string]int64
	MediaMid   string
}

type Album struct {
	Mid   string
	Title string
}

type Singer struct {
	Name string
}

// Search runs one desktop search query and cleans the returned song list.
// Entries whose shape does not decode are skipped with a warning.
func (c *Client) Search(ctx context.Context, key string, page, size int) (SearchPage, error) {
	searchID, err := uuid.NewUUID()
	if err != nil {
		return SearchPage{}, fmt.Errorf("failed to create search id: %w", err)
	}

	payload := map[string]any{
		"comm": commBlock,
		searchKey: map[string]any{
			"module": "music.search.SearchCgiService",
			"method": "DoSearchForQQMusicDesktop",
			"param": map[string]any{
				"num_per_page": size,
				"page_num":     page,
				"remoteplace":  "txt.mac.search",
				"search_type":  0,
				"query":        key,
				"grp":          1,
				"searchid":     searchID.String(),
				"nqc_flag":     0,
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return SearchPage{}, fmt.Errorf("failed to encode qmusic search: %w", err)
	}

	body, err := c.transport.Post(ctx, c.searchURL, data, http.Header{
		"User-Agent":   {userAgent},
		"Referer":      {"https://y.qq.com/portal/profile.html"},
		"Content-Type": {"json/application;charset=utf-8"},
	})
	if err != nil {
		return SearchPage{}, fmt.Errorf("qmusic search request failed: %w", err)
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		return SearchPage{}, fmt.Errorf("%w: qmusic search: %v", resource.ErrDecode, err)
	}
	raw, ok := resp[searchKey]
	if !ok {
		return SearchPage{}, fmt.Errorf("%w: qmusic search: missing %s", resource.ErrDecode, searchKey)
	}
	var block searchBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return SearchPage{}, fmt.Errorf("%w: qmusic search: %v", resource.ErrDecode, err)
	}
	if block.Data == nil || block.Data.Body == nil || block.Data.Body.Song == nil {
		return SearchPage{}, fmt.Errorf("%w: qmusic search: missing song list", resource.ErrDecode)
	}

	result := SearchPage{
		Songs:   make([]Song, 0, len(block.Data.Body.Song.List)),
		Total:   int64(block.Data.Meta.Sum),
		Next:    int64(block.Data.Meta.NextPage),
		Current: int64(block.Data.Meta.CurPage),
		Key:     key,
	}
	for i, entry := range block.Data.Body.Song.List {
		song, err := cleanSong(entry)
		if err != nil {
			c.log.Warn("qmusic: skipping search entry %d: %v", i, err)
			continue
		}
		result.Songs = append(result.Songs, song)
	}
	return result, nil
}

func cleanSong(raw json.RawMessage) (Song, error) {
	var item songItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return Song{}, err
	}
	if item.File == nil {
		return Song{}, fmt.Errorf("missing file block")
	}

	song := Song{
		Album:      Album{Mid: string(item.Album.Mid), Title: item.Album.Title},
		DocID:      string(item.DocID),
		ID:         string(item.ID),
		Mid:        string(item.Mid),
		Name:       item.Title,
		TimePublic: item.TimePublic,
		Title:      item.Title,
		File:       make(map[string]int64, len(Tiers)),
		MediaMid:   string(item.File.MediaMid),
	}
	for _, s := range item.Singer {
		song.Singers = append(song.Singers, Singer{Name: s.Name})
	}
	for _, tier := range Tiers {
		song.File[tier.Key] = int64(item.File.sizeOf(tier.Key))
	}
	return song, nil
}

// FormatList expands cleaned songs into candidates, choosing the best
// available quality tier for each. Songs without any tier are kept.
func FormatList(songs []Song) []resource.TrackCandidate {
	out := make([]resource.TrackCandidate, 0, len(songs))
	for _, s := range songs {
		names := make([]string, 0, len(s.Singers))
		for _, singer := range s.Singers {
			names = append(names, singer.Name)
		}
		artist := strings.Join(names, ",")

		tier, size := pickTier(s.File)

		album := strings.Trim(s.Album.Title, " ")
		if album == "" {
			album = defaultAlbum
		}

		out = append(out, resource.TrackCandidate{
			SourceID:      s.ID,
			DisplayID:     s.Mid,
			Title:         s.Title,
			Artist:        artist,
			Album:         album,
			AlbumID:       s.Album.Mid,
			Year:          s.TimePublic,
			CoverURL:      fmt.Sprintf(coverTemplate, s.Album.Mid),
			SizeLabel:     fmt.Sprintf("%.2fMB", float64(size)/1024/1024),
			SizeBytes:     size,
			FormatTag:     tier.Ext,
			CodePrefix:    tier.Prefix,
			MediaID:       s.MediaMid,
			QualityNotice: tier.Label,
			ReadableText:  fmt.Sprintf("%s %s - %s | %s", s.TimePublic, artist, s.Title, tier.Label),
		})
	}
	return out
}

func pickTier(sizes map[string]int64) (Tier, int64) {
	for _, tier := range Tiers {
		if n := sizes[tier.Key]; n != 0 {
			return tier, n
		}
	}
	return Tier{}, 0
}

// FetchID3ByTitle searches the first page and formats the hits.
func (c *Client) FetchID3ByTitle(ctx context.Context, title string) ([]resource.TrackCandidate, error) {
	page, err := c.Search(ctx, title, 1, defaultPageSize)
	if err != nil {
		return nil, err
	}
	return FormatList(page.Songs), nil
}

// FetchLyric returns the decoded lyric for a song mid.
func (c *Client) FetchLyric(ctx context.Context, songID string) (string, error) {
	q := url.Values{
		"g_tk":        {"5381"},
		"format":      {"json"},
		"inCharset":   {"utf-8"},
		"outCharset":  {"utf-8"},
		"notice":      {"0"},
		"platform":    {"h5"},
		"needNewCode": {"1"},
		"ct":          {"121"},
		"cv":          {"0"},
		"songmid":     {songID},
	}
	body, err := c.transport.Get(ctx, c.lyricURL, q, http.Header{"User-Agent": {userAgent}})
	if err != nil {
		return "", fmt.Errorf("qmusic lyric request failed: %w", err)
	}

	var resp lyricResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: qmusic lyric: %v", resource.ErrDecode, err)
	}
	text, err := base64.StdEncoding.DecodeString(resp.Lyric)
	if err != nil {
		return "", fmt.Errorf("%w: qmusic lyric base64: %v", resource.ErrDecode, err)
	}
	return string(text), nil
}

var commBlock = map[string]string{
	"wid":                         "",
	"tmeAppID":                    "qqmusic",
	"authst":                      "",
	"uid":                         "",
	"gray":                        "0",
	"OpenUDID":                    "2d484d3157d4ed482e406e6c5fdcf8c3d3275deb",
	"ct":                          "6",
	"patch":                       "2",
	"psrf_qqopenid":               "",
	"sid":                         "",
	"psrf_access_token_expiresAt": "",
	"cv":                          "80600",
	"gzip":                        "0",
	"qq":                          "",
	"nettype":                     "2",
	"psrf_qqunionid":              "",
	"psrf_qqaccess_token":         "",
	"tmeLoginType":                "2",
}

// QQ Music API response types

type searchBlock struct {
	Data *searchData `json:"data"`
}

type searchData struct {
	Meta struct {
		Sum      resource.FlexInt `json:"sum"`
		NextPage resource.FlexInt `json:"nextpage"`
		CurPage  resource.FlexInt `json:"curpage"`
	} `json:"meta"`
	Body *struct {
		Song *struct {
			List []json.RawMessage `json:"list"`
		} `json:"song"`
	} `json:"body"`
}

type songItem struct {
	Album struct {
		Mid   resource.FlexString `json:"mid"`
		Title string              `json:"title"`
	} `json:"album"`
	DocID  resource.FlexString `json:"docid"`
	ID     resource.FlexString `json:"id"`
	Mid    resource.FlexString `json:"mid"`
	Title  string              `json:"title"`
	Singer []struct {
		Name string `json:"name"`
	} `json:"singer"`
	TimePublic string    `json:"time_public"`
	File       *fileInfo `json:"file"`
}

type fileInfo struct {
	MediaMid   resource.FlexString `json:"media_mid"`
	SizeHiRes  resource.FlexInt    `json:"size_hires"`
	SizeFLAC   resource.FlexInt    `json:"size_flac"`
	Size320MP3 resource.FlexInt    `json:"size_320mp3"`
	Size192OGG resource.FlexInt    `json:"size_192ogg"`
	Size128MP3 resource.FlexInt    `json:"size_128mp3"`
	Size96AAC  resource.FlexInt    `json:"size_96aac"`
}

func (f *fileInfo) sizeOf(key string) resource.FlexInt {
	switch key {
	case "size_hires":
		return f.SizeHiRes
	case "size_flac":
		return f.SizeFLAC
	case "size_320mp3":
		return f.Size320MP3
	case "size_192ogg":
		return f.Size192OGG
	case "size_128mp3":
		return f.Size128MP3
	case "size_96aac":
		return f.Size96AAC
	}
	return 0
}

type lyricResponse struct {
	Lyric string `json:"lyric"`
}
