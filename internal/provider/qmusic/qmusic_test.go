package qmusic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"musicmanager/internal/logger"
	"musicmanager/internal/resource"
)

func newTestClient(srv *httptest.Server) *Client {
	c := New(resource.NewTransport(), logger.Nop())
	c.searchURL = srv.URL + "/search"
	c.lyricURL = srv.URL + "/lyric"
	return c
}

func songWithSizes(sizes map[string]int64) Song {
	return Song{
		Album:      Album{Mid: "002abc", Title: "  Fantasy  "},
		ID:         "97773",
		Mid:        "0039MnYb0qxYhV",
		Title:      "晴天",
		Singers:    []Singer{{Name: "周杰伦"}},
		TimePublic: "2003-07-31",
		File:       sizes,
		MediaMid:   "0039MnYb0qxYhV",
	}
}

func TestFormatListOnlyOGG(t *testing.T) {
	const size = 5242880
	got := FormatList([]Song{songWithSizes(map[string]int64{"size_192ogg": size})})
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	c := got[0]
	if c.FormatTag != "ogg" {
		t.Errorf("FormatTag = %q, want ogg", c.FormatTag)
	}
	if c.QualityNotice != "高品质 OGG" {
		t.Errorf("QualityNotice = %q, want 高品质 OGG", c.QualityNotice)
	}
	if c.CodePrefix != "O600" {
		t.Errorf("CodePrefix = %q, want O600", c.CodePrefix)
	}
	if c.SizeLabel != "5.00MB" {
		t.Errorf("SizeLabel = %q, want 5.00MB", c.SizeLabel)
	}
	if c.SizeBytes != size {
		t.Errorf("SizeBytes = %d, want %d", c.SizeBytes, size)
	}
}

func TestFormatListFLACBeats320(t *testing.T) {
	got := FormatList([]Song{songWithSizes(map[string]int64{
		"size_flac":   26887741,
		"size_320mp3": 10000000,
	})})
	c := got[0]
	if c.FormatTag != "flac" || c.CodePrefix != "F000" {
		t.Errorf("tier = %s/%s, want F000/flac", c.CodePrefix, c.FormatTag)
	}
	if c.QualityNotice != "无损品质 FLAC" {
		t.Errorf("QualityNotice = %q", c.QualityNotice)
	}
	if c.SizeLabel != "25.64MB" {
		t.Errorf("SizeLabel = %q, want 25.64MB", c.SizeLabel)
	}
}

func TestFormatListPriority(t *testing.T) {
	all := map[string]int64{}
	for _, tier := range Tiers {
		all[tier.Key] = 1024 * 1024
	}
	for i, want := range Tiers {
		sizes := map[string]int64{}
		for _, tier := range Tiers[i:] {
			sizes[tier.Key] = all[tier.Key]
		}
		c := FormatList([]Song{songWithSizes(sizes)})[0]
		if c.CodePrefix != want.Prefix {
			t.Errorf("tiers from %s: prefix = %q, want %q", want.Key, c.CodePrefix, want.Prefix)
		}
	}
}

func TestFormatListNoTier(t *testing.T) {
	got := FormatList([]Song{songWithSizes(map[string]int64{})})
	if len(got) != 1 {
		t.Fatalf("candidate without a tier must still be emitted, got %d", len(got))
	}
	c := got[0]
	if c.FormatTag != "" || c.CodePrefix != "" || c.QualityNotice != "" {
		t.Errorf("tier fields = %q/%q/%q, want empty", c.CodePrefix, c.FormatTag, c.QualityNotice)
	}
	if c.SizeBytes != 0 || c.SizeLabel != "0.00MB" {
		t.Errorf("size = %d %q, want 0 0.00MB", c.SizeBytes, c.SizeLabel)
	}
}

func TestFormatListFields(t *testing.T) {
	s := songWithSizes(map[string]int64{"size_128mp3": 4194304})
	s.Singers = append(s.Singers, Singer{Name: "费玉清"})
	c := FormatList([]Song{s})[0]

	if c.SourceID != "97773" {
		t.Errorf("SourceID = %q", c.SourceID)
	}
	if c.DisplayID != "0039MnYb0qxYhV" {
		t.Errorf("DisplayID = %q", c.DisplayID)
	}
	if c.Artist != "周杰伦,费玉清" {
		t.Errorf("Artist = %q", c.Artist)
	}
	if c.Album != "Fantasy" {
		t.Errorf("Album = %q, want trimmed Fantasy", c.Album)
	}
	if c.Year != "2003-07-31" {
		t.Errorf("Year = %q", c.Year)
	}
	if c.CoverURL != "http://y.qq.com/music/photo_new/T002R300x300M000002abc.jpg" {
		t.Errorf("CoverURL = %q", c.CoverURL)
	}
	want := "2003-07-31 周杰伦,费玉清 - 晴天 | 标准品质 128kbps"
	if c.ReadableText != want {
		t.Errorf("ReadableText = %q, want %q", c.ReadableText, want)
	}
}

func TestFormatListBlankAlbum(t *testing.T) {
	s := songWithSizes(nil)
	s.Album.Title = "   "
	if c := FormatList([]Song{s})[0]; c.Album != "未分类专辑" {
		t.Errorf("Album = %q, want 未分类专辑", c.Album)
	}
}

const searchBody = `{
  "code": 0,
  "music.search.SearchCgiService.DoSearchForQQMusicDesktop": {
    "code": 0,
    "data": {
      "meta": {"sum": 2, "nextpage": -1, "curpage": 1},
      "body": {"song": {"list": [
        {
          "album": {"mid": "000MkMni19ClKG", "title": "叶惠美"},
          "docid": "1", "id": 97773, "mid": "0039MnYb0qxYhV", "title": "晴天",
          "singer": [{"name": "周杰伦"}], "time_public": "2003-07-31",
          "file": {"media_mid": "0039MnYb0qxYhV", "size_hires": 0, "size_flac": 26887741,
                   "size_320mp3": 10000000, "size_192ogg": 0, "size_128mp3": 4000000, "size_96aac": 0}
        },
        {"album": "broken", "id": 2, "mid": "x", "title": "bad"}
      ]}}
    }
  }
}`

func TestSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Accept-Language") != "zh-CN,zh-Hans;q=0.9" {
			t.Errorf("Accept-Language = %q", r.Header.Get("Accept-Language"))
		}
		if r.Header.Get("Referer") != "https://y.qq.com/portal/profile.html" {
			t.Errorf("Referer = %q", r.Header.Get("Referer"))
		}

		data, _ := io.ReadAll(r.Body)
		var req map[string]json.RawMessage
		if err := json.Unmarshal(data, &req); err != nil {
			t.Errorf("request body: %v", err)
			return
		}
		if _, ok := req["comm"]; !ok {
			t.Error("request missing comm block")
		}
		var block struct {
			Module string `json:"module"`
			Method string `json:"method"`
			Param  struct {
				NumPerPage int    `json:"num_per_page"`
				PageNum    int    `json:"page_num"`
				Query      string `json:"query"`
				SearchID   string `json:"searchid"`
			} `json:"param"`
		}
		if err := json.Unmarshal(req[searchKey], &block); err != nil {
			t.Errorf("search block: %v", err)
			return
		}
		if block.Module != "music.search.SearchCgiService" || block.Method != "DoSearchForQQMusicDesktop" {
			t.Errorf("module/method = %s/%s", block.Module, block.Method)
		}
		if block.Param.Query != "晴天" || block.Param.NumPerPage != 15 || block.Param.PageNum != 1 {
			t.Errorf("param = %+v", block.Param)
		}
		if block.Param.SearchID == "" {
			t.Error("searchid is empty")
		}
		w.Write([]byte(searchBody))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv)
	page, err := c.Search(context.Background(), "晴天", 1, defaultPageSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 2 || page.Next != -1 || page.Current != 1 || page.Key != "晴天" {
		t.Errorf("page meta = %+v", page)
	}
	if len(page.Songs) != 1 {
		t.Fatalf("expected malformed entry to be skipped, got %d songs", len(page.Songs))
	}
	if page.Songs[0].Name != "晴天" || page.Songs[0].ID != "97773" {
		t.Errorf("song = %+v", page.Songs[0])
	}

	results, err := c.FetchID3ByTitle(context.Background(), "晴天")
	if err != nil {
		t.Fatalf("FetchID3ByTitle: %v", err)
	}
	if len(results) != 1 || results[0].FormatTag != "flac" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearchMissingBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchID3ByTitle(context.Background(), "x")
	if !errors.Is(err, resource.ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

func TestFetchLyric(t *testing.T) {
	lyric := "[00:00.00]晴天\n[00:01.00]周杰伦"
	mux := http.NewServeMux()
	mux.HandleFunc("/lyric", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("songmid") != "0039MnYb0qxYhV" {
			t.Errorf("songmid = %q", q.Get("songmid"))
		}
		if q.Get("g_tk") != "5381" || q.Get("platform") != "h5" || q.Get("format") != "json" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"retcode": 0,
			"lyric":   base64.StdEncoding.EncodeToString([]byte(lyric)),
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := newTestClient(srv).FetchLyric(context.Background(), "0039MnYb0qxYhV")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != lyric {
		t.Errorf("lyric = %q, want %q", got, lyric)
	}
}

func TestFetchLyricMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retcode":-1901}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv).FetchLyric(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("lyric = %q, want empty", got)
	}
}

func TestFetchLyricBadBase64(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lyric":"!!!"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchLyric(context.Background(), "x")
	if !errors.Is(err, resource.ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}
