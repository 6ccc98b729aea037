package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"musicmanager/internal/config"
	"musicmanager/internal/gateway"
	"musicmanager/internal/library"
	"musicmanager/internal/logger"
)

// redirectTransport sends every provider request to a local test server.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

type envelope struct {
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Result  bool            `json:"result"`
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.DefaultConfig()
	cfg.MusicLibrary = t.TempDir()
	cfg.DataDir = t.TempDir()

	s := NewServer(ctx, NewJobManager(time.Hour), cfg, logger.Nop(), opts...)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func post(t *testing.T, ts *httptest.Server, path string, body any) (int, envelope) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, env
}

func get(t *testing.T, ts *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func TestTokenAndRecord(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/token/", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != `{"token":123}` {
		t.Errorf("token body = %s", body)
	}

	code, body := get(t, ts, "/api/record/")
	if code != http.StatusOK || strings.TrimSpace(string(body)) != `{"record":123}` {
		t.Errorf("record = %d %s", code, body)
	}
}

func TestUserInfoAndHealth(t *testing.T) {
	_, ts := newTestServer(t)

	_, body := get(t, ts, "/user/info")
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatal(err)
	}
	if !env.Result || env.Message != "success" || !strings.Contains(string(env.Data), `"username":"admin"`) {
		t.Errorf("user info = %s", body)
	}

	code, body := get(t, ts, "/healthz")
	if code != http.StatusOK || !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("healthz = %d %s", code, body)
	}
}

func TestFileList(t *testing.T) {
	_, ts := newTestServer(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "宋冬野-莉莉安.flac"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "专辑"), 0755); err != nil {
		t.Fatal(err)
	}

	_, env := post(t, ts, "/api/file_list/", FileListRequest{FilePath: dir})
	if env.Code != "200" || !env.Result {
		t.Fatalf("envelope = %+v", env)
	}
	var roots []struct {
		ID       int    `json:"id"`
		Icon     string `json:"icon"`
		Children []struct {
			Name     string `json:"name"`
			Icon     string `json:"icon"`
			Children *[]any `json:"children"`
		} `json:"children"`
	}
	if err := json.Unmarshal(env.Data, &roots); err != nil {
		t.Fatal(err)
	}
	if len(roots) != 1 || roots[0].ID != 0 || roots[0].Icon != "icon-folder" || len(roots[0].Children) != 2 {
		t.Fatalf("roots = %+v", roots)
	}
	for _, c := range roots[0].Children {
		isDir := c.Icon == "icon-folder"
		if isDir != (c.Children != nil) {
			t.Errorf("child %q: icon %s, children %v", c.Name, c.Icon, c.Children)
		}
	}

	code, env := post(t, ts, "/api/file_list/", FileListRequest{FilePath: filepath.Join(dir, "missing")})
	if code != http.StatusOK || env.Code != "400" || env.Result {
		t.Errorf("missing dir = %d %+v", code, env)
	}
}

func TestMusicID3Guards(t *testing.T) {
	_, ts := newTestServer(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "song.lrc"), []byte("[00:00.00]x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "song.m4a"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		req      MusicID3Request
		wantCode string
	}{
		{"lyric sidecar", MusicID3Request{FilePath: dir, FileName: "song.lrc"}, "200"},
		{"folder itself", MusicID3Request{FilePath: dir, FileName: dir}, "200"},
		{"missing file", MusicID3Request{FilePath: dir, FileName: "nope.flac"}, "400"},
		{"unsupported type", MusicID3Request{FilePath: dir, FileName: "song.m4a"}, "400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, env := post(t, ts, "/api/music_id3/", tt.req)
			if env.Code != tt.wantCode {
				t.Errorf("code = %q, want %q (%s)", env.Code, tt.wantCode, env.Message)
			}
			if tt.wantCode == "200" && string(env.Data) != "null" {
				t.Errorf("data = %s, want null", env.Data)
			}
		})
	}
}

func TestFetchID3ByTitleUnknownResource(t *testing.T) {
	_, ts := newTestServer(t)
	code, env := post(t, ts, "/api/fetch_id3_by_title/", FetchID3ByTitleRequest{Title: "x", Resource: "spotify"})
	if code != http.StatusUnprocessableEntity || env.Code != "422" || env.Result {
		t.Errorf("unknown resource = %d %+v", code, env)
	}

	code, _ = post(t, ts, "/api/fetch_lyric/", FetchLyricRequest{SongID: "1", Resource: ""})
	if code != http.StatusUnprocessableEntity {
		t.Errorf("empty resource status = %d, want 422", code)
	}
}

func TestFetchID3ByTitleMigu(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("keyword") != "程响 时光洪流" {
			t.Errorf("keyword = %q", r.URL.Query().Get("keyword"))
		}
		w.Write([]byte(`{"musics":[{"copyrightId":"320315208","songName":"时光洪流","singerName":"程响"}]}`))
	}))
	defer upstream.Close()
	target, _ := url.Parse(upstream.URL)

	_, ts := newTestServer(t, WithGatewayOptions(gateway.WithRoundTripper(redirectTransport{target})))

	// An empty title falls back to the file name.
	_, env := post(t, ts, "/api/fetch_id3_by_title/", FetchID3ByTitleRequest{
		Resource: "migu",
		FullPath: "/music/程响-时光洪流.flac",
	})
	if env.Code != "200" {
		t.Fatalf("envelope = %+v", env)
	}
	var results []map[string]any
	if err := json.Unmarshal(env.Data, &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0]["source_id"] != "320315208" || results[0]["year"] != "" {
		t.Errorf("results = %v", results)
	}
}

func TestFetchDegradesToEmpty(t *testing.T) {
	_, ts := newTestServer(t)

	_, env := post(t, ts, "/api/fetch_id3_by_title/", FetchID3ByTitleRequest{Title: "x", Resource: "kugou"})
	if env.Code != "200" || string(env.Data) != "[]" {
		t.Errorf("placeholder search = %+v", env)
	}

	_, env = post(t, ts, "/api/fetch_lyric/", FetchLyricRequest{SongID: "1", Resource: "netease"})
	if env.Code != "200" || string(env.Data) != `""` {
		t.Errorf("placeholder lyric = %+v", env)
	}
}

func TestUpdateID3SkipsMissing(t *testing.T) {
	_, ts := newTestServer(t)
	_, env := post(t, ts, "/api/update_id3", map[string]any{
		"music_id3_info": []map[string]any{{"file_full_path": "/nonexistent/a.flac", "title": "x"}},
	})
	if env.Code != "200" {
		t.Fatalf("envelope = %+v", env)
	}
	var res UpdateID3Result
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Updated != 0 || len(res.Skipped) != 1 || len(res.Failed) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	post(t, ts, "/api/fetch_lyric/", FetchLyricRequest{SongID: "1", Resource: "kugou"})

	code, body := get(t, ts, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status = %d", code)
	}
	for _, want := range []string{
		`musicmanager_provider_calls_total{operation="fetch_lyric",outcome="error",provider="kugou"} 1`,
		`musicmanager_provider_errors_total{kind="unimplemented",operation="fetch_lyric",provider="kugou"} 1`,
		"musicmanager_http_requests_total",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestScanWithoutLibrary(t *testing.T) {
	_, ts := newTestServer(t)
	code, env := post(t, ts, "/api/scan", struct{}{})
	if code != http.StatusServiceUnavailable || env.Result {
		t.Errorf("scan without library = %d %+v", code, env)
	}
}

func newLibraryServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	db, err := library.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := library.Init(db); err != nil {
		t.Fatal(err)
	}
	store := library.NewStore(db)
	lib := t.TempDir()
	ix := library.NewIndexer(store, lib, logger.Nop())
	imp := library.NewImporter(store, lib, t.TempDir(), logger.Nop())
	return newTestServer(t, WithLibrary(store, ix, imp))
}

func waitJob(t *testing.T, s *Server, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.jobMgr.GetJob(id)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status.Done() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

func TestScanJob(t *testing.T) {
	s, ts := newLibraryServer(t)

	_, env := post(t, ts, "/api/scan", struct{}{})
	if env.Code != "200" {
		t.Fatalf("envelope = %+v", env)
	}
	var job JobResponse
	if err := json.Unmarshal(env.Data, &job); err != nil {
		t.Fatal(err)
	}
	if job.Kind != JobScan || !strings.HasPrefix(job.ID, "job_") {
		t.Errorf("job = %+v", job)
	}

	done := waitJob(t, s, job.ID)
	if done.Status != StatusCompleted || done.Summary != "0 indexed, 0 failed, 0 removed" {
		t.Errorf("finished job = %+v", done)
	}

	code, body := get(t, ts, "/api/jobs/"+job.ID)
	if code != http.StatusOK || !strings.Contains(string(body), `"status":"completed"`) {
		t.Errorf("get job = %d %s", code, body)
	}
	code, body = get(t, ts, "/api/jobs")
	if code != http.StatusOK || !strings.Contains(string(body), job.ID) {
		t.Errorf("list jobs = %d %s", code, body)
	}
	code, _ = get(t, ts, "/api/jobs/job_missing")
	if code != http.StatusNotFound {
		t.Errorf("missing job status = %d", code)
	}
}

func TestImportJobMissingPath(t *testing.T) {
	s, ts := newLibraryServer(t)

	_, env := post(t, ts, "/api/import", LibraryJobRequest{})
	if env.Code != "400" {
		t.Errorf("empty path = %+v", env)
	}

	_, env = post(t, ts, "/api/import", LibraryJobRequest{Path: filepath.Join(t.TempDir(), "nope")})
	var job JobResponse
	if err := json.Unmarshal(env.Data, &job); err != nil {
		t.Fatal(err)
	}
	done := waitJob(t, s, job.ID)
	if done.Status != StatusFailed || done.Error == "" {
		t.Errorf("job = %+v, want failed", done)
	}
}

func TestImportJobReportsTotal(t *testing.T) {
	s, ts := newLibraryServer(t)

	in := t.TempDir()
	for _, name := range []string{"a-b.flac", "c-d.mp3", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(in, name), []byte("not audio"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	_, env := post(t, ts, "/api/import", LibraryJobRequest{Path: in})
	var job JobResponse
	if err := json.Unmarshal(env.Data, &job); err != nil {
		t.Fatal(err)
	}
	done := waitJob(t, s, job.ID)
	if done.Status != StatusCompleted || done.Summary != "0 imported, 0 skipped, 2 failed" {
		t.Errorf("finished job = %+v", done)
	}
	if done.Progress != 2 || done.Total != 2 {
		t.Errorf("progress = %d/%d, want 2/2", done.Progress, done.Total)
	}
}

func TestCancelJob(t *testing.T) {
	s, ts := newTestServer(t)
	job := s.jobMgr.CreateJob(JobScan, "")

	_, env := post(t, ts, "/api/jobs/"+job.ID+"/cancel", struct{}{})
	if env.Code != "200" || !strings.Contains(string(env.Data), `"status":"cancelled"`) {
		t.Errorf("cancel = %+v", env)
	}
	code, _ := post(t, ts, "/api/jobs/job_missing/cancel", struct{}{})
	if code != http.StatusNotFound {
		t.Errorf("cancel missing = %d", code)
	}
}

func TestWebSocketStreamsJob(t *testing.T) {
	s, ts := newTestServer(t)
	job := s.jobMgr.CreateJob(JobImport, "/incoming")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?job_id=" + job.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first JobResponse
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	if first.ID != job.ID || first.Status != StatusPending {
		t.Errorf("initial = %+v", first)
	}

	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		j.Status = StatusCompleted
		j.Summary = "1 imported, 0 skipped, 0 failed"
	})

	var last JobResponse
	if err := conn.ReadJSON(&last); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if last.Status != StatusCompleted || last.Summary == "" {
		t.Errorf("update = %+v", last)
	}

	// The server closes the stream once the job is done.
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to close after completion")
	}
}

func TestWebSocketUnknownJob(t *testing.T) {
	_, ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?job_id=job_missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown job")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v", resp)
	}
}
