package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"musicmanager/internal/files"
	"musicmanager/internal/gateway"
	"musicmanager/internal/library"
	"musicmanager/internal/metadata"
	"musicmanager/internal/resource"
)

// Response is the envelope every API endpoint answers with.
type Response struct {
	Code    string `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	Result  bool   `json:"result"`
}

func ok(data any) Response {
	return Response{Code: "200", Data: data, Message: "success", Result: true}
}

func fail(code, message string) Response {
	return Response{Code: code, Message: message, Result: false}
}

type FileListRequest struct {
	FilePath     string   `json:"file_path"`
	SortedFields []string `json:"sorted_fields"`
}

type MusicID3Request struct {
	FilePath string `json:"file_path"`
	FileName string `json:"file_name"`
}

type FetchID3ByTitleRequest struct {
	Title    string `json:"title"`
	Resource string `json:"resource"`
	FullPath string `json:"full_path"`
}

type FetchLyricRequest struct {
	SongID   string `json:"song_id"`
	Resource string `json:"resource"`
}

type UpdateID3Request struct {
	MusicID3Info []metadata.MusicID3 `json:"music_id3_info"`
}

type UpdateID3Result struct {
	Updated int      `json:"updated"`
	Skipped []string `json:"skipped"`
	Failed  []string `json:"failed"`
}

type LibraryJobRequest struct {
	Path string `json:"path"`
}

type JobResponse struct {
	ID          string    `json:"id"`
	Kind        JobKind   `json:"kind"`
	Path        string    `json:"path,omitempty"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	Summary     string    `json:"summary,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   string    `json:"created_at"`
	StartedAt   *string   `json:"started_at,omitempty"`
	CompletedAt *string   `json:"completed_at,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response: %v", err)
	}
}

// decode reads a JSON body into v, answering 422 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, fail("422", "invalid request body: "+err.Error()))
		return false
	}
	return true
}

// provider parses a resource token, answering 422 for unknown ones.
func (s *Server) provider(w http.ResponseWriter, token string) (resource.Provider, bool) {
	p, err := resource.ParseProvider(token)
	if err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, fail("422", err.Error()))
		return "", false
	}
	return p, true
}

func (s *Server) newGateway(p resource.Provider) (*gateway.Gateway, error) {
	opts := append([]gateway.Option{gateway.WithMetrics(s.gwMetrics)}, s.gwOpts...)
	return gateway.New(p, s.logger, opts...)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]int{"token": 123})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]int{"record": 123})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ok(map[string]string{"username": "admin", "role": "admin"}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "musicmanager"})
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	var req FileListRequest
	if !s.decode(w, r, &req) {
		return
	}

	root, err := files.List(req.FilePath, req.SortedFields)
	if err != nil {
		s.writeJSON(w, http.StatusOK, fail("400", err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, ok([]files.File{root}))
}

func (s *Server) handleMusicID3(w http.ResponseWriter, r *http.Request) {
	var req MusicID3Request
	if !s.decode(w, r, &req) {
		return
	}

	full := filepath.Join(req.FilePath, req.FileName)
	// Sidecars and the folder itself carry no tags.
	if metadata.IsSidecar(full) || req.FilePath == req.FileName {
		s.writeJSON(w, http.StatusOK, ok(nil))
		return
	}
	if _, err := os.Stat(full); err != nil || !metadata.IsAudio(full) {
		s.writeJSON(w, http.StatusOK, fail("400", "file does not exist or is not a supported audio file"))
		return
	}

	m, err := metadata.ReadID3(full)
	if err != nil {
		s.logger.Warn("Failed to read tags of %s: %v", full, err)
		s.writeJSON(w, http.StatusOK, fail("400", err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, ok(m))
}

func (s *Server) handleFetchID3ByTitle(w http.ResponseWriter, r *http.Request) {
	var req FetchID3ByTitleRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, valid := s.provider(w, req.Resource)
	if !valid {
		return
	}

	title := strings.TrimSpace(req.Title)
	switch {
	case p == resource.AcoustID:
		title = req.FullPath
	case title == "" && req.FullPath != "":
		title = metadata.QueryFromFilename(req.FullPath).Keyword()
	}

	gw, err := s.newGateway(p)
	if err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, fail("422", err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, ok(gw.FetchID3ByTitle(r.Context(), title)))
}

func (s *Server) handleFetchLyric(w http.ResponseWriter, r *http.Request) {
	var req FetchLyricRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, valid := s.provider(w, req.Resource)
	if !valid {
		return
	}

	gw, err := s.newGateway(p)
	if err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, fail("422", err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, ok(gw.FetchLyric(r.Context(), req.SongID)))
}

func (s *Server) handleUpdateID3(w http.ResponseWriter, r *http.Request) {
	var req UpdateID3Request
	if !s.decode(w, r, &req) {
		return
	}

	res := UpdateID3Result{Skipped: []string{}, Failed: []string{}}
	for _, m := range req.MusicID3Info {
		if _, err := os.Stat(m.FileFullPath); err != nil {
			s.logger.Warn("File does not exist: %s", m.FileFullPath)
			res.Skipped = append(res.Skipped, m.FileFullPath)
			continue
		}
		if err := m.Save(); err != nil {
			s.logger.Error("Failed to update %s: %v", m.FileFullPath, err)
			res.Failed = append(res.Failed, m.FileFullPath)
			continue
		}
		res.Updated++
		s.refreshIndex(r, m.FileFullPath)
	}
	s.writeJSON(w, http.StatusOK, ok(res))
}

// refreshIndex re-reads an edited file into the library table when it is
// already indexed there.
func (s *Server) refreshIndex(r *http.Request, path string) {
	if s.store == nil {
		return
	}
	old, err := s.store.MusicByPath(r.Context(), path)
	if errors.Is(err, library.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("Failed to look up %s in library: %v", path, err)
		return
	}

	m, err := metadata.ReadID3(path)
	if err != nil {
		s.logger.Warn("Failed to re-read %s: %v", path, err)
		return
	}
	m.UUID = old.UUID
	if err := s.store.SaveMusic(r.Context(), &m); err != nil {
		s.logger.Warn("Failed to refresh library row for %s: %v", path, err)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobMgr.ListJobs()
	responses := make([]*JobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = jobToResponse(job)
	}
	s.writeJSON(w, http.StatusOK, ok(responses))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobMgr.GetJob(r.PathValue("id"))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, fail("404", err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, ok(jobToResponse(job)))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.jobMgr.GetJob(id)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, fail("404", err.Error()))
		return
	}

	if job.Cancel != nil {
		job.Cancel()
	}
	s.jobMgr.UpdateJob(id, func(j *Job) {
		j.Status = StatusCancelled
	})

	job, _ = s.jobMgr.GetJob(id)
	s.writeJSON(w, http.StatusOK, ok(jobToResponse(job)))
}

func jobToResponse(job Job) *JobResponse {
	resp := &JobResponse{
		ID:        job.ID,
		Kind:      job.Kind,
		Path:      job.Path,
		Status:    job.Status,
		Progress:  job.Progress,
		Total:     job.Total,
		Summary:   job.Summary,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format("2006-01-02 15:04:05"),
	}

	if job.StartedAt != nil {
		started := job.StartedAt.Format("2006-01-02 15:04:05")
		resp.StartedAt = &started
	}

	if job.CompletedAt != nil {
		completed := job.CompletedAt.Format("2006-01-02 15:04:05")
		resp.CompletedAt = &completed
	}

	return resp
}
