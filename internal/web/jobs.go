package web

import (
	"context"
	"fmt"
	"net/http"
)

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.indexer == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, fail("503", "library is not configured"))
		return
	}

	job := s.jobMgr.CreateJob(JobScan, s.config.MusicLibrary)
	s.logger.Info("Created job %s: scan %s", job.ID, job.Path)
	go s.runJob(job.ID, s.scan)

	s.writeJSON(w, http.StatusOK, ok(jobToResponse(job)))
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, fail("503", "library is not configured"))
		return
	}

	var req LibraryJobRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		s.writeJSON(w, http.StatusOK, fail("400", "path is required"))
		return
	}

	job := s.jobMgr.CreateJob(JobImport, req.Path)
	s.logger.Info("Created job %s: import %s", job.ID, job.Path)
	go s.runJob(job.ID, s.importPath)

	s.writeJSON(w, http.StatusOK, ok(jobToResponse(job)))
}

// runJob executes work under a cancellable context derived from the
// server's, and records the outcome on the job.
func (s *Server) runJob(id string, work func(ctx context.Context, job Job) (string, error)) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	s.jobMgr.UpdateJob(id, func(j *Job) {
		j.Cancel = cancel
		j.Status = StatusRunning
	})
	job, err := s.jobMgr.GetJob(id)
	if err != nil {
		return
	}
	if job.Status.Done() {
		// Cancelled before it started.
		return
	}

	s.logger.Info("Starting job %s", id)
	summary, err := work(ctx, job)

	switch {
	case ctx.Err() != nil:
		s.logger.Warn("Job %s cancelled", id)
		s.jobMgr.UpdateJob(id, func(j *Job) {
			j.Status = StatusCancelled
			j.Summary = summary
		})
	case err != nil:
		s.logger.Error("Job %s failed: %v", id, err)
		s.jobMgr.UpdateJob(id, func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
			j.Summary = summary
		})
	default:
		s.logger.Info("Job %s completed: %s", id, summary)
		s.jobMgr.UpdateJob(id, func(j *Job) {
			j.Status = StatusCompleted
			j.Summary = summary
		})
	}
}

func (s *Server) scan(ctx context.Context, job Job) (string, error) {
	res, err := s.indexer.Scan(ctx, func(done, total int) {
		s.jobMgr.UpdateJob(job.ID, func(j *Job) {
			j.Progress = done
			j.Total = total
		})
	})
	return fmt.Sprintf("%d indexed, %d failed, %d removed", res.Indexed, res.Failed, res.Removed), err
}

func (s *Server) importPath(ctx context.Context, job Job) (string, error) {
	imp := *s.importer
	imp.OnProgress = func(done, total int) {
		s.jobMgr.UpdateJob(job.ID, func(j *Job) {
			j.Progress = done
			j.Total = total
		})
	}
	res, err := imp.Import(ctx, job.Path)
	return fmt.Sprintf("%d imported, %d skipped, %d failed", res.Imported, res.Skipped, res.Failed), err
}
