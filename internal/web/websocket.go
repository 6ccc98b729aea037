package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The frontend may be served from another origin in development.
	},
}

// handleWebSocket streams a job's state until it finishes or the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		s.writeJSON(w, http.StatusBadRequest, fail("400", "job_id is required"))
		return
	}
	if _, err := s.jobMgr.GetJob(jobID); err != nil {
		s.writeJSON(w, http.StatusNotFound, fail("404", err.Error()))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Subscribe before reading the initial state so no update is lost.
	updates := s.jobMgr.Subscribe(jobID)
	defer s.jobMgr.Unsubscribe(jobID, updates)

	job, err := s.jobMgr.GetJob(jobID)
	if err != nil {
		return
	}
	if err := s.writeJob(conn, job); err != nil || job.Status.Done() {
		return
	}

	// Drain client frames so close and pong messages are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			if err := s.writeJob(conn, job); err != nil {
				s.logger.Error("Failed to write WebSocket message: %v", err)
				return
			}
			if job.Status.Done() {
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}

		case <-closed:
			return

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) writeJob(conn *websocket.Conn, job Job) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(jobToResponse(job))
}
