package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// handleExecute streams a fake long-running task as server-sent events:
// one "progress" event per step followed by "done".
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	acct := accountFrom(r)
	var req struct {
		Name  string `json:"name"`
		Steps int    `json:"steps"`
	}
	// empty bodies run the default task
	_ = decodeBody(r, &req)
	if req.Steps <= 0 || req.Steps > 100 {
		req.Steps = 5
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	taskID := uuid.NewString()
	send := func(event string, id int, v any) {
		data, _ := json.Marshal(v)
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
		flusher.Flush()
	}

	ticker := time.NewTicker(max(s.TaskInterval, time.Millisecond))
	defer ticker.Stop()

	for step := 1; step <= req.Steps; step++ {
		select {
		case <-r.Context().Done():
			s.Logger.Info("task cancelled by client", "component", "fakeapi", "task", taskID, "step", step)
			return
		case <-ticker.C:
		}
		send("progress", step, map[string]any{"task_id": taskID, "name": req.Name, "step": step, "total": req.Steps})
	}
	send("done", req.Steps+1, map[string]any{"task_id": taskID, "status": "completed"})
	s.Logger.Info("task completed", "component", "fakeapi", "task", taskID, "user", acct.user.ID)
}
