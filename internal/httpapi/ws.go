package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/scenegen/internal/auth"
)

type wsProgressEvent struct {
	Type    string `json:"type"`
	Stage   string `json:"stage"`
	Attempt int    `json:"attempt"`
	Detail  string `json:"detail,omitempty"`
}

type wsResultEvent struct {
	Type string `json:"type"`
	generateResponse
}

type wsErrorEvent struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// handleGenerateWS runs one generation request over a websocket, streaming
// pipeline stage events as they happen. The client sends a single
// {"prompt": ...} message and receives progress events followed by a
// result or error event.
func (s *Server) handleGenerateWS(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	sessionID := chi.URLParam(r, "id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var req generateRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(wsErrorEvent{Type: "error", Code: "invalid_request", Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		_ = conn.WriteJSON(wsErrorEvent{Type: "error", Code: "invalid_request", Error: "prompt cannot be empty"})
		return
	}
	if !s.limiter.allow(userID) {
		_ = conn.WriteJSON(wsErrorEvent{Type: "error", Code: "rate_limited", Error: "too many generation requests"})
		return
	}

	// Progress callbacks fire synchronously from the pipeline, so this
	// single goroutine stays the only websocket writer.
	onProgress := func(stage string, attempt int, detail string) {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		_ = conn.WriteJSON(wsProgressEvent{Type: "progress", Stage: stage, Attempt: attempt, Detail: detail})
	}

	res, err := s.svc.Generate(r.Context(), sessionID, userID, req.Prompt, onProgress)
	if err != nil {
		_ = conn.WriteJSON(wsErrorEvent{Type: "error", Code: domainErrorCode(err), Error: err.Error()})
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteJSON(wsResultEvent{
		Type: "result",
		generateResponse: generateResponse{
			Script:     res.Script,
			Scene:      res.Scene,
			VideoURL:   videoURL(res.Scene, res.Success),
			Attempts:   res.Attempts,
			Success:    res.Success,
			FinalError: res.FinalError(),
		},
	})

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
