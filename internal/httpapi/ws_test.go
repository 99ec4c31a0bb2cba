package httpapi

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type wsEvent struct {
	Type    string `json:"type"`
	Stage   string `json:"stage"`
	Attempt int    `json:"attempt"`
	Code    string `json:"code"`
	Error   string `json:"error"`
	generateResponse
}

func dialWS(t *testing.T, e *testEnv, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") +
		"/v1/sessions/" + sessionID + "/generate/ws?access_token=" + e.token

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	return conn
}

func TestGenerateWSStreamsProgressThenResult(t *testing.T) {
	e := newTestEnv(t, validScript)
	id := e.createSession(t, "main")
	conn := dialWS(t, e, id)

	if err := conn.WriteJSON(map[string]string{"prompt": "draw a circle"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var stages []string
	for {
		var ev wsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON() error = %v (stages so far: %v)", err, stages)
		}
		switch ev.Type {
		case "progress":
			stages = append(stages, ev.Stage)
		case "result":
			if !ev.Success || ev.Scene != "TestScene" {
				t.Fatalf("result = %+v, want successful TestScene", ev)
			}
			if len(stages) == 0 {
				t.Fatalf("result arrived with no progress events")
			}
			for _, want := range []string{"generate", "validate", "render", "success"} {
				if !containsStage(stages, want) {
					t.Fatalf("stages = %v, missing %q", stages, want)
				}
			}
			return
		case "error":
			t.Fatalf("unexpected error event: %+v", ev)
		default:
			t.Fatalf("unknown event type %q", ev.Type)
		}
	}
}

func TestGenerateWSRejectsEmptyPrompt(t *testing.T) {
	e := newTestEnv(t, validScript)
	id := e.createSession(t, "main")
	conn := dialWS(t, e, id)

	if err := conn.WriteJSON(map[string]string{"prompt": "  "}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var ev wsEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if ev.Type != "error" || ev.Code != "invalid_request" {
		t.Fatalf("event = %+v, want invalid_request error", ev)
	}
}

func TestGenerateWSReportsUnknownSession(t *testing.T) {
	e := newTestEnv(t, validScript)
	conn := dialWS(t, e, "missing-session")

	if err := conn.WriteJSON(map[string]string{"prompt": "draw a circle"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	for {
		var ev wsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if ev.Type == "progress" {
			continue
		}
		if ev.Type != "error" || ev.Code != "not_found" {
			t.Fatalf("event = %+v, want not_found error", ev)
		}
		return
	}
}

func TestGenerateWSRequiresToken(t *testing.T) {
	e := newTestEnv(t, validScript)
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/v1/sessions/x/generate/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatalf("Dial() without token succeeded")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("handshake response = %+v, want 401", resp)
	}
	resp.Body.Close()
}

func containsStage(stages []string, want string) bool {
	for _, s := range stages {
		if s == want {
			return true
		}
	}
	return false
}
