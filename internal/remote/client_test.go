package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentherd/agentherd/internal/errs"
)

func TestListSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"build","state":"running","metrics":{"prompt_count":3}}]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	sessions, err := c.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Name != "build" {
		t.Errorf("unexpected sessions: %+v", sessions)
	}
	if sessions[0].Metrics.PromptCount != 3 {
		t.Errorf("metrics not decoded: %+v", sessions[0].Metrics)
	}
}

func TestSendPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions/build/prompt" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["prompt"] != "hello" {
			t.Errorf("unexpected body: %v %v", req, err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":"hi there"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	response, err := c.SendPrompt(context.Background(), "build", "hello")
	if err != nil {
		t.Fatalf("SendPrompt failed: %v", err)
	}
	if response != "hi there" {
		t.Errorf("unexpected response: %q", response)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, errs.ErrSessionNotFound},
		{"busy", http.StatusConflict, errs.ErrPromptBusy},
		{"timeout", http.StatusGatewayTimeout, errs.ErrPromptTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			c := New(srv.URL)
			_, err := c.GetSession(context.Background(), "build")
			if !errs.Is(err, tt.want) {
				t.Errorf("status %d should map to %v, got %v", tt.status, tt.want, err)
			}
		})
	}
}
