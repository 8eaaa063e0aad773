package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTranscribe_SendsMultipartAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(f)
		if hdr.Filename != "a.m4a" || string(b) != "audio" {
			t.Errorf("unexpected upload %q %q", hdr.Filename, b)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "hello there", "duration": 12.5})
	}))
	defer srv.Close()

	c := New(Config{TranscribeURL: srv.URL, APIKey: "k"})
	got, err := c.Transcribe(context.Background(), "a.m4a", strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got.Text != "hello there" || got.DurationSeconds != 12.5 {
		t.Fatalf("unexpected transcription %+v", got)
	}
}

func TestComplete_ReturnsFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "m" || len(req.Messages) != 2 || req.Messages[1].Content != "transcript" {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"SUMMARY: ok"}}]}`)
	}))
	defer srv.Close()

	c := New(Config{LLMURL: srv.URL, Model: "m", RequestsPerSecond: 50})
	got, err := c.Complete(context.Background(), "system", "transcript")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "SUMMARY: ok" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestComplete_UpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/500":
			http.Error(w, "overloaded", http.StatusInternalServerError)
		case "/empty":
			_, _ = io.WriteString(w, `{"choices":[]}`)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		}
	}))
	defer srv.Close()

	for _, path := range []string{"/500", "/empty", "/slow"} {
		c := New(Config{LLMURL: srv.URL + path, Timeout: 50 * time.Millisecond})
		if _, err := c.Complete(context.Background(), "s", "u"); !errors.Is(err, ErrUpstream) {
			t.Fatalf("%s: expected ErrUpstream, got %v", path, err)
		}
	}
}

func TestTranscribe_Unreachable(t *testing.T) {
	c := New(Config{TranscribeURL: "http://127.0.0.1:1/transcribe", Timeout: time.Second})
	if _, err := c.Transcribe(context.Background(), "a.m4a", strings.NewReader("x")); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}
