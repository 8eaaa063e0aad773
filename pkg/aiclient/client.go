// Package aiclient talks to the transcription and language-model services.
// Both are plain request/response HTTP APIs; callers own prompts and parsing.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrUpstream wraps every transport, status and decode failure.
var ErrUpstream = errors.New("aiclient: upstream service error")

type Config struct {
	TranscribeURL string
	LLMURL        string
	APIKey        string
	Model         string

	// TranscribeModel is sent as the "model" form field when set.
	TranscribeModel string

	// Timeout bounds a single request. Zero means 120s.
	Timeout time.Duration

	// RequestsPerSecond limits LLM calls across all passes. Zero disables it.
	RequestsPerSecond float64
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	c := &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 4 {
			burst = 4
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// Transcription is the speech-to-text response.
type Transcription struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration"`
}

// Transcribe uploads audio as multipart form field "file".
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (Transcription, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Transcription{}, err
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return Transcription{}, fmt.Errorf("read recording: %w", err)
	}
	if c.cfg.TranscribeModel != "" {
		_ = mw.WriteField("model", c.cfg.TranscribeModel)
	}
	if err := mw.Close(); err != nil {
		return Transcription{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TranscribeURL, &body)
	if err != nil {
		return Transcription{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.auth(req)

	var out Transcription
	if err := c.do(req, &out); err != nil {
		return Transcription{}, err
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends one system+user exchange and returns the raw model text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errors.Join(ErrUpstream, err)
		}
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LLMURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	var out chatResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrUpstream)
	}
	return out.Choices[0].Message.Content, nil
}

func (c *Client) auth(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrUpstream, req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return nil
}
