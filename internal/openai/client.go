package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrServiceUnconfigured is returned by every call when no API key is set.
var ErrServiceUnconfigured = errors.New("openai: service not configured")

// ErrEmptyResponse means the service answered 2xx without usable content.
var ErrEmptyResponse = errors.New("openai: empty response")

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai %s: status %d: %s", e.Op, e.Code, e.Body)
}

// Transient reports whether repeating the request may succeed.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsTransient classifies an error from this package. Transport failures and empty
// responses are transient; client errors other than 429 are not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrServiceUnconfigured) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return true
}

type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
	Language        string
	Timeout         time.Duration
}

// Client talks to the transcription and chat completion endpoints.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.cfg.APIKey) != ""
}

// Transcribe uploads audio and returns the recognised text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if !c.Configured() {
		return "", ErrServiceUnconfigured
	}
	if filename == "" {
		filename = "recording.wav"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("model", c.cfg.TranscribeModel)
	if c.cfg.Language != "" {
		_ = w.WriteField("language", c.cfg.Language)
	}
	_ = w.WriteField("response_format", "json")
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("openai transcribe: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("openai transcribe: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("openai transcribe: %w", err)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, "transcribe", "/audio/transcriptions", w.FormDataContentType(), &body, &out); err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", fmt.Errorf("openai transcribe: %w", ErrEmptyResponse)
	}
	return text, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
	Temperature float64 `json:"temperature"`
}

// Analyze asks the chat model for the structured extraction of a transcript. The
// returned bytes are the raw JSON object the model produced; validating it is up to the
// caller.
func (c *Client) Analyze(ctx context.Context, transcript string) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrServiceUnconfigured
	}

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: AnalysisPrompt},
			{Role: "user", Content: transcript},
		},
		Temperature: 0.1,
	}
	req.ResponseFormat.Type = "json_object"
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openai analyze: %w", err)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.do(ctx, "analyze", "/chat/completions", "application/json", bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("openai analyze: %w", ErrEmptyResponse)
	}
	return json.RawMessage(out.Choices[0].Message.Content), nil
}

func (c *Client) do(ctx context.Context, op, path, contentType string, body io.Reader, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("openai %s: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("openai %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("openai %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return &StatusError{Op: op, Code: resp.StatusCode, Body: msg}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("openai %s: decode: %w", op, err)
	}
	return nil
}
