// Package openai provides a Whisper transcription client using the
// audio/transcriptions HTTP API with verbose_json output.
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
	"time"

	"ai-call-insight-service/internal/models"
	"ai-call-insight-service/internal/stt"
)

const defaultEndpoint = "https://api.openai.com/v1/audio/transcriptions"

// Client implements stt.Transcriber against the OpenAI API.
type Client struct {
	apiKey   string
	model    string
	endpoint string
	hc       *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithEndpoint overrides the API endpoint (used in tests).
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// New creates a Whisper client. The caller controls per-call timeouts via
// context; the HTTP client itself carries a generous ceiling.
func New(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		model:    model,
		endpoint: defaultEndpoint,
		hc:       &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the provider.
func (c *Client) Name() string { return "openai" }

type verboseResp struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"segments"`
}

// Transcribe posts the audio as multipart form data and maps the
// verbose_json segments to the internal segment model.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) (*stt.Result, error) {
	if c.apiKey == "" {
		return nil, stt.NewTerminal("api key not configured", nil)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", c.model); err != nil {
		return nil, stt.NewTerminal("building request", err)
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, stt.NewTerminal("building request", err)
	}
	if err := mw.WriteField("temperature", "0"); err != nil {
		return nil, stt.NewTerminal("building request", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return nil, stt.NewTerminal("building request", err)
		}
	}
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, stt.NewTerminal("building request", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return nil, stt.NewTerminal("building request", err)
	}
	if err := mw.Close(); err != nil {
		return nil, stt.NewTerminal("building request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, stt.NewTerminal("building request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, stt.NewTransient("request timed out", err)
		}
		return nil, stt.NewTransient("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("http %d: %s", resp.StatusCode, string(b))
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, stt.NewTerminal(msg, nil)
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnsupportedMediaType:
			return nil, stt.NewTerminal(msg, nil)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, stt.NewTransient(msg, nil)
		default:
			return nil, stt.NewTransient(msg, nil)
		}
	}

	var vr verboseResp
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, stt.NewTransient("decoding response", err)
	}

	result := &stt.Result{
		FullText: vr.Text,
		Language: vr.Language,
		Duration: vr.Duration,
	}
	for _, s := range vr.Segments {
		result.Segments = append(result.Segments, models.Segment{
			Text:      s.Text,
			StartTime: s.Start,
			EndTime:   s.End,
			Speaker:   models.DefaultSpeaker,
		})
	}
	// Some responses omit segment timings; fall back to one segment
	// covering the whole clip.
	if len(result.Segments) == 0 && vr.Text != "" {
		result.Segments = append(result.Segments, models.Segment{
			Text:      vr.Text,
			StartTime: 0,
			EndTime:   vr.Duration,
			Speaker:   models.DefaultSpeaker,
		})
	}
	return result, nil
}
