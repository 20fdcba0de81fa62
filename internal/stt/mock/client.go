// Package mock provides a scripted transcriber for development and tests
// without cloud credentials. It cycles through sample utterances and can be
// scripted to fail in classified ways.
package mock

import (
	"context"
	"sync"

	"ai-call-insight-service/internal/models"
	"ai-call-insight-service/internal/stt"
)

// Utterance is one scripted transcription result.
type Utterance struct {
	Text     string
	Duration float64
	Speaker  string
}

// DefaultUtterances provides sample sales-call speech for simulation.
var DefaultUtterances = []Utterance{
	{Text: "the pricing is too high for our budget", Duration: 3.2},
	{Text: "we are currently evaluating a competitor product", Duration: 2.8},
	{Text: "how does the integration with our CRM work", Duration: 2.5},
	{Text: "can we start with a monthly contract", Duration: 2.1},
	{Text: "thanks for walking us through the demo", Duration: 1.9},
}

// Client implements stt.Transcriber with scripted responses. Each call
// returns the next utterance as a single segment; Fail* hooks make the next
// calls fail for retry-path testing.
type Client struct {
	mu         sync.Mutex
	utterances []Utterance
	next       int
	calls      int

	failTransient int
	failTerminal  bool
}

// New creates a mock transcriber cycling through the default utterances.
func New() *Client {
	return &Client{utterances: DefaultUtterances}
}

// NewScripted creates a mock transcriber with a fixed script.
func NewScripted(utterances []Utterance) *Client {
	return &Client{utterances: utterances}
}

// Name identifies the provider.
func (c *Client) Name() string { return "mock" }

// FailTransient makes the next n calls fail with a transient error.
func (c *Client) FailTransient(n int) {
	c.mu.Lock()
	c.failTransient = n
	c.mu.Unlock()
}

// FailTerminal makes every subsequent call fail with a terminal error.
func (c *Client) FailTerminal(on bool) {
	c.mu.Lock()
	c.failTerminal = on
	c.mu.Unlock()
}

// Calls reports how many Transcribe calls were made.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Transcribe returns the next scripted utterance. The segment's time range
// starts at zero; the orchestrator offsets chunk segments by capture time.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, stt.NewTransient("canceled", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	if c.failTerminal {
		return nil, stt.NewTerminal("malformed audio", nil)
	}
	if c.failTransient > 0 {
		c.failTransient--
		return nil, stt.NewTransient("rate limited", nil)
	}

	utt := c.utterances[c.next%len(c.utterances)]
	c.next++

	speaker := utt.Speaker
	if speaker == "" {
		speaker = models.DefaultSpeaker
	}
	return &stt.Result{
		Segments: []models.Segment{{
			Text:      utt.Text,
			StartTime: 0,
			EndTime:   utt.Duration,
			Speaker:   speaker,
		}},
		FullText: utt.Text,
		Language: "en",
		Duration: utt.Duration,
	}, nil
}
