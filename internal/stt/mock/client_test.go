package mock

import (
	"context"
	"testing"

	"ai-call-insight-service/internal/models"
	"ai-call-insight-service/internal/stt"
)

func TestTranscribe_CyclesUtterances(t *testing.T) {
	c := NewScripted([]Utterance{
		{Text: "first", Duration: 1},
		{Text: "second", Duration: 2},
	})

	for i, want := range []string{"first", "second", "first"} {
		result, err := c.Transcribe(context.Background(), []byte("audio"), "en")
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		if result.FullText != want {
			t.Errorf("call %d returned %q, want %q", i, result.FullText, want)
		}
		if len(result.Segments) != 1 {
			t.Fatalf("call %d returned %d segments", i, len(result.Segments))
		}
		if result.Segments[0].Speaker != models.DefaultSpeaker {
			t.Errorf("expected default speaker, got %q", result.Segments[0].Speaker)
		}
	}

	if c.Calls() != 3 {
		t.Errorf("expected 3 recorded calls, got %d", c.Calls())
	}
}

func TestTranscribe_FailTransient(t *testing.T) {
	c := New()
	c.FailTransient(2)

	for i := 0; i < 2; i++ {
		_, err := c.Transcribe(context.Background(), nil, "en")
		if err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
		if stt.KindOf(err) != stt.Transient {
			t.Errorf("call %d: expected transient, got %s", i, stt.KindOf(err))
		}
	}

	if _, err := c.Transcribe(context.Background(), nil, "en"); err != nil {
		t.Errorf("expected success after scripted failures, got %v", err)
	}
}

func TestTranscribe_FailTerminal(t *testing.T) {
	c := New()
	c.FailTerminal(true)

	_, err := c.Transcribe(context.Background(), nil, "en")
	if err == nil {
		t.Fatal("expected failure")
	}
	if stt.KindOf(err) != stt.Terminal {
		t.Errorf("expected terminal, got %s", stt.KindOf(err))
	}

	c.FailTerminal(false)
	if _, err := c.Transcribe(context.Background(), nil, "en"); err != nil {
		t.Errorf("expected success after clearing, got %v", err)
	}
}

func TestTranscribe_CanceledContext(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Transcribe(ctx, nil, "en")
	if err == nil {
		t.Fatal("expected failure for canceled context")
	}
}
