// Package events defines the notification event model and the per-session
// pub/sub fabric that carries it to live observers.
package events

import (
	"time"

	"ai-call-insight-service/internal/models"
)

// Type identifies the notification variant.
type Type string

const (
	TypeTranscriptionUpdate   Type = "transcription_update"
	TypePartialTranscription  Type = "partial_transcription"
	TypeTranscriptionComplete Type = "transcription_complete"
	TypeKeywordDetected       Type = "keyword_detected"
	TypeSessionStatus         Type = "session_status"
	TypeError                 Type = "error"
)

// Event is the envelope delivered to subscribers. Exactly one payload field
// is set, matching Kind; events are immutable once published.
type Event struct {
	Kind      Type      `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	TranscriptionUpdate   *TranscriptionUpdatePayload   `json:"transcription_update,omitempty"`
	PartialTranscription  *PartialTranscriptionPayload  `json:"partial_transcription,omitempty"`
	TranscriptionComplete *TranscriptionCompletePayload `json:"transcription_complete,omitempty"`
	KeywordDetected       *KeywordDetectedPayload       `json:"keyword_detected,omitempty"`
	SessionStatus         *SessionStatusPayload         `json:"session_status,omitempty"`
	Error                 *ErrorPayload                 `json:"error,omitempty"`
}

// TranscriptionUpdatePayload carries one final segment.
type TranscriptionUpdatePayload struct {
	Segment models.Segment `json:"segment"`
}

// PartialTranscriptionPayload carries provisional segments from a chunk.
type PartialTranscriptionPayload struct {
	Segments   []models.Segment          `json:"segments"`
	Detections []models.KeywordDetection `json:"detected_keywords,omitempty"`
}

// TranscriptionCompletePayload carries the full transcript at finalize time.
type TranscriptionCompletePayload struct {
	Transcript string                    `json:"transcript"`
	Segments   []models.Segment          `json:"segments"`
	Detections []models.KeywordDetection `json:"detected_keywords"`
}

// KeywordDetectedPayload carries one rule match with its talking points.
type KeywordDetectedPayload struct {
	Keyword       string                `json:"keyword"`
	Confidence    float64               `json:"confidence"`
	Segment       models.Segment        `json:"segment"`
	TalkingPoints []models.TalkingPoint `json:"talking_points"`
}

// SessionStatusPayload reports a session lifecycle change.
type SessionStatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorPayload is a session-scoped failure report. Code distinguishes
// "try again" from "fix your input" without leaking internals.
type ErrorPayload struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

const (
	ErrCodeTranscriptionFailed = "transcription_failed"
	ErrCodeInvalidInput        = "invalid_input"
)

// NewTranscriptionUpdate builds a transcription_update event for one segment.
func NewTranscriptionUpdate(sessionId string, seg models.Segment) Event {
	return Event{
		Kind:                TypeTranscriptionUpdate,
		SessionID:           sessionId,
		Timestamp:           time.Now().UTC(),
		TranscriptionUpdate: &TranscriptionUpdatePayload{Segment: seg},
	}
}

// NewPartialTranscription builds a partial_transcription event.
func NewPartialTranscription(sessionId string, segs []models.Segment, dets []models.KeywordDetection) Event {
	return Event{
		Kind:                 TypePartialTranscription,
		SessionID:            sessionId,
		Timestamp:            time.Now().UTC(),
		PartialTranscription: &PartialTranscriptionPayload{Segments: segs, Detections: dets},
	}
}

// NewTranscriptionComplete builds a transcription_complete event.
func NewTranscriptionComplete(sessionId, transcript string, segs []models.Segment, dets []models.KeywordDetection) Event {
	return Event{
		Kind:      TypeTranscriptionComplete,
		SessionID: sessionId,
		Timestamp: time.Now().UTC(),
		TranscriptionComplete: &TranscriptionCompletePayload{
			Transcript: transcript,
			Segments:   segs,
			Detections: dets,
		},
	}
}

// NewKeywordDetected builds a keyword_detected event from a detection.
func NewKeywordDetected(det models.KeywordDetection) Event {
	return Event{
		Kind:      TypeKeywordDetected,
		SessionID: det.SessionID,
		Timestamp: time.Now().UTC(),
		KeywordDetected: &KeywordDetectedPayload{
			Keyword:       det.Keyword,
			Confidence:    det.Confidence,
			Segment:       det.Segment,
			TalkingPoints: det.TalkingPoints,
		},
	}
}

// NewSessionStatus builds a session_status event.
func NewSessionStatus(sessionId, status, message string) Event {
	return Event{
		Kind:          TypeSessionStatus,
		SessionID:     sessionId,
		Timestamp:     time.Now().UTC(),
		SessionStatus: &SessionStatusPayload{Status: status, Message: message},
	}
}

// NewError builds a session-scoped error event.
func NewError(sessionId, code, message string) Event {
	return Event{
		Kind:      TypeError,
		SessionID: sessionId,
		Timestamp: time.Now().UTC(),
		Error:     &ErrorPayload{Code: code, Message: message},
	}
}
