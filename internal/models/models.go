// Package models defines the data structures shared by the processing core.
package models

import "time"

// SessionStatus is the lifecycle status of an audio session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// Session is one continuous audio-transcription-and-detection context.
// It is owned by the transcript assembler; callers only ever see snapshots.
type Session struct {
	ID          string        `json:"session_id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	Segments    []Segment     `json:"segments"`
	Detections  []KeywordDetection `json:"detected_keywords"`
}

// Segment is a timestamped span of transcript text.
// A provisional segment (IsFinal=false) may later be superseded by a final
// one covering the same time range; final segments are authoritative.
type Segment struct {
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Speaker    string  `json:"speaker"`
	IsProspect bool    `json:"is_prospect"`
	IsFinal    bool    `json:"is_final"`
}

// DefaultSpeaker is used when the transcription provider yields no
// speaker attribution.
const DefaultSpeaker = "Unknown"

// AudioChunk is one unit of streamed audio. Sequence numbers are
// caller-assigned and unique per session; resubmitting a sequence number
// is an idempotent no-op.
type AudioChunk struct {
	SessionID      string    `json:"session_id"`
	SequenceNumber int       `json:"sequence_number"`
	Handle         string    `json:"handle"`
	Timestamp      float64   `json:"timestamp"`
	IsFinal        bool      `json:"is_final"`
	CapturedAt     time.Time `json:"captured_at"`
}

// TalkingPoint is a suggested conversational prompt tied to a keyword rule.
type TalkingPoint struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Priority int    `json:"priority"`
}

// KeywordRule is read-only reference data supplied by the configuration
// store: a text pattern with a confidence threshold and talking points.
type KeywordRule struct {
	Pattern       string         `json:"pattern"`
	Description   string         `json:"description,omitempty"`
	Threshold     float64        `json:"threshold"`
	TalkingPoints []TalkingPoint `json:"talking_points"`
}

// KeywordDetection records a single rule match against a segment. Talking
// points are copied at detection time so later rule edits do not alter
// historical detections.
type KeywordDetection struct {
	SessionID     string         `json:"session_id"`
	Keyword       string         `json:"keyword"`
	Description   string         `json:"description,omitempty"`
	Confidence    float64        `json:"confidence"`
	Segment       Segment        `json:"segment"`
	TalkingPoints []TalkingPoint `json:"talking_points"`
	DetectedAt    time.Time      `json:"detected_at"`
}

// SessionSnapshot is an immutable copy of session state returned to readers.
type SessionSnapshot struct {
	ID          string             `json:"session_id"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Status      SessionStatus      `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	Segments    []Segment          `json:"segments"`
	Detections  []KeywordDetection `json:"detected_keywords"`
}

// Transcript returns the concatenated text of all final segments in order.
func (s SessionSnapshot) Transcript() string {
	text := ""
	for _, seg := range s.Segments {
		if !seg.IsFinal {
			continue
		}
		if text != "" {
			text += " "
		}
		text += seg.Text
	}
	return text
}
