// Package google provides a Google Cloud Speech-to-Text transcription
// client. Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
package google

import (
	"context"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-call-insight-service/internal/models"
	"ai-call-insight-service/internal/stt"
)

// Client implements stt.Transcriber using batch recognition.
type Client struct {
	client       *speech.Client
	sampleRateHz int32
	encoding     speechpb.RecognitionConfig_AudioEncoding
}

// New creates a Google STT client.
func New(ctx context.Context, sampleRateHz int32) (*Client, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Client{
		client:       c,
		sampleRateHz: sampleRateHz,
		encoding:     speechpb.RecognitionConfig_LINEAR16,
	}, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return "google" }

// Close releases the underlying gRPC connection.
func (c *Client) Close() error { return c.client.Close() }

// Transcribe runs batch recognition over the audio bytes. Result end times
// delimit segments; each result's start is the previous result's end.
func (c *Client) Transcribe(ctx context.Context, audio []byte, language string) (*stt.Result, error) {
	if language == "" {
		language = "en-US"
	}

	resp, err := c.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   c.encoding,
			SampleRateHertz:            c.sampleRateHz,
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	result := &stt.Result{Language: language}
	prevEnd := 0.0
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		end := prevEnd
		if r.ResultEndTime != nil {
			end = r.ResultEndTime.AsDuration().Seconds()
		}
		result.Segments = append(result.Segments, models.Segment{
			Text:      alt.Transcript,
			StartTime: prevEnd,
			EndTime:   end,
			Speaker:   models.DefaultSpeaker,
		})
		if result.FullText != "" {
			result.FullText += " "
		}
		result.FullText += alt.Transcript
		prevEnd = end
	}
	result.Duration = prevEnd
	return result, nil
}

// classify maps gRPC status codes onto the retry taxonomy.
func classify(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return stt.NewTransient("recognize failed", err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument:
		return stt.NewTerminal(st.Message(), err)
	case codes.DeadlineExceeded, codes.ResourceExhausted, codes.Unavailable, codes.Internal:
		return stt.NewTransient(st.Message(), err)
	default:
		return stt.NewTransient(st.Message(), err)
	}
}
