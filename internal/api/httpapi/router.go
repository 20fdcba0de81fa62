// Package httpapi exposes the session, audio ingestion and real-time
// connection endpoints over HTTP.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"ai-call-insight-service/internal/models"
	"ai-call-insight-service/internal/observability/logging"
	"ai-call-insight-service/internal/orchestrator"
	"ai-call-insight-service/internal/registry"
	"ai-call-insight-service/internal/storage"
	"ai-call-insight-service/internal/transcript"
)

// maxAudioBytes caps a single upload.
const maxAudioBytes = 64 << 20

// API bundles the handlers' dependencies.
type API struct {
	assembler    *transcript.Assembler
	orchestrator *orchestrator.Orchestrator
	blobs        storage.BlobStore
	registry     *registry.Registry

	logger zerolog.Logger
}

// New constructs the API surface.
func New(assembler *transcript.Assembler, orch *orchestrator.Orchestrator, blobs storage.BlobStore, reg *registry.Registry) *API {
	return &API{
		assembler:    assembler,
		orchestrator: orch,
		blobs:        blobs,
		registry:     reg,
		logger:       logging.WithComponent("http_api"),
	}
}

// NewRouter constructs the HTTP router for the service.
func (a *API) NewRouter() http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", a.handleCreateSession)
		r.Get("/{sessionId}", a.handleGetSession)
		r.Delete("/{sessionId}", a.handleCloseSession)
		r.Post("/{sessionId}/file", a.handleUploadFile)
		r.Post("/{sessionId}/chunks", a.handleUploadChunk)
	})

	r.Get("/ws/connect/{sessionId}", a.handleConnect)

	return r
}

type createSessionRequest struct {
	SessionID   string `json:"session_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	snap := a.assembler.CreateSession(req.SessionID, req.Title, req.Description)
	a.logger.Info().Str("sessionId", snap.ID).Msg("Session created")
	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionId := chi.URLParam(r, "sessionId")
	snap, err := a.assembler.Snapshot(sessionId)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionId := chi.URLParam(r, "sessionId")
	snap, err := a.orchestrator.CloseSession(sessionId)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleUploadFile accepts a complete recording as a multipart form with
// a "file" part, stores it, and queues it for transcription.
func (a *API) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	sessionId := chi.URLParam(r, "sessionId")

	if _, err := a.assembler.Snapshot(sessionId); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAudioBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio payload")
		return
	}

	handle, err := a.blobs.Store(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store audio")
		return
	}
	if err := a.orchestrator.ProcessFile(sessionId, handle); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": sessionId,
		"status":     "processing",
	})
}

type chunkRequest struct {
	SequenceNumber int       `json:"sequence_number"`
	Audio          string    `json:"audio"` // base64-encoded
	Timestamp      float64   `json:"timestamp"`
	IsFinal        bool      `json:"is_final"`
	CapturedAt     time.Time `json:"captured_at"`
}

// handleUploadChunk accepts one live audio chunk. Chunks may arrive out
// of order; redelivery of a sequence number is a no-op.
func (a *API) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	sessionId := chi.URLParam(r, "sessionId")

	var req chunkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAudioBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SequenceNumber < 0 {
		writeError(w, http.StatusBadRequest, "sequence_number must be non-negative")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio must be base64-encoded")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio payload")
		return
	}

	handle, err := a.blobs.Store(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store audio")
		return
	}
	capturedAt := req.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	err = a.orchestrator.ProcessChunk(sessionId, models.AudioChunk{
		SessionID:      sessionId,
		SequenceNumber: req.SequenceNumber,
		Handle:         handle,
		Timestamp:      req.Timestamp,
		IsFinal:        req.IsFinal,
		CapturedAt:     capturedAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id":      sessionId,
		"sequence_number": req.SequenceNumber,
		"status":          "queued",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transcript.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, transcript.ErrSessionClosed):
		writeError(w, http.StatusConflict, "session is closed")
	case errors.Is(err, transcript.ErrBusy):
		writeError(w, http.StatusConflict, "session is busy, retry")
	case errors.Is(err, transcript.ErrInvalidSegment):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
