// Package orchestrator drives transcription for sessions: one worker per
// session, strict sequence ordering, bounded retry with backoff, and event
// publication for every outcome. Failures in one session never affect
// another; each session has its own queue and worker goroutine.
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-call-insight-service/internal/events"
	"ai-call-insight-service/internal/keyword"
	"ai-call-insight-service/internal/models"
	"ai-call-insight-service/internal/observability/logging"
	"ai-call-insight-service/internal/observability/metrics"
	"ai-call-insight-service/internal/storage"
	"ai-call-insight-service/internal/stt"
	"ai-call-insight-service/internal/transcript"
)

// ErrShuttingDown is returned when a request arrives after Shutdown.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// Config tunes the retry policy and per-session queues.
type Config struct {
	MaxAttempts int           // transcription attempts per request, incl. the first
	BackoffBase time.Duration // first retry delay; doubles per retry
	CallTimeout time.Duration // per-attempt transcription deadline
	IdleTimeout time.Duration // idle worker teardown
	Language    string
}

// DefaultConfig returns the default retry/queue policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 4,
		BackoffBase: 250 * time.Millisecond,
		CallTimeout: 60 * time.Second,
		IdleTimeout: 5 * time.Minute,
		Language:    "en",
	}
}

// fileOrder places file requests after any queued chunks; chunks are
// drained in ascending sequence-number order.
const fileOrder = int(^uint(0) >> 2)

type request struct {
	order     int
	handle    string
	timestamp float64
	isFinal   bool
	isFile    bool
}

type sessionWorker struct {
	sessionId string
	pending   []request // guarded by Orchestrator.mu
	wake      chan struct{}
}

// Orchestrator accepts file and chunk submissions, transcribes them via
// the configured provider, feeds results to the assembler and detector,
// and publishes notification events.
type Orchestrator struct {
	cfg         Config
	transcriber stt.Transcriber
	blobs       storage.BlobStore
	assembler   *transcript.Assembler
	detector    *keyword.Detector
	bus         *events.Bus

	mu       sync.Mutex
	workers  map[string]*sessionWorker
	stopped  bool
	stop     chan struct{}
	wg       sync.WaitGroup

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New wires the orchestrator to its collaborators.
func New(cfg Config, transcriber stt.Transcriber, blobs storage.BlobStore, assembler *transcript.Assembler, detector *keyword.Detector, bus *events.Bus) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	return &Orchestrator{
		cfg:         cfg,
		transcriber: transcriber,
		blobs:       blobs,
		assembler:   assembler,
		detector:    detector,
		bus:         bus,
		workers:     make(map[string]*sessionWorker),
		stop:        make(chan struct{}),
		logger:      logging.WithComponent("orchestrator"),
		metrics:     metrics.DefaultMetrics,
	}
}

// ProcessFile accepts a whole-file transcription request. It returns once
// the request is durably enqueued, not once transcription completes.
func (o *Orchestrator) ProcessFile(sessionId, audioHandle string) error {
	if _, err := o.assembler.Snapshot(sessionId); err != nil {
		return err
	}
	if err := o.enqueue(sessionId, request{
		order:   fileOrder,
		handle:  audioHandle,
		isFinal: true,
		isFile:  true,
	}); err != nil {
		return err
	}
	o.metrics.RecordFileAccepted()
	return nil
}

// ProcessChunk accepts one streamed chunk. Resubmitting an already-accepted
// sequence number is an idempotent no-op.
func (o *Orchestrator) ProcessChunk(sessionId string, chunk models.AudioChunk) error {
	fresh, err := o.assembler.RegisterChunk(sessionId, chunk.SequenceNumber)
	if err != nil {
		return err
	}
	if !fresh {
		o.logger.Debug().
			Str("sessionId", sessionId).
			Int("seq", chunk.SequenceNumber).
			Msg("Duplicate chunk ignored")
		return nil
	}
	if err := o.enqueue(sessionId, request{
		order:     chunk.SequenceNumber,
		handle:    chunk.Handle,
		timestamp: chunk.Timestamp,
		isFinal:   chunk.IsFinal,
	}); err != nil {
		return err
	}
	o.metrics.RecordChunkAccepted()
	return nil
}

// CloseSession completes the session, releases detector state, and tells
// observers. In-flight transcription for the session still runs to
// completion and updates session state.
func (o *Orchestrator) CloseSession(sessionId string) (models.SessionSnapshot, error) {
	snap, err := o.assembler.CloseSession(sessionId)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	o.detector.Forget(sessionId)
	o.bus.Publish(events.NewSessionStatus(sessionId, string(models.SessionCompleted), "session closed"))
	return snap, nil
}

// Shutdown stops accepting requests and waits for in-flight work.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		close(o.stop)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) enqueue(sessionId string, req request) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return ErrShuttingDown
	}
	w, ok := o.workers[sessionId]
	if !ok {
		w = &sessionWorker{sessionId: sessionId, wake: make(chan struct{}, 1)}
		o.workers[sessionId] = w
		o.wg.Add(1)
		go o.run(w)
	}
	w.pending = append(w.pending, req)
	o.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// run is the per-session worker loop. It drains the queue in ascending
// order and exits after the idle timeout.
func (o *Orchestrator) run(w *sessionWorker) {
	defer o.wg.Done()
	idle := time.NewTimer(o.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-w.wake:
		case <-idle.C:
			o.mu.Lock()
			if len(w.pending) == 0 {
				delete(o.workers, w.sessionId)
				o.mu.Unlock()
				return
			}
			o.mu.Unlock()
		}

		for {
			o.mu.Lock()
			if len(w.pending) == 0 {
				o.mu.Unlock()
				break
			}
			sort.SliceStable(w.pending, func(i, j int) bool {
				return w.pending[i].order < w.pending[j].order
			})
			req := w.pending[0]
			w.pending = w.pending[1:]
			o.mu.Unlock()

			o.process(w.sessionId, req)
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(o.cfg.IdleTimeout)
	}
}

// process runs one request end to end: read audio, transcribe with retry,
// feed the assembler and detector, publish events.
func (o *Orchestrator) process(sessionId string, req request) {
	logger := logging.WithSession(sessionId)

	audio, err := o.blobs.Read(req.handle)
	if err != nil {
		logger.Error().Err(err).Str("handle", req.handle).Msg("Audio payload unavailable")
		o.bus.Publish(events.NewError(sessionId, events.ErrCodeInvalidInput, "audio payload unavailable"))
		o.metrics.RecordTranscriptionFailure("payload")
		return
	}

	result, err := o.transcribeWithRetry(sessionId, audio)
	if err != nil {
		kind := stt.KindOf(err)
		logger.Error().Err(err).Str("kind", string(kind)).Msg("Transcription request failed")
		o.metrics.RecordTranscriptionFailure(string(kind))
		code := events.ErrCodeTranscriptionFailed
		msg := "transcription failed, try again"
		if kind == stt.Terminal {
			code = events.ErrCodeInvalidInput
			msg = "transcription rejected the audio input"
		}
		o.bus.Publish(events.NewError(sessionId, code, msg))
		return
	}

	segments := make([]models.Segment, len(result.Segments))
	for i, seg := range result.Segments {
		seg.StartTime += req.timestamp
		seg.EndTime += req.timestamp
		seg.IsFinal = req.isFinal
		segments[i] = seg
	}

	snap, err := o.appendWithRetry(sessionId, segments, req.isFinal)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to append segments")
		o.bus.Publish(events.NewError(sessionId, events.ErrCodeInvalidInput, "segment rejected"))
		return
	}

	detections, err := o.detector.Evaluate(context.Background(), sessionId, segments)
	if err != nil {
		logger.Warn().Err(err).Msg("Keyword evaluation failed")
	}
	if len(detections) > 0 {
		if err := o.assembler.AppendDetections(sessionId, detections); err != nil {
			logger.Warn().Err(err).Msg("Failed to record detections")
		}
		for _, det := range detections {
			o.bus.Publish(events.NewKeywordDetected(det))
		}
		if s, err := o.assembler.Snapshot(sessionId); err == nil {
			snap = s
		}
	}

	if req.isFinal {
		for _, seg := range segments {
			o.bus.Publish(events.NewTranscriptionUpdate(sessionId, seg))
		}
		o.bus.Publish(events.NewTranscriptionComplete(sessionId, snap.Transcript(), snap.Segments, snap.Detections))
		logger.Info().
			Int("segments", len(snap.Segments)).
			Int("detections", len(snap.Detections)).
			Msg("Transcription complete")
	} else {
		o.bus.Publish(events.NewPartialTranscription(sessionId, segments, detections))
	}
}

// transcribeWithRetry applies the retry policy: transient failures back
// off exponentially up to the attempt cap, terminal failures abort at once.
func (o *Orchestrator) transcribeWithRetry(sessionId string, audio []byte) (*stt.Result, error) {
	var lastErr error
	backoff := o.cfg.BackoffBase

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		ctx := context.Background()
		var cancel context.CancelFunc = func() {}
		if o.cfg.CallTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, o.cfg.CallTimeout)
		}

		start := time.Now()
		result, err := o.transcriber.Transcribe(ctx, audio, o.cfg.Language)
		cancel()
		o.metrics.RecordTranscription(o.transcriber.Name(), time.Since(start).Seconds())

		if err == nil {
			return result, nil
		}
		lastErr = err

		if stt.KindOf(err) == stt.Terminal {
			return nil, err
		}
		if attempt == o.cfg.MaxAttempts {
			break
		}

		o.metrics.RecordTranscriptionRetry()
		o.logger.Warn().
			Str("sessionId", sessionId).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Err(err).
			Msg("Transient transcription failure, retrying")

		select {
		case <-time.After(backoff):
		case <-o.stop:
			return nil, lastErr
		}
		backoff *= 2
	}
	return nil, lastErr
}

// appendWithRetry retries the whole append when the assembler reports a
// concurrent mutation. The per-session worker is normally the only
// appender, so contention resolves quickly.
func (o *Orchestrator) appendWithRetry(sessionId string, segments []models.Segment, isComplete bool) (models.SessionSnapshot, error) {
	for {
		snap, err := o.assembler.AppendSegments(sessionId, segments, isComplete)
		if !errors.Is(err, transcript.ErrBusy) {
			return snap, err
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-o.stop:
			return models.SessionSnapshot{}, err
		}
	}
}
