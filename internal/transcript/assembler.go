// Package transcript maintains per-session ordered transcript state. The
// assembler owns all session data; callers only ever receive snapshot
// copies, and all mutation for a given session is serialized through it.
package transcript

import (
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-call-insight-service/internal/models"
	"ai-call-insight-service/internal/observability/logging"
	"ai-call-insight-service/internal/observability/metrics"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrInvalidSegment  = errors.New("invalid segment")
	ErrBusy            = errors.New("concurrent append in progress")
)

const shardCount = 16

// Assembler maintains session state behind a sharded map so sessions on
// different shards never contend on a lock.
type Assembler struct {
	shards  [shardCount]*shard
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
}

type sessionState struct {
	// appendGate enforces at most one in-flight append per session.
	// TryLock failure maps to ErrBusy.
	appendGate sync.Mutex

	// mu guards the fields below.
	mu        sync.RWMutex
	session   models.Session
	chunkSeqs map[int]bool
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	a := &Assembler{
		logger:  logging.WithComponent("transcript_assembler"),
		metrics: metrics.DefaultMetrics,
	}
	for i := range a.shards {
		a.shards[i] = &shard{sessions: make(map[string]*sessionState)}
	}
	return a
}

func (a *Assembler) shardFor(sessionId string) *shard {
	h := fnv.New32a()
	h.Write([]byte(sessionId))
	return a.shards[h.Sum32()%shardCount]
}

func (a *Assembler) lookup(sessionId string) (*sessionState, error) {
	sh := a.shardFor(sessionId)
	sh.mu.RLock()
	st, ok := sh.sessions[sessionId]
	sh.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return st, nil
}

// CreateSession registers a new active session and returns its snapshot.
// An empty sessionId requests a server-generated id.
func (a *Assembler) CreateSession(sessionId, title, description string) models.SessionSnapshot {
	if sessionId == "" {
		sessionId = uuid.NewString()
	}

	st := &sessionState{
		session: models.Session{
			ID:          sessionId,
			Title:       title,
			Description: description,
			Status:      models.SessionActive,
			CreatedAt:   time.Now().UTC(),
		},
		chunkSeqs: make(map[int]bool),
	}

	sh := a.shardFor(sessionId)
	sh.mu.Lock()
	if existing, ok := sh.sessions[sessionId]; ok {
		// Creating an id that already exists returns the existing session.
		sh.mu.Unlock()
		existing.mu.RLock()
		defer existing.mu.RUnlock()
		return snapshotLocked(&existing.session)
	}
	sh.sessions[sessionId] = st
	sh.mu.Unlock()

	a.metrics.RecordSessionCreated()
	a.logger.Info().Str("sessionId", sessionId).Str("title", title).Msg("Session created")
	return snapshotLocked(&st.session)
}

// CloseSession flips the session to completed. Closing is explicit and
// idempotent; sessions are never destroyed implicitly.
func (a *Assembler) CloseSession(sessionId string) (models.SessionSnapshot, error) {
	st, err := a.lookup(sessionId)
	if err != nil {
		return models.SessionSnapshot{}, err
	}

	st.mu.Lock()
	already := st.session.Status == models.SessionCompleted
	st.session.Status = models.SessionCompleted
	snap := snapshotLocked(&st.session)
	st.mu.Unlock()

	if !already {
		a.metrics.RecordSessionClosed()
		a.logger.Info().Str("sessionId", sessionId).Msg("Session closed")
	}
	return snap, nil
}

// Snapshot returns an immutable copy of the session state.
func (a *Assembler) Snapshot(sessionId string) (models.SessionSnapshot, error) {
	st, err := a.lookup(sessionId)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return snapshotLocked(&st.session), nil
}

// RegisterChunk records a chunk sequence number. It returns false when the
// sequence number was already accepted, which makes resubmission an
// idempotent no-op for the caller.
func (a *Assembler) RegisterChunk(sessionId string, sequenceNumber int) (bool, error) {
	st, err := a.lookup(sessionId)
	if err != nil {
		return false, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.chunkSeqs[sequenceNumber] {
		a.metrics.RecordChunkDuplicate()
		return false, nil
	}
	st.chunkSeqs[sequenceNumber] = true
	return true, nil
}

// AppendSegments merges segments into the session's ordered transcript and
// returns the resulting snapshot. At most one append may be in flight per
// session; a concurrent call fails with ErrBusy and the caller retries the
// whole operation.
//
// When isComplete is true the incoming segments are final: any earlier
// segment overlapping an incoming one is superseded (removed, never
// merged); segments outside the overlapped ranges are retained.
func (a *Assembler) AppendSegments(sessionId string, segments []models.Segment, isComplete bool) (models.SessionSnapshot, error) {
	st, err := a.lookup(sessionId)
	if err != nil {
		return models.SessionSnapshot{}, err
	}

	if !st.appendGate.TryLock() {
		return models.SessionSnapshot{}, ErrBusy
	}
	defer st.appendGate.Unlock()

	incoming := make([]models.Segment, len(segments))
	for i, seg := range segments {
		if seg.StartTime < 0 || seg.EndTime < 0 || seg.EndTime < seg.StartTime {
			return models.SessionSnapshot{}, ErrInvalidSegment
		}
		if seg.Speaker == "" {
			seg.Speaker = models.DefaultSpeaker
		}
		if isComplete {
			seg.IsFinal = true
		}
		incoming[i] = seg
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	superseded := 0
	if isComplete {
		kept := st.session.Segments[:0]
		for _, existing := range st.session.Segments {
			if overlapsAny(existing, incoming) {
				superseded++
				continue
			}
			kept = append(kept, existing)
		}
		st.session.Segments = kept
	}

	st.session.Segments = append(st.session.Segments, incoming...)

	// Stable sort keeps arrival order for identical start times.
	sort.SliceStable(st.session.Segments, func(i, j int) bool {
		return st.session.Segments[i].StartTime < st.session.Segments[j].StartTime
	})

	a.metrics.RecordSegmentsAppended(len(incoming), superseded)
	a.logger.Debug().
		Str("sessionId", sessionId).
		Int("appended", len(incoming)).
		Int("superseded", superseded).
		Bool("isComplete", isComplete).
		Msg("Segments appended")

	return snapshotLocked(&st.session), nil
}

// AppendDetections appends keyword detections to the session history.
// Detections are append-only and never mutated after creation.
func (a *Assembler) AppendDetections(sessionId string, detections []models.KeywordDetection) error {
	if len(detections) == 0 {
		return nil
	}
	st, err := a.lookup(sessionId)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.session.Detections = append(st.session.Detections, detections...)
	st.mu.Unlock()
	return nil
}

// overlapsAny reports whether seg's time range intersects any incoming
// segment. Touching endpoints do not overlap.
func overlapsAny(seg models.Segment, incoming []models.Segment) bool {
	for _, in := range incoming {
		if seg.StartTime < in.EndTime && in.StartTime < seg.EndTime {
			return true
		}
	}
	return false
}

// snapshotLocked deep-copies session state. Callers must hold the session
// lock (read or write).
func snapshotLocked(s *models.Session) models.SessionSnapshot {
	snap := models.SessionSnapshot{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Status:      s.Status,
		CreatedAt:   s.CreatedAt,
		Segments:    make([]models.Segment, len(s.Segments)),
		Detections:  make([]models.KeywordDetection, len(s.Detections)),
	}
	copy(snap.Segments, s.Segments)
	for i, det := range s.Detections {
		det.TalkingPoints = append([]models.TalkingPoint(nil), det.TalkingPoints...)
		snap.Detections[i] = det
	}
	return snap
}
