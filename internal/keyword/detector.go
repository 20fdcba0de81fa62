// Package keyword scans transcript segments against a configured ruleset
// and produces detection events with resolved talking points.
package keyword

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-call-insight-service/internal/models"
	"ai-call-insight-service/internal/observability/logging"
	"ai-call-insight-service/internal/observability/metrics"
)

// Match confidences. A whole-word match is exact; a substring-within-word
// match ("pricing" inside "repricing") is weaker and gets a fixed 0.8.
const (
	ExactMatchConfidence     = 1.0
	SubstringMatchConfidence = 0.8
)

// RuleSource supplies the read-only keyword ruleset. The configuration
// store behind it is an external collaborator.
type RuleSource interface {
	ListRules(ctx context.Context) ([]models.KeywordRule, error)
}

// Detector evaluates segments against cached keyword rules. Rules are
// cached until Invalidate is called; each segment instance is evaluated at
// most once, so a superseded segment never re-emits detections.
type Detector struct {
	source RuleSource

	mu       sync.RWMutex
	rules    []compiledRule
	loaded   bool
	seen     map[string]map[string]bool // sessionId -> segment instance key

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

type compiledRule struct {
	rule      models.KeywordRule
	lowered   string
	wholeWord *regexp.Regexp
}

// NewDetector creates a detector backed by the given rule source.
func NewDetector(source RuleSource) *Detector {
	return &Detector{
		source:  source,
		seen:    make(map[string]map[string]bool),
		logger:  logging.WithComponent("keyword_detector"),
		metrics: metrics.DefaultMetrics,
	}
}

// Invalidate discards the cached ruleset; the next Evaluate reloads it.
// Call this when the external configuration store reports an edit.
func (d *Detector) Invalidate() {
	d.mu.Lock()
	d.loaded = false
	d.mu.Unlock()
}

// Forget releases per-session evaluation state. Call on session close.
func (d *Detector) Forget(sessionId string) {
	d.mu.Lock()
	delete(d.seen, sessionId)
	d.mu.Unlock()
}

func (d *Detector) ensureRules(ctx context.Context) ([]compiledRule, error) {
	d.mu.RLock()
	if d.loaded {
		rules := d.rules
		d.mu.RUnlock()
		return rules, nil
	}
	d.mu.RUnlock()

	raw, err := d.source.ListRules(ctx)
	if err != nil {
		return nil, err
	}

	compiled := make([]compiledRule, 0, len(raw))
	for _, r := range raw {
		lowered := strings.ToLower(r.Pattern)
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(lowered) + `\b`)
		if err != nil {
			d.logger.Warn().Str("pattern", r.Pattern).Err(err).Msg("Skipping uncompilable rule")
			continue
		}
		compiled = append(compiled, compiledRule{rule: r, lowered: lowered, wholeWord: re})
	}

	d.mu.Lock()
	d.rules = compiled
	d.loaded = true
	d.mu.Unlock()

	d.metrics.RecordRuleCacheReload()
	d.logger.Info().Int("rules", len(compiled)).Msg("Keyword rules loaded")
	return compiled, nil
}

// Evaluate scans the segments and returns one detection per distinct rule
// match whose confidence meets the rule's threshold. Talking points are a
// snapshot copy of the rule's current talking points. Segments already
// evaluated for this session are skipped.
func (d *Detector) Evaluate(ctx context.Context, sessionId string, segments []models.Segment) ([]models.KeywordDetection, error) {
	rules, err := d.ensureRules(ctx)
	if err != nil {
		return nil, err
	}

	var detections []models.KeywordDetection
	for _, seg := range segments {
		key := segmentKey(seg)
		if d.alreadySeen(sessionId, key) {
			continue
		}

		text := strings.ToLower(seg.Text)
		for _, cr := range rules {
			confidence, matched := matchConfidence(text, cr)
			if !matched || confidence < cr.rule.Threshold {
				continue
			}
			det := models.KeywordDetection{
				SessionID:     sessionId,
				Keyword:       cr.rule.Pattern,
				Description:   cr.rule.Description,
				Confidence:    confidence,
				Segment:       seg,
				TalkingPoints: append([]models.TalkingPoint(nil), cr.rule.TalkingPoints...),
				DetectedAt:    time.Now().UTC(),
			}
			detections = append(detections, det)
			d.metrics.RecordDetection(cr.rule.Pattern)
		}
	}
	return detections, nil
}

func (d *Detector) alreadySeen(sessionId, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen, ok := d.seen[sessionId]
	if !ok {
		seen = make(map[string]bool)
		d.seen[sessionId] = seen
	}
	if seen[key] {
		return true
	}
	seen[key] = true
	return false
}

// matchConfidence reports whether the rule matches the lowered text and
// with which confidence. Whole-word match wins over substring.
func matchConfidence(loweredText string, cr compiledRule) (float64, bool) {
	if cr.wholeWord.MatchString(loweredText) {
		return ExactMatchConfidence, true
	}
	if strings.Contains(loweredText, cr.lowered) {
		return SubstringMatchConfidence, true
	}
	return 0, false
}

// segmentKey identifies a segment instance. A superseding final segment for
// the same range has different text or finality and therefore a new key.
func segmentKey(seg models.Segment) string {
	return fmt.Sprintf("%.3f|%.3f|%t|%s", seg.StartTime, seg.EndTime, seg.IsFinal, seg.Text)
}
