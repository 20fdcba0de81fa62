package keyword

import (
	"context"
	"errors"
	"testing"

	"ai-call-insight-service/internal/models"
)

func ruleWith(pattern string, threshold float64) models.KeywordRule {
	return models.KeywordRule{
		Pattern:   pattern,
		Threshold: threshold,
		TalkingPoints: []models.TalkingPoint{
			{Title: "Point", Content: "Content", Priority: 1},
		},
	}
}

func seg(text string, start, end float64) models.Segment {
	return models.Segment{Text: text, StartTime: start, EndTime: end, IsFinal: true}
}

func TestEvaluate_WholeWordMatch(t *testing.T) {
	d := NewDetector(NewStaticSource([]models.KeywordRule{ruleWith("pricing", 0.7)}))

	dets, err := d.Evaluate(context.Background(), "s1", []models.Segment{
		seg("the pricing is too high for our budget", 0, 3),
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].Keyword != "pricing" {
		t.Errorf("expected keyword 'pricing', got %s", dets[0].Keyword)
	}
	if dets[0].Confidence != ExactMatchConfidence {
		t.Errorf("expected confidence %v for whole-word match, got %v", ExactMatchConfidence, dets[0].Confidence)
	}
	if len(dets[0].TalkingPoints) != 1 {
		t.Errorf("expected talking points copied onto detection, got %d", len(dets[0].TalkingPoints))
	}
}

func TestEvaluate_CaseInsensitive(t *testing.T) {
	d := NewDetector(NewStaticSource([]models.KeywordRule{ruleWith("Pricing", 0.7)}))

	dets, err := d.Evaluate(context.Background(), "s1", []models.Segment{
		seg("PRICING came up twice", 0, 2),
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection regardless of case, got %d", len(dets))
	}
}

func TestEvaluate_SubstringMatchConfidence(t *testing.T) {
	d := NewDetector(NewStaticSource([]models.KeywordRule{ruleWith("pricing", 0.7)}))

	dets, err := d.Evaluate(context.Background(), "s1", []models.Segment{
		seg("they are repricing the tiers", 0, 2),
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].Confidence != SubstringMatchConfidence {
		t.Errorf("expected confidence %v for substring match, got %v", SubstringMatchConfidence, dets[0].Confidence)
	}
}

func TestEvaluate_ThresholdFiltersSubstringMatch(t *testing.T) {
	// Threshold above the substring confidence: only whole-word matches pass.
	d := NewDetector(NewStaticSource([]models.KeywordRule{ruleWith("pricing", 0.9)}))

	dets, err := d.Evaluate(context.Background(), "s1", []models.Segment{
		seg("they are repricing the tiers", 0, 2),
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("expected no detections below threshold, got %d", len(dets))
	}

	dets, err = d.Evaluate(context.Background(), "s1", []models.Segment{
		seg("what is the pricing", 2, 4),
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(dets) != 1 {
		t.Errorf("expected whole-word match to pass threshold, got %d", len(dets))
	}
}

func TestEvaluate_NoMatch(t *testing.T) {
	d := NewDetector(NewStaticSource([]models.KeywordRule{ruleWith("pricing", 0.7)}))

	dets, err := d.Evaluate(context.Background(), "s1", []models.Segment{
		seg("thanks for the demo", 0, 2),
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("expected no detections, got %d", len(dets))
	}
}

func TestEvaluate_SegmentEvaluatedOnce(t *testing.T) {
	d := NewDetector(NewStaticSource([]models.KeywordRule{ruleWith("pricing", 0.7)}))
	s := seg("the pricing is too high", 0, 3)

	dets, err := d.Evaluate(context.Background(), "s1", []models.Segment{s})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}

	// Same segment instance again: no second detection.
	dets, err = d.Evaluate(context.Background(), "s1", []models.Segment{s})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("expected repeat evaluation to emit nothing, got %d", len(dets))
	}

	// A superseding final segment with new text is a new instance.
	dets, err = d.Evaluate(context.Background(), "s1", []models.Segment{
		seg("the pricing is far too high", 0, 3),
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(dets) != 1 {
		t.Errorf("expected new segment instance to be evaluated, got %d", len(dets))
	}
}

func TestEvaluate_SessionsIsolated(t *testing.T) {
	d := NewDetector(NewStaticSource([]models.KeywordRule{ruleWith("pricing", 0.7)}))
	s := seg("pricing question", 0, 1)

	if _, err := d.Evaluate(context.Background(), "s1", []models.Segment{s}); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	dets, err := d.Evaluate(context.Background(), "s2", []models.Segment{s})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(dets) != 1 {
		t.Errorf("expected detection in second session, got %d", len(dets))
	}
}

func TestForget_AllowsReevaluation(t *testing.T) {
	d := NewDetector(NewStaticSource([]models.KeywordRule{ruleWith("pricing", 0.7)}))
	s := seg("pricing question", 0, 1)

	if _, err := d.Evaluate(context.Background(), "s1", []models.Segment{s}); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	d.Forget("s1")

	dets, err := d.Evaluate(context.Background(), "s1", []models.Segment{s})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(dets) != 1 {
		t.Errorf("expected re-evaluation after Forget, got %d", len(dets))
	}
}

func TestDetection_TalkingPointsAreSnapshots(t *testing.T) {
	rules := []models.KeywordRule{ruleWith("pricing", 0.7)}
	src := NewStaticSource(rules)
	d := NewDetector(src)

	dets, err := d.Evaluate(context.Background(), "s1", []models.Segment{
		seg("pricing question", 0, 1),
	})
	if err != nil || len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d (%v)", len(dets), err)
	}

	// Mutating the detection's copy must not reach the rule.
	dets[0].TalkingPoints[0].Content = "edited"
	if rules[0].TalkingPoints[0].Content == "edited" {
		t.Error("detection talking points alias the rule's slice")
	}
}

type failingSource struct{}

func (failingSource) ListRules(ctx context.Context) ([]models.KeywordRule, error) {
	return nil, errors.New("store unavailable")
}

func TestEvaluate_RuleSourceError(t *testing.T) {
	d := NewDetector(failingSource{})

	_, err := d.Evaluate(context.Background(), "s1", []models.Segment{seg("pricing", 0, 1)})
	if err == nil {
		t.Error("expected rule source error to propagate")
	}
}

type countingSource struct {
	calls int
	rules []models.KeywordRule
}

func (c *countingSource) ListRules(ctx context.Context) ([]models.KeywordRule, error) {
	c.calls++
	return c.rules, nil
}

func TestRulesCachedUntilInvalidate(t *testing.T) {
	src := &countingSource{rules: []models.KeywordRule{ruleWith("pricing", 0.7)}}
	d := NewDetector(src)

	for i := 0; i < 3; i++ {
		if _, err := d.Evaluate(context.Background(), "s1", []models.Segment{
			seg("filler", float64(i), float64(i)+1),
		}); err != nil {
			t.Fatalf("evaluate failed: %v", err)
		}
	}
	if src.calls != 1 {
		t.Errorf("expected 1 rule load while cached, got %d", src.calls)
	}

	d.Invalidate()
	if _, err := d.Evaluate(context.Background(), "s1", []models.Segment{seg("more", 10, 11)}); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("expected reload after Invalidate, got %d calls", src.calls)
	}
}

func TestDefaultRules_CoverSeedKeywords(t *testing.T) {
	d := NewDetector(NewStaticSource(DefaultRules()))

	dets, err := d.Evaluate(context.Background(), "s1", []models.Segment{
		seg("the pricing is too high and we are evaluating a competitor", 0, 4),
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	found := map[string]bool{}
	for _, det := range dets {
		found[det.Keyword] = true
	}
	if !found["pricing"] || !found["competitor"] {
		t.Errorf("expected pricing and competitor detections, got %v", found)
	}
}
