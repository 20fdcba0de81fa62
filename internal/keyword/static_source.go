package keyword

import (
	"context"
	"encoding/json"
	"os"

	"ai-call-insight-service/internal/models"
)

// StaticSource is a RuleSource backed by an in-memory ruleset, optionally
// loaded from a JSON file. It stands in for the external configuration
// store in development and tests.
type StaticSource struct {
	rules []models.KeywordRule
}

// NewStaticSource creates a source serving the given rules.
func NewStaticSource(rules []models.KeywordRule) *StaticSource {
	return &StaticSource{rules: rules}
}

// LoadRulesFile reads a JSON array of keyword rules.
func LoadRulesFile(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []models.KeywordRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	return &StaticSource{rules: rules}, nil
}

// ListRules returns a copy of the configured rules.
func (s *StaticSource) ListRules(ctx context.Context) ([]models.KeywordRule, error) {
	out := make([]models.KeywordRule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// DefaultRules is the seed ruleset for sales call monitoring.
func DefaultRules() []models.KeywordRule {
	return []models.KeywordRule{
		{
			Pattern:     "pricing",
			Description: "Discussion about product pricing",
			Threshold:   0.7,
			TalkingPoints: []models.TalkingPoint{
				{Title: "Pricing Structure", Content: "Our pricing is based on a tiered model with discounts for annual commitments.", Priority: 1},
				{Title: "ROI Calculator", Content: "We can provide an ROI calculator to demonstrate the value of our solution for your specific use case.", Priority: 2},
			},
		},
		{
			Pattern:     "competitor",
			Description: "Mentions of competitor products",
			Threshold:   0.8,
			TalkingPoints: []models.TalkingPoint{
				{Title: "Competitive Advantages", Content: "Our solution offers superior accuracy and real-time capabilities compared to competitors.", Priority: 1},
				{Title: "Migration Path", Content: "We offer a seamless migration path from competitor products with dedicated support.", Priority: 2},
			},
		},
		{
			Pattern:     "integration",
			Description: "Questions about integrating with other systems",
			Threshold:   0.7,
			TalkingPoints: []models.TalkingPoint{
				{Title: "API Documentation", Content: "We provide comprehensive API documentation and SDKs for all major programming languages.", Priority: 1},
				{Title: "Pre-built Integrations", Content: "We offer pre-built integrations with popular CRM and communication platforms.", Priority: 2},
			},
		},
		{
			Pattern:     "contract",
			Description: "Contract and commitment questions",
			Threshold:   0.7,
			TalkingPoints: []models.TalkingPoint{
				{Title: "Flexible Terms", Content: "We offer monthly and annual contracts with no long-term lock-in.", Priority: 1},
			},
		},
	}
}
