package pipeline

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func successfulRetrieval(content string, mode RetrievalMode) RetrievalResult {
	return RetrievalResult{Content: content, Mode: mode, Succeeded: true}
}

func TestGate_Assess_FailureShortCircuit(t *testing.T) {
	g := NewGate(DefaultGateConfig(), nil, zap.NewNop())

	assessment := g.Assess(
		QueryAnalysis{Category: CategoryFactual, Mode: ModeVector, KeyEntities: []string{"x"}},
		RetrievalResult{Succeeded: false},
	)

	if assessment.OverallScore != 0.0 {
		t.Errorf("expected score 0.0 on failed retrieval, got %f", assessment.OverallScore)
	}
	if !assessment.NeedsSupplement {
		t.Error("failed retrieval must force supplement")
	}
	for factor, score := range assessment.FactorBreakdown {
		if score != 0.0 {
			t.Errorf("factor %s: expected 0.0, got %f", factor, score)
		}
	}
	if assessment.Reason == "" {
		t.Error("expected reason to be set")
	}
}

func TestGate_Assess_ThresholdOrdering(t *testing.T) {
	g := NewGate(DefaultGateConfig(), nil, zap.NewNop())

	factual := g.thresholdFor(CategoryFactual)
	relational := g.thresholdFor(CategoryRelational)
	analytical := g.thresholdFor(CategoryAnalytical)

	if !(factual > relational && relational > analytical) {
		t.Errorf("threshold ordering violated: factual=%f relational=%f analytical=%f",
			factual, relational, analytical)
	}
}

func TestGate_Assess_ThresholdClamped(t *testing.T) {
	config := DefaultGateConfig()
	config.Thresholds = map[QueryCategory]float64{
		CategoryFactual:    0.95,
		CategoryAnalytical: 0.1,
	}
	g := NewGate(config, nil, zap.NewNop())

	if got := g.thresholdFor(CategoryFactual); got != 0.9 {
		t.Errorf("expected upper clamp 0.9, got %f", got)
	}
	if got := g.thresholdFor(CategoryAnalytical); got != 0.3 {
		t.Errorf("expected lower clamp 0.3, got %f", got)
	}
}

func TestGate_Assess_EmptyEntitiesVacuousCoverage(t *testing.T) {
	g := NewGate(DefaultGateConfig(), nil, zap.NewNop())

	assessment := g.Assess(
		QueryAnalysis{Category: CategoryFactual, Mode: ModeVector},
		successfulRetrieval(strings.Repeat("text without the entity. ", 10), ModeVector),
	)

	if got := assessment.FactorBreakdown[FactorEntityCoverage]; got != 1.0 {
		t.Errorf("empty entity list must yield coverage 1.0, got %f", got)
	}
}

func TestGate_Assess_EntityCoverage(t *testing.T) {
	g := NewGate(DefaultGateConfig(), nil, zap.NewNop())
	content := "Machine learning is a subfield of artificial intelligence. It studies algorithms."

	tests := []struct {
		name     string
		entities []string
		want     float64
	}{
		{"full match", []string{"machine learning"}, 1.0},
		{"no match", []string{"quantum computing"}, 0.0},
		{"half matched", []string{"machine learning", "blockchain"}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.entityCoverage(tt.entities, content)
			if got != tt.want {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestGate_Assess_EntityPartialWordMatch(t *testing.T) {
	g := NewGate(DefaultGateConfig(), nil, zap.NewNop())

	// "neural" 命中而 "architecture" 未命中：1/2 * 0.6 = 0.3
	got := g.entityCoverage([]string{"neural architecture"}, "deep neural networks are widely used.")
	if got != 0.3 {
		t.Errorf("expected partial match 0.3, got %f", got)
	}
}

func TestGate_Assess_ModeEffectiveness(t *testing.T) {
	g := NewGate(DefaultGateConfig(), nil, zap.NewNop())

	tests := []struct {
		category QueryCategory
		used     RetrievalMode
		want     float64
	}{
		{CategoryFactual, ModeVector, 1.0},
		{CategoryRelational, ModeGraph, 1.0},
		{CategoryAnalytical, ModeHybrid, 1.0},
		{CategoryFactual, ModeHybrid, 0.8},
		{CategoryFactual, ModeGraph, 0.6},
		{CategoryRelational, ModeVector, 0.6},
	}

	for _, tt := range tests {
		got := g.modeEffectiveness(tt.category, tt.used)
		if got != tt.want {
			t.Errorf("category=%s used=%s: expected %f, got %f", tt.category, tt.used, tt.want, got)
		}
	}
}

func TestGate_Assess_RichFactualContentPasses(t *testing.T) {
	g := NewGate(DefaultGateConfig(), nil, zap.NewNop())

	content := strings.Repeat("Machine learning is a field of artificial intelligence. ", 25)
	content = strings.TrimSpace(content)

	assessment := g.Assess(
		QueryAnalysis{Category: CategoryFactual, Mode: ModeVector, KeyEntities: []string{"machine learning"}},
		successfulRetrieval(content, ModeVector),
	)

	if assessment.NeedsSupplement {
		t.Errorf("rich on-topic content should pass the factual gate, score=%f threshold=%f",
			assessment.OverallScore, assessment.Threshold)
	}
}

func TestGate_Assess_ThinContentTriggersSupplement(t *testing.T) {
	g := NewGate(DefaultGateConfig(), nil, zap.NewNop())

	assessment := g.Assess(
		QueryAnalysis{Category: CategoryFactual, Mode: ModeGraph, KeyEntities: []string{"quantum gravity"}},
		successfulRetrieval("Some unrelated text about databases and indexing strategies here", ModeGraph),
	)

	if !assessment.NeedsSupplement {
		t.Errorf("thin off-topic content should fail the factual gate, score=%f", assessment.OverallScore)
	}
}

func TestGate_Assess_CompletenessStructuralPenalties(t *testing.T) {
	g := NewGate(DefaultGateConfig(), nil, zap.NewNop())

	terminated := strings.Repeat("A complete sentence about the topic at hand here. ", 12)
	terminated = strings.TrimSpace(terminated)
	truncated := terminated[:len(terminated)-1] + "..."

	full := g.contentCompleteness(terminated)
	cut := g.contentCompleteness(truncated)

	if cut >= full {
		t.Errorf("truncated ending should score lower: full=%f truncated=%f", full, cut)
	}
}

func TestGate_Assess_CustomWeights(t *testing.T) {
	config := DefaultGateConfig()
	config.Weights = map[string]float64{
		FactorRetrieval:         1.0,
		FactorCompleteness:      0.0,
		FactorEntityCoverage:    0.0,
		FactorModeEffectiveness: 0.0,
	}
	config.ModeBonus = nil
	g := NewGate(config, nil, zap.NewNop())

	content := strings.Repeat("x", 1200)
	assessment := g.Assess(
		QueryAnalysis{Category: CategoryAnalytical, Mode: ModeVector},
		successfulRetrieval(content, ModeVector),
	)

	// retrieval_score = 0.9 (length) + 0.05 (vector bonus)
	if diff := assessment.OverallScore - 0.95; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected score 0.95 with retrieval-only weights, got %f", assessment.OverallScore)
	}
}
