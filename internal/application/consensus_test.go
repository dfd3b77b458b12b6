package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairfound/agentcore/internal/domain"
)

func opinion(agentID string, score, confidence float64) domain.Opinion {
	return domain.Opinion{AgentID: agentID, Score: score, Confidence: confidence}
}

func TestBuildConsensusRequiresOpinions(t *testing.T) {
	engine := NewEngine()
	_, err := engine.BuildConsensus(nil, domain.MethodWeightedAverage)
	assert.ErrorIs(t, err, domain.ErrNoOpinions)
}

func TestBuildConsensusUnknownMethod(t *testing.T) {
	engine := NewEngine()
	_, err := engine.BuildConsensus(
		[]domain.Opinion{opinion("a", 0.5, 0.5)}, domain.ConsensusMethod("quantum"))
	assert.ErrorContains(t, err, "unknown consensus method")
}

func TestBuildConsensusDefaultsToWeightedAverage(t *testing.T) {
	engine := NewEngine()
	result, err := engine.BuildConsensus([]domain.Opinion{opinion("a", 0.6, 0.9)}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.MethodWeightedAverage, result.Method)
}

func TestWeightedAverageSymmetricOpinions(t *testing.T) {
	engine := NewEngine()
	result, err := engine.BuildConsensus([]domain.Opinion{
		opinion("optimist", 0.8, 1.0),
		opinion("pessimist", 0.2, 1.0),
	}, domain.MethodWeightedAverage)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.FinalScore, 1e-9)
	assert.InDelta(t, 1.0, result.FinalConfidence, 1e-9)
	assert.Equal(t, []string{"optimist", "pessimist"}, result.Agents)
}

func TestWeightedAverageRespectsAgentWeights(t *testing.T) {
	engine := NewEngine()
	engine.SetAgentWeight("trusted", 2.0)
	engine.SetAgentWeight("rookie", 0.5)

	result, err := engine.BuildConsensus([]domain.Opinion{
		opinion("trusted", 0.9, 1.0),
		opinion("rookie", 0.1, 1.0),
	}, domain.MethodWeightedAverage)
	require.NoError(t, err)

	// (0.9*2 + 0.1*0.5) / 2.5 = 0.74
	assert.InDelta(t, 0.74, result.FinalScore, 1e-9)
}

func TestWeightedAverageZeroConfidenceIsNeutral(t *testing.T) {
	engine := NewEngine()
	result, err := engine.BuildConsensus([]domain.Opinion{
		opinion("a", 0.9, 0),
		opinion("b", 0.1, 0),
	}, domain.MethodWeightedAverage)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.FinalScore, 1e-9)
	assert.InDelta(t, 0.5, result.FinalConfidence, 1e-9)
}

func TestSetAgentWeightClamps(t *testing.T) {
	engine := NewEngine()
	engine.SetAgentWeight("silenced", -3)
	engine.SetAgentWeight("dominant", 100)

	assert.InDelta(t, 0.1, engine.AgentWeight("silenced"), 1e-9)
	assert.InDelta(t, 2.0, engine.AgentWeight("dominant"), 1e-9)
	assert.InDelta(t, 1.0, engine.AgentWeight("unconfigured"), 1e-9)
}

func TestOpinionsAreClampedOnIntake(t *testing.T) {
	engine := NewEngine()
	result, err := engine.BuildConsensus([]domain.Opinion{
		{AgentID: "wild", Score: 7.5, Confidence: -2},
		{AgentID: "tame", Score: 0.5, Confidence: 1.0},
	}, domain.MethodWeightedAverage)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.Opinions[0].Score, 1e-9)
	assert.InDelta(t, 0.0, result.Opinions[0].Confidence, 1e-9)
	assert.True(t, result.FinalScore >= 0 && result.FinalScore <= 1)
}

func TestMajorityVote(t *testing.T) {
	tests := []struct {
		name           string
		scores         []float64
		wantScore      float64
		wantConfidence float64
	}{
		{
			name:           "high majority",
			scores:         []float64{0.9, 0.8, 0.75, 0.3},
			wantScore:      0.8,
			wantConfidence: 0.75,
		},
		{
			name:           "low majority",
			scores:         []float64{0.1, 0.2, 0.9},
			wantScore:      0.3,
			wantConfidence: 2.0 / 3.0,
		},
		{
			name:           "medium majority",
			scores:         []float64{0.5, 0.6, 0.65},
			wantScore:      0.55,
			wantConfidence: 1.0,
		},
		{
			name:           "tie resolves to lower tier",
			scores:         []float64{0.1, 0.9},
			wantScore:      0.3,
			wantConfidence: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine()
			opinions := make([]domain.Opinion, len(tt.scores))
			for i, score := range tt.scores {
				opinions[i] = opinion("agent", score, 0.9)
			}
			result, err := engine.BuildConsensus(opinions, domain.MethodMajorityVote)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantScore, result.FinalScore, 1e-9)
			assert.InDelta(t, tt.wantConfidence, result.FinalConfidence, 1e-9)
		})
	}
}

func TestHighestConfidenceAdoptsMostConfidentOpinion(t *testing.T) {
	engine := NewEngine()
	result, err := engine.BuildConsensus([]domain.Opinion{
		opinion("meek", 0.2, 0.4),
		opinion("bold", 0.9, 0.95),
		opinion("tied", 0.1, 0.95),
	}, domain.MethodHighestConfidence)
	require.NoError(t, err)

	// Ties go to the earlier opinion.
	assert.InDelta(t, 0.9, result.FinalScore, 1e-9)
	assert.InDelta(t, 0.95, result.FinalConfidence, 1e-9)
}

func TestDebateDampensOutliers(t *testing.T) {
	engine := NewEngine()

	aligned := []domain.Opinion{
		opinion("a", 0.8, 0.9),
		opinion("b", 0.8, 0.9),
		opinion("outlier", 0.1, 0.9),
	}
	debate, err := engine.BuildConsensus(aligned, domain.MethodDebate)
	require.NoError(t, err)
	plain, err := engine.BuildConsensus(aligned, domain.MethodWeightedAverage)
	require.NoError(t, err)

	// Dampening the outlier's confidence pulls the debate score above
	// the plain weighted average.
	assert.Greater(t, debate.FinalScore, plain.FinalScore)
	assert.Equal(t, domain.MethodDebate, debate.Method)
}

func TestDebateIdenticalScoresMatchesWeightedAverage(t *testing.T) {
	engine := NewEngine()
	opinions := []domain.Opinion{
		opinion("a", 0.6, 0.8),
		opinion("b", 0.6, 0.9),
	}

	debate, err := engine.BuildConsensus(opinions, domain.MethodDebate)
	require.NoError(t, err)
	plain, err := engine.BuildConsensus(opinions, domain.MethodWeightedAverage)
	require.NoError(t, err)

	assert.InDelta(t, plain.FinalScore, debate.FinalScore, 1e-9)
	assert.InDelta(t, plain.FinalConfidence, debate.FinalConfidence, 1e-9)
}

func TestAgreementLevel(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{name: "single opinion", scores: []float64{0.4}, want: 1.0},
		{name: "identical scores", scores: []float64{0.7, 0.7, 0.7}, want: 1.0},
		{name: "all zero", scores: []float64{0, 0}, want: 1.0},
		{name: "maximal spread", scores: []float64{0, 1}, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine()
			opinions := make([]domain.Opinion, len(tt.scores))
			for i, score := range tt.scores {
				opinions[i] = opinion("agent", score, 0.9)
			}
			result, err := engine.BuildConsensus(opinions, domain.MethodWeightedAverage)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, result.AgreementLevel, 1e-9)
		})
	}
}

func TestConflictDetectionScoreDisagreement(t *testing.T) {
	engine := NewEngine()
	result, err := engine.BuildConsensus([]domain.Opinion{
		opinion("harsh", 0.1, 0.9),
		opinion("generous", 0.9, 0.9),
	}, domain.MethodWeightedAverage)
	require.NoError(t, err)

	require.NotEmpty(t, result.Conflicts)
	conflict := result.Conflicts[0]
	assert.Equal(t, domain.ConflictScoreDisagreement, conflict.Type)
	assert.Equal(t, []string{"harsh", "generous"}, conflict.Agents)
	assert.InDelta(t, 0.8, conflict.Difference, 1e-9)
}

func TestConflictDetectionStrengthWeaknessContradiction(t *testing.T) {
	engine := NewEngine()
	result, err := engine.BuildConsensus([]domain.Opinion{
		{
			AgentID: "fan", Score: 0.9, Confidence: 0.9,
			Strengths: []string{"Strong Python skills", "communication"},
		},
		{
			AgentID: "critic", Score: 0.1, Confidence: 0.9,
			Weaknesses: []string{"strong python skills"},
		},
	}, domain.MethodWeightedAverage)
	require.NoError(t, err)

	var found *domain.Conflict
	for i := range result.Conflicts {
		if result.Conflicts[i].Type == domain.ConflictStrengthWeakness {
			found = &result.Conflicts[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, []string{"Strong Python skills"}, found.Items)
}

func TestNoConflictsAtHighAgreement(t *testing.T) {
	engine := NewEngine()
	result, err := engine.BuildConsensus([]domain.Opinion{
		{AgentID: "a", Score: 0.8, Confidence: 0.9, Strengths: []string{"clarity"}},
		{AgentID: "b", Score: 0.82, Confidence: 0.9, Weaknesses: []string{"clarity"}},
	}, domain.MethodWeightedAverage)
	require.NoError(t, err)

	// Agreement is high, so even a contradictory item is not flagged.
	assert.Empty(t, result.Conflicts)
}

func TestFuzzyConflictMatching(t *testing.T) {
	engine := NewEngine(WithFuzzyConflicts(2))
	result, err := engine.BuildConsensus([]domain.Opinion{
		{AgentID: "fan", Score: 0.9, Confidence: 0.9, Strengths: []string{"teamwork"}},
		{AgentID: "critic", Score: 0.1, Confidence: 0.9, Weaknesses: []string{"teamworks"}},
	}, domain.MethodWeightedAverage)
	require.NoError(t, err)

	var found bool
	for _, c := range result.Conflicts {
		if c.Type == domain.ConflictStrengthWeakness {
			found = true
			assert.Equal(t, []string{"teamwork"}, c.Items)
		}
	}
	assert.True(t, found)
}

func TestMergedListsOrderAndCap(t *testing.T) {
	engine := NewEngine()
	opinions := []domain.Opinion{
		{
			AgentID: "a", Score: 0.8, Confidence: 0.9,
			Strengths: []string{"Python", "communication"},
		},
		{
			AgentID: "b", Score: 0.78, Confidence: 0.9,
			Strengths: []string{"python", "leadership"},
		},
	}

	result, err := engine.BuildConsensus(opinions, domain.MethodWeightedAverage)
	require.NoError(t, err)

	// "Python" is cited twice (case-insensitively) and keeps its
	// first-seen casing; singles follow in first-appearance order.
	assert.Equal(t, []string{"Python", "communication", "leadership"}, result.MergedStrengths)
}

func TestMergedListsCappedAtFive(t *testing.T) {
	engine := NewEngine()
	opinions := []domain.Opinion{
		{
			AgentID: "verbose", Score: 0.8, Confidence: 0.9,
			Recommendations: []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7"},
		},
	}

	result, err := engine.BuildConsensus(opinions, domain.MethodWeightedAverage)
	require.NoError(t, err)
	assert.Len(t, result.MergedRecommendations, 5)
	assert.Equal(t, []string{"r1", "r2", "r3", "r4", "r5"}, result.MergedRecommendations)
}

func TestMergeListsIgnoresBlankItems(t *testing.T) {
	merged := mergeLists([][]string{{"  ", "focus", ""}, {"Focus "}}, 10)
	assert.Equal(t, []string{"focus"}, merged)
}
