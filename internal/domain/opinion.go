package domain

import (
	"time"
)

// ConsensusMethod selects the aggregation strategy used to merge
// independent opinions into one decision.
type ConsensusMethod string

// Supported consensus methods.
const (
	// MethodWeightedAverage weights each opinion by agent weight times
	// confidence. This is the default method.
	MethodWeightedAverage ConsensusMethod = "weighted_average"

	// MethodMajorityVote buckets scores into low/medium/high tiers and
	// picks the modal tier.
	MethodMajorityVote ConsensusMethod = "majority_vote"

	// MethodHighestConfidence adopts the single most confident opinion.
	MethodHighestConfidence ConsensusMethod = "highest_confidence"

	// MethodDebate dampens outlier confidences by score z-distance and
	// then applies a weighted average.
	MethodDebate ConsensusMethod = "debate"
)

// Opinion is one agent's independent judgment about a subject.
// Score and Confidence are clamped to [0, 1] when the opinion enters
// the consensus engine.
type Opinion struct {
	// AgentID identifies the agent that produced the opinion.
	AgentID string `json:"agent_id"`

	// Score is the agent's judgment in [0, 1].
	Score float64 `json:"score"`

	// Confidence is how certain the agent is about the score, in [0, 1].
	Confidence float64 `json:"confidence"`

	// Reasoning explains how the agent arrived at its score.
	Reasoning string `json:"reasoning,omitempty"`

	// Strengths lists positive findings.
	Strengths []string `json:"strengths,omitempty"`

	// Weaknesses lists negative findings.
	Weaknesses []string `json:"weaknesses,omitempty"`

	// Recommendations lists suggested follow-ups.
	Recommendations []string `json:"recommendations,omitempty"`

	// Metadata carries opinion-scoped annotations.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Conflict kinds recorded during consensus building.
const (
	// ConflictScoreDisagreement marks a spread between the lowest and
	// highest score exceeding the disagreement threshold.
	ConflictScoreDisagreement = "score_disagreement"

	// ConflictStrengthWeakness marks an item cited both as a strength
	// and as a weakness by different agents.
	ConflictStrengthWeakness = "strength_weakness_contradiction"
)

// Conflict records a specific disagreement detected between opinions.
type Conflict struct {
	// Type is one of the conflict kind constants.
	Type string `json:"type"`

	// Agents names the agents involved in a score disagreement.
	Agents []string `json:"agents,omitempty"`

	// Values holds the conflicting scores for a score disagreement.
	Values []float64 `json:"values,omitempty"`

	// Difference is the score delta for a score disagreement.
	Difference float64 `json:"difference,omitempty"`

	// Items lists contradictory strength/weakness entries.
	Items []string `json:"items,omitempty"`

	// Resolution names the strategy applied to resolve the conflict.
	Resolution string `json:"resolution,omitempty"`
}

// ConsensusResult is the merged decision produced from multiple opinions,
// with a quantified agreement level and any detected conflicts.
type ConsensusResult struct {
	// FinalScore is the merged score in [0, 1].
	FinalScore float64 `json:"final_score"`

	// FinalConfidence is the merged confidence in [0, 1].
	FinalConfidence float64 `json:"final_confidence"`

	// Method is the aggregation strategy that produced the result.
	Method ConsensusMethod `json:"method_used"`

	// AgreementLevel quantifies how much the opinions agreed, in [0, 1].
	AgreementLevel float64 `json:"agreement_level"`

	// Agents lists the participating agent IDs in input order.
	Agents []string `json:"participating_agents"`

	// Opinions echoes the input opinions.
	Opinions []Opinion `json:"opinions"`

	// MergedStrengths holds the most frequently cited strengths.
	MergedStrengths []string `json:"merged_strengths"`

	// MergedWeaknesses holds the most frequently cited weaknesses.
	MergedWeaknesses []string `json:"merged_weaknesses"`

	// MergedRecommendations holds the most frequently cited recommendations.
	MergedRecommendations []string `json:"merged_recommendations"`

	// Conflicts lists disagreements detected when agreement was low.
	Conflicts []Conflict `json:"conflicts,omitempty"`

	// Timestamp records when the consensus was built.
	Timestamp time.Time `json:"timestamp"`
}
