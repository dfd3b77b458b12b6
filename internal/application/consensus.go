package application

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/fairfound/agentcore/internal/domain"
	"github.com/fairfound/agentcore/logging"
)

// Consensus tuning constants.
const (
	// conflictThreshold is the agreement level below which conflicts are
	// detected and recorded.
	conflictThreshold = 0.7

	// scoreDisagreementDelta is the min/max score spread that counts as
	// a score disagreement.
	scoreDisagreementDelta = 0.2

	// mergeScanLimit caps how many distinct items mergeLists considers.
	mergeScanLimit = 10

	// mergedListCap caps the merged lists attached to a consensus result.
	mergedListCap = 5

	// Agent weight bounds enforced by SetAgentWeight.
	minAgentWeight = 0.1
	maxAgentWeight = 2.0
)

// fold case-folds an item for case-insensitive comparison. A Caser is
// stateful, so one is created per call rather than shared.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Engine merges independent scored opinions into a single decision,
// quantifying how much the opinions agreed and surfacing conflicts when
// they did not.
type Engine struct {
	// mu guards weights.
	mu      sync.RWMutex
	weights map[string]float64

	logger logging.Logger

	// fuzzyDistance > 0 enables near-duplicate contradiction matching
	// with the given maximum edit distance.
	fuzzyDistance int
}

// EngineOption customizes a consensus Engine at construction time.
type EngineOption func(*Engine)

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFuzzyConflicts enables near-duplicate strength/weakness
// contradiction detection: case-folded items within maxDistance edits of
// each other are treated as the same item. Disabled by default.
func WithFuzzyConflicts(maxDistance int) EngineOption {
	return func(e *Engine) {
		if maxDistance > 0 {
			e.fuzzyDistance = maxDistance
		}
	}
}

// NewEngine creates a consensus engine. Every agent starts with a
// neutral weight of 1.0.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		weights: make(map[string]float64),
		logger:  logging.NoOp{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetAgentWeight sets an agent's influence on weighted consensus
// methods. Weights are clamped to [0.1, 2.0] so no agent is silenced or
// dominant.
func (e *Engine) SetAgentWeight(agentID string, weight float64) {
	weight = math.Min(maxAgentWeight, math.Max(minAgentWeight, weight))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.weights[agentID] = weight
}

// AgentWeight returns an agent's configured weight, defaulting to 1.0.
func (e *Engine) AgentWeight(agentID string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if w, ok := e.weights[agentID]; ok {
		return w
	}
	return 1.0
}

// BuildConsensus merges opinions using the given method. Scores and
// confidences are clamped to [0, 1] on intake. Returns
// domain.ErrNoOpinions for an empty opinion list and an error for an
// unknown method.
func (e *Engine) BuildConsensus(
	opinions []domain.Opinion,
	method domain.ConsensusMethod,
) (*domain.ConsensusResult, error) {
	if len(opinions) == 0 {
		return nil, domain.ErrNoOpinions
	}
	if method == "" {
		method = domain.MethodWeightedAverage
	}

	ops := make([]domain.Opinion, len(opinions))
	copy(ops, opinions)
	for i := range ops {
		ops[i].Score = domain.Clamp01(ops[i].Score)
		ops[i].Confidence = domain.Clamp01(ops[i].Confidence)
	}

	agreement := agreementLevel(ops)
	var conflicts []domain.Conflict
	if agreement < conflictThreshold {
		conflicts = e.detectConflicts(ops)
	}

	var score, confidence float64
	switch method {
	case domain.MethodWeightedAverage:
		score, confidence = e.weightedAverage(ops)
	case domain.MethodMajorityVote:
		score, confidence = majorityVote(ops)
	case domain.MethodHighestConfidence:
		score, confidence = highestConfidence(ops)
	case domain.MethodDebate:
		score, confidence = e.debate(ops)
	default:
		return nil, fmt.Errorf("unknown consensus method %q", method)
	}

	agents := make([]string, len(ops))
	strengths := make([][]string, len(ops))
	weaknesses := make([][]string, len(ops))
	recommendations := make([][]string, len(ops))
	for i, op := range ops {
		agents[i] = op.AgentID
		strengths[i] = op.Strengths
		weaknesses[i] = op.Weaknesses
		recommendations[i] = op.Recommendations
	}

	result := &domain.ConsensusResult{
		FinalScore:            domain.Clamp01(score),
		FinalConfidence:       domain.Clamp01(confidence),
		Method:                method,
		AgreementLevel:        agreement,
		Agents:                agents,
		Opinions:              ops,
		MergedStrengths:       capList(mergeLists(strengths, mergeScanLimit), mergedListCap),
		MergedWeaknesses:      capList(mergeLists(weaknesses, mergeScanLimit), mergedListCap),
		MergedRecommendations: capList(mergeLists(recommendations, mergeScanLimit), mergedListCap),
		Conflicts:             conflicts,
		Timestamp:             time.Now(),
	}

	e.logger.Debug("consensus built",
		"method", string(method), "opinions", len(ops),
		"final_score", result.FinalScore, "agreement", agreement,
		"conflicts", len(conflicts))
	return result, nil
}

// agreementLevel quantifies opinion agreement via the coefficient of
// variation: 1 − stdev/mean, floored at zero. Fewer than two opinions,
// or a zero mean with no spread, count as full agreement.
func agreementLevel(ops []domain.Opinion) float64 {
	if len(ops) < 2 {
		return 1.0
	}

	mean := meanScore(ops)
	stdev := sampleStdev(ops, mean)
	if mean == 0 {
		if stdev == 0 {
			return 1.0
		}
		return 0.0
	}
	return math.Max(0, 1-stdev/mean)
}

func meanScore(ops []domain.Opinion) float64 {
	var sum float64
	for _, op := range ops {
		sum += op.Score
	}
	return sum / float64(len(ops))
}

// sampleStdev computes the sample standard deviation (n−1 divisor) of
// the opinion scores.
func sampleStdev(ops []domain.Opinion, mean float64) float64 {
	if len(ops) < 2 {
		return 0
	}
	var sum float64
	for _, op := range ops {
		d := op.Score - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(ops)-1))
}

// detectConflicts records the concrete disagreements behind a low
// agreement level: large score spreads and items cited both as a
// strength and as a weakness.
func (e *Engine) detectConflicts(ops []domain.Opinion) []domain.Conflict {
	var conflicts []domain.Conflict

	low, high := 0, 0
	for i, op := range ops {
		if op.Score < ops[low].Score {
			low = i
		}
		if op.Score > ops[high].Score {
			high = i
		}
	}
	if diff := ops[high].Score - ops[low].Score; diff > scoreDisagreementDelta {
		conflicts = append(conflicts, domain.Conflict{
			Type:       domain.ConflictScoreDisagreement,
			Agents:     []string{ops[low].AgentID, ops[high].AgentID},
			Values:     []float64{ops[low].Score, ops[high].Score},
			Difference: diff,
			Resolution: "weighted_average",
		})
	}

	// Items cited as a strength by one agent and a weakness by another.
	// Comparison is case-folded; the strength's original casing is kept.
	strengths := make(map[string]string)
	for _, op := range ops {
		for _, s := range op.Strengths {
			key := fold(s)
			if _, seen := strengths[key]; !seen {
				strengths[key] = s
			}
		}
	}

	var contradictions []string
	seen := make(map[string]bool)
	for _, op := range ops {
		for _, w := range op.Weaknesses {
			key := fold(w)
			match, ok := strengths[key]
			if !ok && e.fuzzyDistance > 0 {
				match, ok = e.fuzzyMatch(strengths, key)
			}
			if ok && !seen[fold(match)] {
				seen[fold(match)] = true
				contradictions = append(contradictions, match)
			}
		}
	}
	if len(contradictions) > 0 {
		conflicts = append(conflicts, domain.Conflict{
			Type:       domain.ConflictStrengthWeakness,
			Items:      contradictions,
			Resolution: "flagged_for_review",
		})
	}

	return conflicts
}

// fuzzyMatch finds a folded strength within the configured edit
// distance of the folded weakness.
func (e *Engine) fuzzyMatch(strengths map[string]string, folded string) (string, bool) {
	for key, original := range strengths {
		if levenshtein.ComputeDistance(key, folded) <= e.fuzzyDistance {
			return original, true
		}
	}
	return "", false
}

// weightedAverage merges opinions weighted by agent weight times
// confidence. A zero total weight yields the neutral (0.5, 0.5).
func (e *Engine) weightedAverage(ops []domain.Opinion) (float64, float64) {
	var totalWeight, scoreSum, confSum float64
	for _, op := range ops {
		w := e.AgentWeight(op.AgentID) * op.Confidence
		totalWeight += w
		scoreSum += op.Score * w
		confSum += op.Confidence * w
	}
	if totalWeight == 0 {
		return 0.5, 0.5
	}
	return scoreSum / totalWeight, confSum / totalWeight
}

// majorityVote buckets scores into low (< 0.4), medium (< 0.7), and
// high tiers and adopts the modal tier's representative score. Ties
// resolve to the lower tier. Confidence is the modal tier's share of
// the votes.
func majorityVote(ops []domain.Opinion) (float64, float64) {
	var counts [3]int
	for _, op := range ops {
		switch {
		case op.Score < 0.4:
			counts[0]++
		case op.Score < 0.7:
			counts[1]++
		default:
			counts[2]++
		}
	}

	modal := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[modal] {
			modal = i
		}
	}

	representative := [3]float64{0.3, 0.55, 0.8}
	confidence := float64(counts[modal]) / float64(len(ops))
	return representative[modal], confidence
}

// highestConfidence adopts the single most confident opinion; earlier
// opinions win ties.
func highestConfidence(ops []domain.Opinion) (float64, float64) {
	best := 0
	for i := 1; i < len(ops); i++ {
		if ops[i].Confidence > ops[best].Confidence {
			best = i
		}
	}
	return ops[best].Score, ops[best].Confidence
}

// debate dampens the confidence of outlier opinions in proportion to
// their score's z-distance from the mean, then applies a weighted
// average. Dampening never drops a confidence below half its value.
func (e *Engine) debate(ops []domain.Opinion) (float64, float64) {
	mean := meanScore(ops)
	stdev := sampleStdev(ops, mean)

	adjusted := make([]domain.Opinion, len(ops))
	copy(adjusted, ops)
	if stdev > 0 {
		for i := range adjusted {
			z := math.Abs(adjusted[i].Score-mean) / stdev
			factor := math.Max(0.5, 1-0.2*z)
			adjusted[i].Confidence *= factor
		}
	}
	return e.weightedAverage(adjusted)
}

// mergeLists merges multiple item lists, counting case-folded trimmed
// duplicates, and returns up to maxItems items ordered by frequency
// (ties keep first appearance). Items keep their first-seen casing.
func mergeLists(lists [][]string, maxItems int) []string {
	counts := make(map[string]int)
	originals := make(map[string]string)
	var order []string

	for _, list := range lists {
		for _, item := range list {
			trimmed := strings.TrimSpace(item)
			key := fold(trimmed)
			if key == "" {
				continue
			}
			if _, seen := counts[key]; !seen {
				originals[key] = trimmed
				order = append(order, key)
			}
			counts[key]++
		}
	}

	// Stable sort by frequency descending; equal frequencies keep
	// first-appearance order.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > maxItems {
		order = order[:maxItems]
	}
	result := make([]string, len(order))
	for i, key := range order {
		result[i] = originals[key]
	}
	return result
}

// capList truncates a list to at most n items.
func capList(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
