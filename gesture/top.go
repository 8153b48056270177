package gesture

import (
	"math"

	"github.com/e7canasta/senyas-gesture/recognizer"
)

// Observation is the single best classification extracted from a result.
type Observation struct {
	Label       string
	Score       float32
	TimestampMs int64
	// Hand is the index of the chosen hand within the result.
	Hand int
}

// TopGesture picks the highest-confidence candidate of the
// highest-confidence hand.
//
// Hand confidence is its top handedness score when handedness is present,
// otherwise its best gesture score. Ties keep the first hand/candidate.
// Non-finite scores are ignored and scores are clamped to [0,1].
// Returns false when no hand has a usable candidate.
func TopGesture(res recognizer.Result) (Observation, bool) {
	bestHand := -1
	var bestHandScore float32
	var bestCat recognizer.Category

	for h, candidates := range res.Gestures {
		cat, ok := bestCategory(candidates)
		if !ok {
			continue
		}
		handScore := cat.Score
		if h < len(res.Handedness) {
			if hc, ok := bestCategory(res.Handedness[h]); ok {
				handScore = hc.Score
			}
		}
		if bestHand < 0 || handScore > bestHandScore {
			bestHand = h
			bestHandScore = handScore
			bestCat = cat
		}
	}

	if bestHand < 0 {
		return Observation{}, false
	}
	return Observation{
		Label:       bestCat.Name,
		Score:       clamp01(bestCat.Score),
		TimestampMs: res.TimestampMs,
		Hand:        bestHand,
	}, true
}

func bestCategory(cats []recognizer.Category) (recognizer.Category, bool) {
	var best recognizer.Category
	found := false
	for _, c := range cats {
		if !finite(c.Score) {
			continue
		}
		if !found || c.Score > best.Score {
			best = c
			found = true
		}
	}
	return best, found
}

func finite(f float32) bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(f float32) float32 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
