package enrichmentmodule

import "sort"

// EntityKind selects the threshold profile for match classification.
type EntityKind string

const (
	KindArtist EntityKind = "artist"
	KindAlbum  EntityKind = "album"
	KindTrack  EntityKind = "track"
)

// DecisionAction is the outcome of classifying a candidate list.
type DecisionAction string

const (
	// ActionApply means the best candidate is confident enough to store
	// without review.
	ActionApply DecisionAction = "apply"
	// ActionReview means the match is plausible but needs a human decision.
	ActionReview DecisionAction = "review"
	// ActionIgnore means no candidate is usable.
	ActionIgnore DecisionAction = "ignore"
)

// Thresholds are the score boundaries for one entity kind.
type Thresholds struct {
	AutoApply float64
	Review    float64
}

// Decision is the classification result for a canonical-ID search.
type Decision struct {
	Action     DecisionAction
	Best       *CandidateMatch
	Candidates []CandidateMatch
}

const maxReviewCandidates = 5

// Classify sorts candidates by descending score and applies the kind's
// thresholds. Scores at exactly the auto-apply boundary are applied;
// scores at exactly the review boundary go to review.
func Classify(kind EntityKind, candidates []CandidateMatch, t Thresholds) Decision {
	if len(candidates) == 0 {
		return Decision{Action: ActionIgnore}
	}

	sorted := make([]CandidateMatch, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	best := sorted[0]
	switch {
	case best.Score >= t.AutoApply:
		return Decision{Action: ActionApply, Best: &best}
	case best.Score >= t.Review:
		top := sorted
		if len(top) > maxReviewCandidates {
			top = top[:maxReviewCandidates]
		}
		return Decision{Action: ActionReview, Best: &best, Candidates: top}
	default:
		return Decision{Action: ActionIgnore}
	}
}

// ThresholdsFor builds the threshold profile for an entity kind from
// configured values. Tracks get a stricter auto-apply bar.
func ThresholdsFor(kind EntityKind, autoApply, trackAutoApply, review float64) Thresholds {
	if kind == KindTrack {
		return Thresholds{AutoApply: trackAutoApply, Review: review}
	}
	return Thresholds{AutoApply: autoApply, Review: review}
}
