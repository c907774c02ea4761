package assetmodule

// QualityPolicy decides when a candidate image should replace a stored
// one. Resolution is the only signal; equal or unknown resolutions never
// trigger a replacement proposal.
type QualityPolicy struct {
	HighQualityMinWidth  int
	HighQualityMinHeight int
	ImprovementThreshold float64
}

func NewQualityPolicy(minWidth, minHeight int, improvementThreshold float64) QualityPolicy {
	if minWidth <= 0 {
		minWidth = 1000
	}
	if minHeight <= 0 {
		minHeight = 1000
	}
	if improvementThreshold <= 0 {
		improvementThreshold = 0.5
	}
	return QualityPolicy{
		HighQualityMinWidth:  minWidth,
		HighQualityMinHeight: minHeight,
		ImprovementThreshold: improvementThreshold,
	}
}

// IsHighQuality reports whether the image meets the high-quality floor on
// both axes.
func (p QualityPolicy) IsHighQuality(d Dimensions) bool {
	return d.Known && d.Width >= p.HighQualityMinWidth && d.Height >= p.HighQualityMinHeight
}

// IsLowQuality reports whether either axis falls below half the
// high-quality floor.
func (p QualityPolicy) IsLowQuality(d Dimensions) bool {
	return d.Known && (d.Width < p.HighQualityMinWidth/2 || d.Height < p.HighQualityMinHeight/2)
}

// IsSignificantImprovement reports whether candidate's pixel area exceeds
// current's by at least the improvement threshold.
func (p QualityPolicy) IsSignificantImprovement(current, candidate Dimensions) bool {
	if !current.Known || !candidate.Known {
		return false
	}
	currentArea := current.Area()
	if currentArea == 0 {
		return candidate.Area() > 0
	}
	gain := float64(candidate.Area()-currentArea) / float64(currentArea)
	return gain >= p.ImprovementThreshold
}

// ReplacementVerdict is the outcome of comparing a candidate against the
// stored image.
type ReplacementVerdict struct {
	Propose bool
	Reason  string
	// QualityImprovement is the fractional area gain when Propose is true.
	QualityImprovement float64
}

// ShouldProposeReplacement gates a replacement proposal. A candidate that
// improves significantly on the stored image proposes even when the
// stored one already clears the high-quality floor; a high-quality stored
// image only shields against marginal gains. Identical resolutions and
// unknown candidate dimensions never propose.
func (p QualityPolicy) ShouldProposeReplacement(current, candidate Dimensions) ReplacementVerdict {
	if !candidate.Known {
		return ReplacementVerdict{Reason: "candidate dimensions unknown"}
	}
	if !current.Known {
		return ReplacementVerdict{Reason: "stored dimensions unknown"}
	}
	if current.Width == candidate.Width && current.Height == candidate.Height {
		return ReplacementVerdict{Reason: "identical resolution"}
	}
	improvement := p.IsSignificantImprovement(current, candidate)
	if p.IsHighQuality(current) && !improvement {
		return ReplacementVerdict{Reason: "stored image already high quality"}
	}
	if !improvement {
		return ReplacementVerdict{Reason: "improvement below threshold"}
	}

	gain := float64(candidate.Area()-current.Area()) / float64(current.Area())
	reason := "higher resolution available"
	if p.IsLowQuality(current) {
		reason = "stored image is low quality"
	}
	return ReplacementVerdict{
		Propose:            true,
		Reason:             reason,
		QualityImprovement: gain,
	}
}
