package moderation

import (
	"fmt"

	"github.com/samber/lo"
)

const (
	DefaultAutoApproveConfidence = 0.85
	DefaultMinRecommendedAnchors = 3
)

// Assessment is what a vision scan reports about one asset.
type Assessment struct {
	Flags         []Flag
	Confidence    float64
	DetectedFaces int
}

type Decision struct {
	Status ScanStatus
	Flags  []Flag
	Reason string
}

type Policy struct {
	AutoApproveConfidence float64
	MinRecommendedAnchors int
	ExtraHighRisk         []Flag
	ExtraReview           []Flag
}

func DefaultPolicy() Policy {
	return Policy{
		AutoApproveConfidence: DefaultAutoApproveConfidence,
		MinRecommendedAnchors: DefaultMinRecommendedAnchors,
	}
}

func (p Policy) Validate() error {
	if p.AutoApproveConfidence < 0 || p.AutoApproveConfidence > 1 {
		return fmt.Errorf("%w: auto_approve_confidence must be within [0,1], got %v", ErrValidation, p.AutoApproveConfidence)
	}
	if p.MinRecommendedAnchors < 0 {
		return fmt.Errorf("%w: min_recommended_anchors must not be negative", ErrValidation)
	}
	for _, flag := range append(append([]Flag{}, p.ExtraHighRisk...), p.ExtraReview...) {
		if !flag.Valid() {
			return fmt.Errorf("%w: unknown flag %q in policy", ErrValidation, flag)
		}
	}
	return nil
}

func (p Policy) HighRisk() []Flag {
	return lo.Uniq(append(append([]Flag{}, HighRiskFlags...), p.ExtraHighRisk...))
}

func (p Policy) Review() []Flag {
	return lo.Uniq(append(append([]Flag{}, ReviewFlags...), p.ExtraReview...))
}

// Decide applies the auto-moderation policy. It never yields rejected: rejection
// is reserved for human review, and pipeline errors are recorded as failed elsewhere.
func (p Policy) Decide(a Assessment, activeAnchors int) Decision {
	flags := lo.Uniq(append([]Flag{}, a.Flags...))
	if a.DetectedFaces == 0 {
		flags = appendFlag(flags, FlagNoFaceDetected)
	}
	if a.DetectedFaces > 1 {
		flags = appendFlag(flags, FlagMultipleFaces)
	}
	if activeAnchors == 0 {
		flags = appendFlag(flags, FlagNoAnchors)
	} else if activeAnchors < p.MinRecommendedAnchors {
		flags = appendFlag(flags, FlagInsufficientAnchors)
	}

	switch {
	case HasAnyFlag(flags, p.HighRisk()):
		return Decision{Status: ScanPendingReview, Flags: flags, Reason: "high-risk flag raised"}
	case lo.Contains(flags, FlagNoFaceDetected):
		return Decision{Status: ScanPendingReview, Flags: flags, Reason: "no face detected"}
	case lo.Contains(flags, FlagNoAnchors):
		return Decision{Status: ScanPendingReview, Flags: flags, Reason: "model has no active anchors"}
	case HasAnyFlag(flags, p.Review()):
		return Decision{Status: ScanPendingReview, Flags: flags, Reason: "review flag raised"}
	case a.Confidence >= p.AutoApproveConfidence:
		return Decision{Status: ScanApproved, Flags: flags, Reason: "confidence above auto-approve threshold"}
	default:
		return Decision{Status: ScanPendingReview, Flags: flags, Reason: "confidence below auto-approve threshold"}
	}
}

func appendFlag(flags []Flag, flag Flag) []Flag {
	if lo.Contains(flags, flag) {
		return flags
	}
	return append(flags, flag)
}
