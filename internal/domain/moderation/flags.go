package moderation

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

type Flag string

const (
	FlagIdentityDrift           Flag = "identity_drift"
	FlagCelebrityRisk           Flag = "celebrity_risk"
	FlagCelebrityHighConfidence Flag = "celebrity_high_confidence"
	FlagRealPersonSuspected     Flag = "real_person_suspected"
	FlagFaceswapSuspected       Flag = "faceswap_suspected"
	FlagDeepfakeDetected        Flag = "deepfake_detected"
	FlagMinorAppearanceRisk     Flag = "minor_appearance_risk"
	FlagMinorYouthCoded         Flag = "minor_youth_coded"
	FlagNoFaceDetected          Flag = "no_face_detected"
	FlagMultipleFaces           Flag = "multiple_faces"
	FlagLowQualityImage         Flag = "low_quality_image"
	FlagNoAnchors               Flag = "no_anchors"
	FlagInsufficientAnchors     Flag = "insufficient_anchors"
	FlagStyleInconsistency      Flag = "style_inconsistency"
	FlagAIGeneratedConfirmed    Flag = "ai_generated_confirmed"
	FlagRealPhotoSuspected      Flag = "real_photo_suspected"
)

var knownFlags = map[Flag]struct{}{
	FlagIdentityDrift:           {},
	FlagCelebrityRisk:           {},
	FlagCelebrityHighConfidence: {},
	FlagRealPersonSuspected:     {},
	FlagFaceswapSuspected:       {},
	FlagDeepfakeDetected:        {},
	FlagMinorAppearanceRisk:     {},
	FlagMinorYouthCoded:         {},
	FlagNoFaceDetected:          {},
	FlagMultipleFaces:           {},
	FlagLowQualityImage:         {},
	FlagNoAnchors:               {},
	FlagInsufficientAnchors:     {},
	FlagStyleInconsistency:      {},
	FlagAIGeneratedConfirmed:    {},
	FlagRealPhotoSuspected:      {},
}

// HighRiskFlags are never auto-approved or auto-rejected; a human decides.
var HighRiskFlags = []Flag{
	FlagCelebrityHighConfidence,
	FlagDeepfakeDetected,
	FlagMinorAppearanceRisk,
	FlagMinorYouthCoded,
	FlagFaceswapSuspected,
	FlagRealPersonSuspected,
}

// ReviewFlags route a scan to pending_review without being high risk.
var ReviewFlags = []Flag{
	FlagNoFaceDetected,
	FlagNoAnchors,
	FlagIdentityDrift,
	FlagCelebrityRisk,
	FlagMultipleFaces,
	FlagRealPhotoSuspected,
}

func AllFlags() []Flag {
	out := lo.Keys(knownFlags)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f Flag) Valid() bool {
	_, ok := knownFlags[f]
	return ok
}

func ParseFlag(raw string) (Flag, bool) {
	flag := Flag(strings.ToLower(strings.TrimSpace(raw)))
	return flag, flag.Valid()
}

// NormalizeFlags maps raw values onto the vocabulary, dropping duplicates.
// Unknown values are returned separately so callers can log them.
func NormalizeFlags(raw []string) ([]Flag, []string) {
	flags := make([]Flag, 0, len(raw))
	var unknown []string
	for _, value := range raw {
		flag, ok := ParseFlag(value)
		if !ok {
			if strings.TrimSpace(value) != "" {
				unknown = append(unknown, value)
			}
			continue
		}
		flags = append(flags, flag)
	}
	return lo.Uniq(flags), unknown
}

func FlagStrings(flags []Flag) []string {
	return lo.Map(flags, func(f Flag, _ int) string { return string(f) })
}

func HasAnyFlag(flags []Flag, candidates []Flag) bool {
	return len(lo.Intersect(flags, candidates)) > 0
}
