package moderation

import (
	"testing"
)

func TestDecideApprovesConfidentScanWithAnchors(t *testing.T) {
	decision := DefaultPolicy().Decide(Assessment{Confidence: 0.95, DetectedFaces: 1}, 3)
	if decision.Status != ScanApproved {
		t.Fatalf("Decide() status = %s, want approved (%s)", decision.Status, decision.Reason)
	}
	if len(decision.Flags) != 0 {
		t.Fatalf("Decide() flags = %v", decision.Flags)
	}
}

func TestDecideSingleAnchorStillApprovesWithInformationalFlag(t *testing.T) {
	decision := DefaultPolicy().Decide(Assessment{Confidence: 0.95, DetectedFaces: 1}, 1)
	if decision.Status != ScanApproved {
		t.Fatalf("Decide() status = %s, want approved", decision.Status)
	}
	if !HasAnyFlag(decision.Flags, []Flag{FlagInsufficientAnchors}) {
		t.Fatalf("Decide() flags = %v, want insufficient_anchors", decision.Flags)
	}
}

func TestDecideNoAnchorsAlwaysNeedsReview(t *testing.T) {
	for _, confidence := range []float64{0, 0.5, 0.85, 0.99, 1} {
		decision := DefaultPolicy().Decide(Assessment{Confidence: confidence, DetectedFaces: 1}, 0)
		if decision.Status != ScanPendingReview {
			t.Fatalf("confidence %v: status = %s, want pending_review", confidence, decision.Status)
		}
		if !HasAnyFlag(decision.Flags, []Flag{FlagNoAnchors}) {
			t.Fatalf("confidence %v: flags = %v, want no_anchors", confidence, decision.Flags)
		}
	}
}

func TestDecideHighRiskNeverAutoApproved(t *testing.T) {
	for _, flag := range HighRiskFlags {
		for _, confidence := range []float64{0, 0.9, 1} {
			decision := DefaultPolicy().Decide(Assessment{
				Flags:         []Flag{flag},
				Confidence:    confidence,
				DetectedFaces: 1,
			}, 5)
			if decision.Status != ScanPendingReview {
				t.Fatalf("flag %s confidence %v: status = %s, want pending_review", flag, confidence, decision.Status)
			}
		}
	}
}

func TestDecideNoFaceNeedsReview(t *testing.T) {
	decision := DefaultPolicy().Decide(Assessment{Confidence: 0.99, DetectedFaces: 0}, 3)
	if decision.Status != ScanPendingReview {
		t.Fatalf("status = %s, want pending_review", decision.Status)
	}
	if !HasAnyFlag(decision.Flags, []Flag{FlagNoFaceDetected}) {
		t.Fatalf("flags = %v, want no_face_detected", decision.Flags)
	}
}

func TestDecideLowConfidenceNeedsReview(t *testing.T) {
	decision := DefaultPolicy().Decide(Assessment{Confidence: 0.4, DetectedFaces: 1}, 3)
	if decision.Status != ScanPendingReview {
		t.Fatalf("status = %s, want pending_review", decision.Status)
	}
}

func TestDecideExtraReviewFlagFromPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.ExtraReview = []Flag{FlagStyleInconsistency}
	decision := policy.Decide(Assessment{Flags: []Flag{FlagStyleInconsistency}, Confidence: 0.99, DetectedFaces: 1}, 3)
	if decision.Status != ScanPendingReview {
		t.Fatalf("status = %s, want pending_review", decision.Status)
	}
}

func TestPolicyValidate(t *testing.T) {
	policy := DefaultPolicy()
	policy.AutoApproveConfidence = 1.5
	if err := policy.Validate(); err == nil {
		t.Fatalf("Validate() expected error for threshold > 1")
	}

	policy = DefaultPolicy()
	policy.ExtraHighRisk = []Flag{"spooky"}
	if err := policy.Validate(); err == nil {
		t.Fatalf("Validate() expected error for unknown flag")
	}
}

func TestNormalizeFlags(t *testing.T) {
	flags, unknown := NormalizeFlags([]string{"deepfake_detected", " DEEPFAKE_DETECTED ", "bogus", "", "no_anchors"})
	if len(flags) != 2 || flags[0] != FlagDeepfakeDetected || flags[1] != FlagNoAnchors {
		t.Fatalf("NormalizeFlags() flags = %v", flags)
	}
	if len(unknown) != 1 || unknown[0] != "bogus" {
		t.Fatalf("NormalizeFlags() unknown = %v", unknown)
	}
}
