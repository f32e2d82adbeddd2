package moderation

import (
	"fmt"
	"strings"
)

type TargetType string

const (
	TargetModelProfilePhoto TargetType = "model_profile_photo"
	TargetModelGalleryItem  TargetType = "model_gallery_item"
	TargetModelCover        TargetType = "model_cover"
	TargetPPVContent        TargetType = "ppv_content"
	TargetChatMedia         TargetType = "chat_media"
	TargetOnboardingImage   TargetType = "onboarding_image"
)

// defaultPriorities drives QueueUploadForModeration when the caller leaves priority unset.
var defaultPriorities = map[TargetType]int{
	TargetOnboardingImage:   2,
	TargetModelProfilePhoto: 3,
	TargetModelCover:        3,
	TargetPPVContent:        4,
	TargetModelGalleryItem:  5,
	TargetChatMedia:         6,
}

func AllTargetTypes() []TargetType {
	return []TargetType{
		TargetModelProfilePhoto,
		TargetModelGalleryItem,
		TargetModelCover,
		TargetPPVContent,
		TargetChatMedia,
		TargetOnboardingImage,
	}
}

func (t TargetType) Valid() bool {
	_, ok := defaultPriorities[t]
	return ok
}

func (t TargetType) DefaultPriority() int {
	if p, ok := defaultPriorities[t]; ok {
		return p
	}
	return DefaultPriority
}

func (t TargetType) JobType() JobType {
	if t == TargetOnboardingImage {
		return JobModelOnboarding
	}
	return JobContentUpload
}

func ParseTargetType(raw string) (TargetType, error) {
	target := TargetType(strings.ToLower(strings.TrimSpace(raw)))
	if !target.Valid() {
		return "", fmt.Errorf("%w: unknown target type %q", ErrValidation, raw)
	}
	return target, nil
}

type JobType string

const (
	JobModelOnboarding JobType = "model_onboarding"
	JobContentUpload   JobType = "content_upload"
	JobBulkRescan      JobType = "bulk_rescan"
)

const (
	HighestPriority = 1
	LowestPriority  = 10
	DefaultPriority = 5
)

func ValidatePriority(priority int) error {
	if priority < HighestPriority || priority > LowestPriority {
		return fmt.Errorf("%w: priority must be between %d and %d, got %d", ErrValidation, HighestPriority, LowestPriority, priority)
	}
	return nil
}

type ReviewAction string

const (
	ReviewApproved  ReviewAction = "approved"
	ReviewRejected  ReviewAction = "rejected"
	ReviewEscalated ReviewAction = "escalated"
)

func ParseReviewAction(raw string) (ReviewAction, error) {
	action := ReviewAction(strings.ToLower(strings.TrimSpace(raw)))
	switch action {
	case ReviewApproved, ReviewRejected, ReviewEscalated:
		return action, nil
	default:
		return "", fmt.Errorf("%w: unknown review action %q", ErrValidation, raw)
	}
}

// ResultingStatus maps a review action onto the scan state machine.
// Escalation keeps the scan reviewable.
func (a ReviewAction) ResultingStatus() ScanStatus {
	switch a {
	case ReviewApproved:
		return ScanApproved
	case ReviewRejected:
		return ScanRejected
	default:
		return ScanPendingReview
	}
}
