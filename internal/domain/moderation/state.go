package moderation

import (
	"fmt"
	"strings"
)

type ScanStatus string

const (
	ScanPendingScan   ScanStatus = "pending_scan"
	ScanScanning      ScanStatus = "scanning"
	ScanApproved      ScanStatus = "approved"
	ScanPendingReview ScanStatus = "pending_review"
	ScanRejected      ScanStatus = "rejected"
	ScanFailed        ScanStatus = "failed"
)

var scanTransitions = map[ScanStatus][]ScanStatus{
	ScanPendingScan:   {ScanScanning, ScanFailed},
	ScanScanning:      {ScanApproved, ScanPendingReview, ScanRejected, ScanFailed, ScanPendingScan},
	ScanPendingReview: {ScanApproved, ScanRejected, ScanPendingReview},
	ScanFailed:        {ScanPendingScan},
	ScanApproved:      {ScanPendingScan},
	ScanRejected:      {ScanPendingScan},
}

func AllScanStatuses() []ScanStatus {
	return []ScanStatus{ScanPendingScan, ScanScanning, ScanApproved, ScanPendingReview, ScanRejected, ScanFailed}
}

func (s ScanStatus) Valid() bool {
	_, ok := scanTransitions[s]
	return ok
}

// Decided reports whether a scan already carries a scan outcome or human decision.
func (s ScanStatus) Decided() bool {
	return s == ScanApproved || s == ScanPendingReview || s == ScanRejected
}

func ParseScanStatus(raw string) (ScanStatus, error) {
	status := ScanStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown scan status %q", ErrValidation, raw)
	}
	return status, nil
}

func CanTransitionScan(from, to ScanStatus) bool {
	for _, next := range scanTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidateScanTransition(from, to ScanStatus) error {
	if !CanTransitionScan(from, to) {
		return fmt.Errorf("%w: scan cannot move from %s to %s", ErrInvalidState, from, to)
	}
	return nil
}

// ScanSourcesFor lists every status from which a scan may move to target.
// Stores use it to build conditional updates.
func ScanSourcesFor(target ScanStatus) []ScanStatus {
	out := make([]ScanStatus, 0, 4)
	for _, from := range AllScanStatuses() {
		if CanTransitionScan(from, target) {
			out = append(out, from)
		}
	}
	return out
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobQueued:     {JobProcessing, JobCancelled},
	JobProcessing: {JobCompleted, JobFailed, JobQueued},
	JobFailed:     {JobQueued},
	JobCompleted:  nil,
	JobCancelled:  nil,
}

func AllJobStatuses() []JobStatus {
	return []JobStatus{JobQueued, JobProcessing, JobCompleted, JobFailed, JobCancelled}
}

func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

func (s JobStatus) Terminal() bool {
	return s.Valid() && len(jobTransitions[s]) == 0
}

func ParseJobStatus(raw string) (JobStatus, error) {
	status := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown job status %q", ErrValidation, raw)
	}
	return status, nil
}

func CanTransitionJob(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidateJobTransition(from, to JobStatus) error {
	if !CanTransitionJob(from, to) {
		return fmt.Errorf("%w: job cannot move from %s to %s", ErrInvalidState, from, to)
	}
	return nil
}
