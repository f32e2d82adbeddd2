package ports

import "context"

type VisionRequest struct {
	AssetURL   string
	AnchorURLs []string
}

// VisionResult is a completed analysis. Zero DetectedFaces is a valid result;
// an inability to analyze is returned as an error instead.
type VisionResult struct {
	Flags         []string
	Confidence    float64
	DetectedFaces int
}

type VisionScanner interface {
	Scan(ctx context.Context, req VisionRequest) (VisionResult, error)
}
