package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/ports"
)

var systemPrompt = `You review images uploaded to a creator platform for an AI persona.
The first image is the upload under review. Any further images are reference
anchors of the same persona. Answer with a single JSON object and nothing else:
{"flags": [...], "confidence": <0..1 that the upload matches the anchors and is safe>, "detected_faces": <int>}.
Use only these flags: ` + flagVocabulary

var flagVocabulary = strings.Join(domain.FlagStrings(domain.AllFlags()), ", ")

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
	RatePerSecond  float64
	Burst          int
	MaxAnchors     int
	HTTPClient     *http.Client
}

// OpenAIScanner asks an OpenAI-compatible chat model to compare an upload with
// the model's anchors.
type OpenAIScanner struct {
	client     openai.Client
	model      string
	timeout    time.Duration
	limiter    *rate.Limiter
	maxAnchors int
}

var _ ports.VisionScanner = (*OpenAIScanner)(nil)

func NewOpenAIScanner(cfg Config) (*OpenAIScanner, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("vision model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	maxAnchors := cfg.MaxAnchors
	if maxAnchors <= 0 {
		maxAnchors = 5
	}

	return &OpenAIScanner{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		timeout:    cfg.RequestTimeout,
		limiter:    rate.NewLimiter(limit, burst),
		maxAnchors: maxAnchors,
	}, nil
}

func (s *OpenAIScanner) Scan(ctx context.Context, req ports.VisionRequest) (ports.VisionResult, error) {
	if ctx == nil {
		return ports.VisionResult{}, errors.New("context is required")
	}
	if strings.TrimSpace(req.AssetURL) == "" {
		return ports.VisionResult{}, fmt.Errorf("%w: asset url is required", domain.ErrValidation)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return ports.VisionResult{}, classify(ctx, err, "wait for vision rate limit")
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(fmt.Sprintf("Upload under review followed by %d anchor image(s).", min(len(req.AnchorURLs), s.maxAnchors))),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: req.AssetURL}),
	}
	for i, anchor := range req.AnchorURLs {
		if i >= s.maxAnchors {
			break
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: anchor}))
	}

	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(parts),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return ports.VisionResult{}, classify(ctx, err, "vision completion")
	}
	if len(completion.Choices) == 0 {
		return ports.VisionResult{}, fmt.Errorf("%w: vision completion returned no choices", domain.ErrExternalService)
	}

	return ParseAnswer(completion.Choices[0].Message.Content)
}

type answer struct {
	Flags         []string `json:"flags"`
	Confidence    *float64 `json:"confidence"`
	DetectedFaces *int     `json:"detected_faces"`
}

// ParseAnswer decodes the model reply. Markdown code fences around the JSON
// object are tolerated.
func ParseAnswer(content string) (ports.VisionResult, error) {
	body := strings.TrimSpace(content)
	if start := strings.Index(body, "{"); start >= 0 {
		if end := strings.LastIndex(body, "}"); end > start {
			body = body[start : end+1]
		}
	}

	var decoded answer
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return ports.VisionResult{}, fmt.Errorf("%w: unparseable vision answer: %v", domain.ErrExternalService, err)
	}
	if decoded.Confidence == nil || decoded.DetectedFaces == nil {
		return ports.VisionResult{}, fmt.Errorf("%w: vision answer misses confidence or detected_faces", domain.ErrExternalService)
	}
	if *decoded.Confidence < 0 || *decoded.Confidence > 1 || *decoded.DetectedFaces < 0 {
		return ports.VisionResult{}, fmt.Errorf("%w: vision answer out of range", domain.ErrExternalService)
	}

	flags := decoded.Flags
	if flags == nil {
		flags = []string{}
	}
	return ports.VisionResult{
		Flags:         flags,
		Confidence:    *decoded.Confidence,
		DetectedFaces: *decoded.DetectedFaces,
	}, nil
}

func classify(ctx context.Context, err error, action string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, action, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", action, err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: status %d", domain.ErrExternalService, action, apiErr.StatusCode)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrExternalService, action, err)
}
