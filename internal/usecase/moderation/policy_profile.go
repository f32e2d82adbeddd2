package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
)

type policyThresholds struct {
	AutoApproveConfidence *float64 `toml:"auto_approve_confidence"`
	MinRecommendedAnchors *int     `toml:"min_recommended_anchors"`
}

type policyFlags struct {
	ExtraHighRisk []string `toml:"extra_high_risk"`
	ExtraReview   []string `toml:"extra_review"`
}

type policyProfile struct {
	Version    int              `toml:"version"`
	Thresholds policyThresholds `toml:"thresholds"`
	Flags      policyFlags      `toml:"flags"`
}

// LoadPolicyProfile reads a TOML policy file. Unset thresholds keep their defaults.
func LoadPolicyProfile(path string) (domain.Policy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.Policy{}, errors.New("policy file is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Policy{}, errs.Wrap(err, "read policy file")
	}
	return ParsePolicyProfile(raw)
}

func ParsePolicyProfile(raw []byte) (domain.Policy, error) {
	var profile policyProfile
	if err := toml.Unmarshal(raw, &profile); err != nil {
		return domain.Policy{}, fmt.Errorf("%w: parse policy file: %v", domain.ErrValidation, err)
	}
	if profile.Version != 1 {
		return domain.Policy{}, fmt.Errorf("%w: unsupported policy version %d, expected version = 1", domain.ErrValidation, profile.Version)
	}

	policy := domain.DefaultPolicy()
	if profile.Thresholds.AutoApproveConfidence != nil {
		policy.AutoApproveConfidence = *profile.Thresholds.AutoApproveConfidence
	}
	if profile.Thresholds.MinRecommendedAnchors != nil {
		policy.MinRecommendedAnchors = *profile.Thresholds.MinRecommendedAnchors
	}
	for _, raw := range profile.Flags.ExtraHighRisk {
		policy.ExtraHighRisk = append(policy.ExtraHighRisk, domain.Flag(strings.TrimSpace(raw)))
	}
	for _, raw := range profile.Flags.ExtraReview {
		policy.ExtraReview = append(policy.ExtraReview, domain.Flag(strings.TrimSpace(raw)))
	}

	if err := policy.Validate(); err != nil {
		return domain.Policy{}, err
	}
	return policy, nil
}

// PolicyHolder hands out the current policy; a watcher may swap it at runtime.
type PolicyHolder struct {
	current atomic.Pointer[domain.Policy]
}

func NewPolicyHolder(policy domain.Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.Store(policy)
	return holder
}

func (h *PolicyHolder) Load() domain.Policy {
	if p := h.current.Load(); p != nil {
		return *p
	}
	return domain.DefaultPolicy()
}

func (h *PolicyHolder) Store(policy domain.Policy) {
	h.current.Store(&policy)
}

// WatchPolicyFile reloads path into holder whenever it changes, until ctx is
// done. The parent directory is watched so editors that replace the file are
// picked up. Invalid edits are logged and the previous policy stays active.
func WatchPolicyFile(ctx context.Context, path string, holder *PolicyHolder) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if holder == nil {
		return errors.New("policy holder is required")
	}
	ctx = logging.WithAttrs(ctx, slog.String("component", "usecase.moderation.policy"), slog.String("policy_file", path))

	abs, err := filepath.Abs(path)
	if err != nil {
		return errs.Wrap(err, "resolve policy file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(err, "create policy watcher")
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return errs.Wrap(err, "watch policy directory")
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				policy, err := LoadPolicyProfile(abs)
				if err != nil {
					logging.Warn(ctx, "policy reload rejected, keeping previous policy", slog.Any("err", errs.Loggable(err)))
					continue
				}
				holder.Store(policy)
				logging.Info(ctx, "policy reloaded",
					slog.Float64("auto_approve_confidence", policy.AutoApproveConfidence),
					slog.Int("min_recommended_anchors", policy.MinRecommendedAnchors),
				)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn(ctx, "policy watcher error", slog.Any("err", errs.Loggable(err)))
			}
		}
	}()
	return nil
}
