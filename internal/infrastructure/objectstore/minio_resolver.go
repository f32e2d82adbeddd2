package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"creatorguard/internal/errs"
	"creatorguard/internal/ports"
)

type Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Region     string
	Bucket     string
	UseSSL     bool
	PresignTTL time.Duration
}

// MinioResolver hands the vision client short-lived presigned GET URLs so
// private uploads never need to be public.
type MinioResolver struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

var _ ports.AssetURLResolver = (*MinioResolver)(nil)

func NewMinioResolver(cfg Config) (*MinioResolver, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MinioResolver{client: client, bucket: cfg.Bucket, ttl: ttl}, nil
}

func (r *MinioResolver) ResolveURL(ctx context.Context, storageKey string, fallbackURL string) (string, error) {
	key := strings.TrimLeft(strings.TrimSpace(storageKey), "/")
	if key == "" {
		return passthrough(fallbackURL)
	}

	presigned, err := r.client.PresignedGetObject(ctx, r.bucket, key, r.ttl, url.Values{})
	if err != nil {
		return "", errs.Wrapf(err, "presign %s", key)
	}
	return presigned.String(), nil
}

// PassthroughResolver uses the stored public URL as is.
type PassthroughResolver struct{}

var _ ports.AssetURLResolver = PassthroughResolver{}

func (PassthroughResolver) ResolveURL(_ context.Context, _ string, fallbackURL string) (string, error) {
	return passthrough(fallbackURL)
}

func passthrough(fallbackURL string) (string, error) {
	trimmed := strings.TrimSpace(fallbackURL)
	if trimmed == "" {
		return "", fmt.Errorf("no storage url to resolve")
	}
	return trimmed, nil
}
