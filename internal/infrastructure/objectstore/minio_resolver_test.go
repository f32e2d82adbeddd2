package objectstore

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinioResolverPresignsStorageKey(t *testing.T) {
	resolver, err := NewMinioResolver(Config{
		Endpoint:   "http://127.0.0.1:9000",
		AccessKey:  "minio",
		SecretKey:  "minio-secret",
		Region:     "us-east-1",
		Bucket:     "uploads",
		PresignTTL: time.Minute,
	})
	require.NoError(t, err)

	raw, err := resolver.ResolveURL(context.Background(), "/models/m1/photo.jpg", "https://cdn.example.test/photo.jpg")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/uploads/models/m1/photo.jpg"), u.Path)
	assert.Equal(t, "60", u.Query().Get("X-Amz-Expires"))
}

func TestMinioResolverFallsBackWithoutKey(t *testing.T) {
	resolver, err := NewMinioResolver(Config{Endpoint: "127.0.0.1:9000", Bucket: "uploads", Region: "us-east-1"})
	require.NoError(t, err)

	raw, err := resolver.ResolveURL(context.Background(), " ", "https://cdn.example.test/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test/photo.jpg", raw)
}

func TestPassthroughResolver(t *testing.T) {
	raw, err := PassthroughResolver{}.ResolveURL(context.Background(), "k", " https://cdn.example.test/x.jpg ")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.test/x.jpg", raw)

	_, err = PassthroughResolver{}.ResolveURL(context.Background(), "k", "")
	require.Error(t, err)
}

func TestNewMinioResolverRequiresBucket(t *testing.T) {
	_, err := NewMinioResolver(Config{Endpoint: "127.0.0.1:9000"})
	require.Error(t, err)
}
