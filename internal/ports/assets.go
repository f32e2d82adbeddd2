package ports

import "context"

// AssetURLResolver turns a stored object into a URL an external analyzer can fetch.
type AssetURLResolver interface {
	ResolveURL(ctx context.Context, storageKey string, fallbackURL string) (string, error)
}
