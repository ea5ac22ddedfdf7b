package ports

import "context"

// MediaStorage uploads a local file to durable object storage and returns a
// public URL. Implementations delete the local temp file once consumed, and
// attempt cleanup even when the upload fails.
type MediaStorage interface {
	Upload(ctx context.Context, localPath string) (string, error)
}
