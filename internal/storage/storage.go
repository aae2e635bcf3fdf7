// Package storage persists uploaded images (avatars, cover images, post
// images) in an object store and returns their public URLs. Drivers: S3 (or
// any S3-compatible endpoint) and a local directory for development.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/tbourn/go-social-backend/internal/retry"
)

// ErrUnsupportedImage is returned when uploaded bytes are not an accepted image.
var ErrUnsupportedImage = errors.New("unsupported image type")

// ErrInvalidKey is returned for object keys that are empty or escape the
// store root.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectStore stores objects under keys and serves them from public URLs.
// Put replaces any existing object with the same key.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (url string, err error)
	Delete(ctx context.Context, key string) error
}

// imageExt maps accepted image MIME types to canonical extensions.
var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImage sniffs data and returns its MIME type and canonical extension.
// The declared content type of the upload is not trusted.
func DetectImage(data []byte) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", ErrUnsupportedImage
	}
	m := mimetype.Detect(data)
	ct := strings.ToLower(m.String())
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	e, ok := imageExt[ct]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedImage, ct)
	}
	return ct, e, nil
}

// cleanKey normalizes an object key and rejects traversal.
func cleanKey(key string) (string, error) {
	k := strings.TrimLeft(path.Clean("/"+strings.TrimSpace(key)), "/")
	if k == "" || k == "." || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return k, nil
}

// publicURL joins a base URL and a key.
func publicURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}

// Retrying wraps a store so Put and Delete retry transient failures with
// the given policy. Rate-limit errors are returned immediately.
type Retrying struct {
	Store  ObjectStore
	Policy retry.Policy
}

// Put implements ObjectStore.
func (r Retrying) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	return retry.Value(ctx, r.Policy, "storage.put", func(ctx context.Context) (string, error) {
		url, err := r.Store.Put(ctx, key, contentType, data)
		if errors.Is(err, ErrInvalidKey) {
			return "", retry.Permanent(err)
		}
		return url, err
	})
}

// Delete implements ObjectStore.
func (r Retrying) Delete(ctx context.Context, key string) error {
	return retry.Do(ctx, r.Policy, "storage.delete", func(ctx context.Context) error {
		err := r.Store.Delete(ctx, key)
		if errors.Is(err, ErrInvalidKey) {
			return retry.Permanent(err)
		}
		return err
	})
}
