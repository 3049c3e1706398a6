package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

const firebaseHost = "https://firebasestorage.googleapis.com/v0/b/"

// maxObjectBytes caps downloads through Fetch.
const maxObjectBytes = 25 << 20

// FirebaseStore writes to a Firebase Storage bucket and returns tokenized
// download URLs, the same form the Firebase client SDKs produce.
type FirebaseStore struct {
	bucket *storage.BucketHandle
	name   string
}

// NewFirebase wraps a bucket obtained from the Firebase app's storage
// client.
func NewFirebase(bucket *storage.BucketHandle, name string) *FirebaseStore {
	return &FirebaseStore{bucket: bucket, name: name}
}

func (s *FirebaseStore) prefix() string {
	return firebaseHost + s.name + "/o/"
}

func (s *FirebaseStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	key, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close object %s: %w", key, err)
	}
	return s.prefix() + url.PathEscape(key) + "?alt=media&token=" + token, nil
}

func (s *FirebaseStore) Owns(rawURL string) bool {
	return strings.HasPrefix(rawURL, s.prefix())
}

// Fetch reads the object behind a download URL through the bucket API, so
// a revoked token does not block server-side reads.
func (s *FirebaseStore) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	key, err := s.objectKey(rawURL)
	if err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, maxObjectBytes))
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (s *FirebaseStore) objectKey(rawURL string) (string, error) {
	if !s.Owns(rawURL) {
		return "", ErrNotOwned
	}
	rest := strings.TrimPrefix(rawURL, s.prefix())
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	key, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("parse object url: %w", err)
	}
	return key, nil
}
