package blob

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	bolt "go.etcd.io/bbolt"
)

var (
	dataBucket = []byte("blobs")
	metaBucket = []byte("content_types")
)

// BoltStore keeps blobs in a local bbolt file and serves them under
// baseURL, which must point at Handler's mount.
type BoltStore struct {
	db      *bolt.DB
	baseURL string
}

func OpenBolt(path, baseURL string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blob db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(dataBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blob buckets: %w", err)
	}
	return &BoltStore{db: db, baseURL: strings.TrimRight(baseURL, "/") + "/"}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Put(_ context.Context, path string, data []byte, contentType string) (string, error) {
	key, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(dataBucket).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(metaBucket).Put([]byte(key), []byte(contentType))
	})
	if err != nil {
		return "", fmt.Errorf("put blob: %w", err)
	}
	return s.baseURL + key, nil
}

func (s *BoltStore) Owns(rawURL string) bool {
	return strings.HasPrefix(rawURL, s.baseURL)
}

// Fetch reads a blob by the URL Put returned.
func (s *BoltStore) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	if !s.Owns(rawURL) {
		return nil, ErrNotOwned
	}
	key, err := url.PathUnescape(strings.TrimPrefix(rawURL, s.baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse blob url: %w", err)
	}
	data, _, err := s.get(key)
	return data, err
}

func (s *BoltStore) get(key string) ([]byte, string, error) {
	var data []byte
	var contentType string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		contentType = string(tx.Bucket(metaBucket).Get([]byte(key)))
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// Handler serves GET {mount}/*.
func (s *BoltStore) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		key, err := cleanPath(chi.URLParam(req, "*"))
		if err != nil {
			http.NotFound(w, req)
			return
		}
		data, contentType, err := s.get(key)
		if err != nil {
			http.NotFound(w, req)
			return
		}
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		_, _ = w.Write(data)
	})
	return r
}
