// Package blob stores artifact bytes and serves them back by public URL.
// The core needs only put(bytes, path) -> URL and get(URL) -> bytes.
package blob

import (
	"errors"
	"strings"
)

var (
	ErrNotFound  = errors.New("blob not found")
	ErrNotOwned  = errors.New("url not issued by this store")
	ErrEmptyPath = errors.New("blob path is empty")
)

// cleanPath rejects empty and parent-relative paths.
func cleanPath(p string) (string, error) {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "", ErrEmptyPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", errors.New("invalid blob path " + p)
		}
	}
	return p, nil
}
