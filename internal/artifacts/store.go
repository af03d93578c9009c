// Package artifacts produces and stores the personalized files delivered to
// customers. A Store persists generated bytes and resolves a stored reference
// into a URL the customer's browser can fetch; the Gate hands out references
// and the HTTP layer turns them into redirects through Store.URL.
package artifacts

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidRef is returned for references that are empty or would resolve
// outside the store.
var ErrInvalidRef = errors.New("invalid artifact reference")

// Store persists artifacts and resolves references to retrievable URLs.
type Store interface {
	// Put stores data under name and returns the opaque reference to it.
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
	// URL returns a locator for ref that a customer can download from.
	URL(ctx context.Context, ref string) (string, error)
}

// LocalStore writes artifacts into a directory that the HTTP server exposes
// as static files under PublicPath (for example "/digital-products").
type LocalStore struct {
	Dir        string
	BaseURL    string // absolute origin prefix, e.g. "https://shop.example"; may be empty
	PublicPath string
}

// NewLocalStore creates dir if needed and returns a store serving it at publicPath.
func NewLocalStore(dir, baseURL, publicPath string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("artifact dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if publicPath == "" {
		publicPath = "/digital-products"
	}
	return &LocalStore{
		Dir:        dir,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		PublicPath: "/" + strings.Trim(publicPath, "/"),
	}, nil
}

// Put writes the file atomically (temp file + rename) and returns its name.
func (s *LocalStore) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	ref, err := cleanRef(name)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(s.Dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, filepath.Join(s.Dir, ref)); err != nil {
		_ = os.Remove(tmpName)
		return "", err
	}
	return ref, nil
}

// URL joins the public path and the escaped reference.
func (s *LocalStore) URL(_ context.Context, ref string) (string, error) {
	ref, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(s.Dir, ref)); err != nil {
		return "", err
	}
	return s.BaseURL + path.Join(s.PublicPath, url.PathEscape(ref)), nil
}

// cleanRef accepts flat file names only.
func cleanRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "." || ref == ".." || strings.ContainsAny(ref, `/\`) || strings.HasPrefix(ref, ".") {
		return "", ErrInvalidRef
	}
	return ref, nil
}
