package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

// AllowedImageExts are the upload extensions accepted for label photos.
var AllowedImageExts = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// ImageExt returns the lower-cased extension of filename if it is allowed.
func ImageExt(filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if _, ok := AllowedImageExts[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, filename)
	}
	return ext, nil
}

// StoredImage locates a saved upload. Path is what clients render; Ref is
// what Delete takes.
type StoredImage struct {
	Path string
	Ref  string
}

// ImageStore keeps uploaded label photos.
type ImageStore interface {
	Save(ctx context.Context, data []byte, ext string) (StoredImage, error)
	Delete(ctx context.Context, ref string) error
	Ping(ctx context.Context) error
	Backend() string
}

func newImageKey(ext string) string {
	return path.Join("uploads", uuid.New().String()+"."+ext)
}

// LocalImages writes uploads under the static root so the router can serve
// them from /static/uploads/.
type LocalImages struct {
	root string
}

func NewLocalImages(root string) (*LocalImages, error) {
	if err := os.MkdirAll(filepath.Join(root, "uploads"), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalImages{root: root}, nil
}

func (l *LocalImages) Backend() string { return "local" }

func (l *LocalImages) Save(_ context.Context, data []byte, ext string) (StoredImage, error) {
	key := newImageKey(ext)
	if err := os.WriteFile(filepath.Join(l.root, filepath.FromSlash(key)), data, 0o644); err != nil {
		return StoredImage{}, fmt.Errorf("write image %s: %w", key, err)
	}
	return StoredImage{Path: key, Ref: key}, nil
}

// Delete removes a stored upload. Missing files are not an error.
func (l *LocalImages) Delete(_ context.Context, ref string) error {
	clean := path.Clean("/" + ref)
	if !strings.HasPrefix(clean, "/uploads/") {
		return fmt.Errorf("refusing to delete %q outside uploads", ref)
	}
	err := os.Remove(filepath.Join(l.root, filepath.FromSlash(clean)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete image %s: %w", ref, err)
	}
	return nil
}

func (l *LocalImages) Ping(context.Context) error {
	_, err := os.Stat(filepath.Join(l.root, "uploads"))
	return err
}
