// Package uploads keeps challenge proof photos on an afero filesystem and
// hands back the URL they are served under.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// DefaultMaxSize is the largest accepted image, in bytes.
const DefaultMaxSize = 5 << 20

var (
	ErrEmpty    = errors.New("image is empty")
	ErrTooLarge = errors.New("image is too large")
	ErrNotImage = errors.New("file is not a supported image")
	ErrBadPath  = errors.New("invalid proof path")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store writes proof images below the root of fs. Stored files are named
// <gameID>/<uuid><ext> and served under urlPrefix.
type Store struct {
	fs        afero.Fs
	urlPrefix string
	maxSize   int
}

// New returns a Store. urlPrefix is the public path proofs are served from,
// such as "/proofs".
func New(fs afero.Fs, urlPrefix string, maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{
		fs:        fs,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		maxSize:   maxSize,
	}
}

// NewDisk stores proofs in dir on the local disk, creating it if needed.
func NewDisk(dir, urlPrefix string, maxSize int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create proof dir: %w", err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir), urlPrefix, maxSize), nil
}

// Upload validates and stores an image, returning its public URL.
func (s *Store) Upload(ctx context.Context, gameID, playerID string, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", ErrEmpty
	}
	if len(image) > s.maxSize {
		return "", ErrTooLarge
	}
	ext, ok := extensions[http.DetectContentType(image)]
	if !ok {
		return "", ErrNotImage
	}
	if !validSegment(gameID) || playerID == "" {
		return "", ErrBadPath
	}

	if err := s.fs.MkdirAll(gameID, 0o755); err != nil {
		return "", fmt.Errorf("create game dir: %w", err)
	}
	name := path.Join(gameID, uuid.NewString()+ext)
	if err := afero.WriteFile(s.fs, name, image, 0o644); err != nil {
		return "", fmt.Errorf("write proof: %w", err)
	}
	return s.urlPrefix + "/" + name, nil
}

// Remove deletes the file behind a URL returned by Upload. Removing a file
// that is already gone is not an error.
func (s *Store) Remove(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := s.name(strings.TrimPrefix(url, s.urlPrefix))
	if err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove proof: %w", err)
	}
	return nil
}

// RemoveGame deletes every proof stored for a game.
func (s *Store) RemoveGame(gameID string) error {
	if !validSegment(gameID) {
		return ErrBadPath
	}
	if err := s.fs.RemoveAll(gameID); err != nil {
		return fmt.Errorf("remove proofs for %s: %w", gameID, err)
	}
	return nil
}

// ReadFile returns a stored proof and its content type. file is the path
// below the URL prefix, as captured by the router.
func (s *Store) ReadFile(file string) ([]byte, string, error) {
	name, err := s.name(file)
	if err != nil {
		return nil, "", err
	}
	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		return nil, "", err
	}
	return data, http.DetectContentType(data), nil
}

func (s *Store) name(file string) (string, error) {
	clean := path.Clean("/" + file)
	parts := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	if len(parts) != 2 || !validSegment(parts[0]) || !validSegment(parts[1]) {
		return "", ErrBadPath
	}
	return path.Join(parts[0], parts[1]), nil
}

func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
