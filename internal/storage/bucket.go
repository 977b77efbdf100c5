// Package storage keeps book files in a local-disk bucket and issues signed,
// time-limited URLs for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"booksweeps/internal/pkg/signedurl"
)

// FilesRoute is where signed URLs point to.
const FilesRoute = "/api/reader-magnets/files"

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidPath    = errors.New("invalid object path")
	ErrWrongBucket    = errors.New("signature issued for another bucket")
)

type Bucket struct {
	name          string
	baseDir       string
	publicBaseURL string
	signer        *signedurl.Signer
}

// NewBucket stores objects under baseDir/name. Signed URLs are absolute when
// publicBaseURL is set.
func NewBucket(name, baseDir, publicBaseURL string, signer *signedurl.Signer) *Bucket {
	return &Bucket{
		name:          name,
		baseDir:       filepath.Join(baseDir, name),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		signer:        signer,
	}
}

func (b *Bucket) Name() string { return b.name }

// ObjectPathFor builds a unique object path for a new file of a book:
// books/<book id>/<random id>_<sanitized name><ext>.
func ObjectPathFor(bookID uuid.UUID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return path.Join("books", bookID.String(), fmt.Sprintf("%s_%s%s", uuid.New().String(), sanitizeName(fileName), ext))
}

// Put writes r to objectPath, replacing any existing object.
func (b *Bucket) Put(_ context.Context, objectPath string, r io.Reader) (int64, error) {
	abs, err := b.resolve(objectPath)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create bucket directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("failed to store file: %w", err)
	}
	return n, nil
}

// Open returns a reader over the object. The caller closes it.
func (b *Bucket) Open(objectPath string) (*os.File, os.FileInfo, error) {
	abs, err := b.resolve(objectPath)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, ErrObjectNotFound
	}
	return f, info, nil
}

// Head reads up to n bytes from the start of the object.
func (b *Bucket) Head(objectPath string, n int) ([]byte, error) {
	f, _, err := b.Open(objectPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, int64(n)))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *Bucket) Delete(objectPath string) error {
	abs, err := b.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// CreateSignedURL returns a download URL for the object valid for ttl.
func (b *Bucket) CreateSignedURL(claims signedurl.Claims, ttl time.Duration) (string, time.Time, error) {
	if _, err := b.resolve(claims.ObjectPath); err != nil {
		return "", time.Time{}, err
	}
	claims.Bucket = b.name

	sig, expiresAt, err := b.signer.Sign(claims, ttl)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign url: %w", err)
	}
	return b.publicBaseURL + FilesRoute + "?sig=" + url.QueryEscape(sig), expiresAt, nil
}

// Verify checks a signature produced by CreateSignedURL.
func (b *Bucket) Verify(sig string) (*signedurl.Claims, error) {
	claims, err := b.signer.Verify(sig)
	if err != nil {
		return nil, err
	}
	if claims.Bucket != b.name {
		return nil, ErrWrongBucket
	}
	if _, err := b.resolve(claims.ObjectPath); err != nil {
		return nil, err
	}
	return claims, nil
}

func (b *Bucket) resolve(objectPath string) (string, error) {
	if objectPath == "" || strings.HasPrefix(objectPath, "/") || strings.Contains(objectPath, "\\") {
		return "", ErrInvalidPath
	}
	clean := path.Clean(objectPath)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(clean)), nil
}

func sanitizeName(name string) string {
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	if name == "" {
		return "file"
	}
	return name
}
