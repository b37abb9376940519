// Package media stores reference images and audio notes attached to outfit
// items. Items carry the returned keys unchanged; URLs are minted on read.
package media

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxFileSize is 10MB in bytes.
const MaxFileSize = 10 * 1024 * 1024

// Store is satisfied by *S3Store and *MemoryStore.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Kind is the media category, also used as a key prefix.
type Kind string

const (
	KindImage Kind = "images"
	KindAudio Kind = "audio"
)

var contentTypes = map[string]struct {
	kind        Kind
	contentType string
}{
	".png":  {KindImage, "image/png"},
	".jpg":  {KindImage, "image/jpeg"},
	".jpeg": {KindImage, "image/jpeg"},
	".webp": {KindImage, "image/webp"},
	".m4a":  {KindAudio, "audio/mp4"},
	".mp3":  {KindAudio, "audio/mpeg"},
	".aac":  {KindAudio, "audio/aac"},
	".wav":  {KindAudio, "audio/wav"},
}

// UploadError is a user-correctable upload rejection.
type UploadError struct {
	Code    string
	Message string
}

func (e *UploadError) Error() string {
	return e.Message
}

// Validate checks size and extension and returns the media kind and content
// type for the file.
func Validate(filename string, size int64) (Kind, string, error) {
	if size > MaxFileSize {
		return "", "", &UploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
		}
	}
	if size == 0 {
		return "", "", &UploadError{Code: "EMPTY_FILE", Message: "File is empty"}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	ct, ok := contentTypes[ext]
	if !ok {
		return "", "", &UploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: "Only png, jpeg and webp images or m4a, mp3, aac and wav audio are allowed",
		}
	}
	return ct.kind, ct.contentType, nil
}

// Key builds the object key for a new upload. Keys are scoped by company so
// one company can never address another's media.
func Key(companyID uuid.UUID, kind Kind, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("companies/%s/%s/%s%s", companyID, kind, uuid.New(), ext)
}

// OwnedBy reports whether key was issued for companyID.
func OwnedBy(key string, companyID uuid.UUID) bool {
	return strings.HasPrefix(key, fmt.Sprintf("companies/%s/", companyID)) && !strings.Contains(key, "..")
}

// Upload is a stored file.
type Upload struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Kind        Kind   `json:"kind"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Save validates fh and writes it to store under the company's prefix.
func Save(ctx context.Context, store Store, companyID uuid.UUID, fh *multipart.FileHeader) (Upload, error) {
	kind, contentType, err := Validate(fh.Filename, fh.Size)
	if err != nil {
		return Upload{}, err
	}

	f, err := fh.Open()
	if err != nil {
		return Upload{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	key := Key(companyID, kind, fh.Filename)
	if err := store.Put(ctx, key, f, fh.Size, contentType); err != nil {
		return Upload{}, err
	}

	url, err := store.URL(ctx, key)
	if err != nil {
		return Upload{}, err
	}

	return Upload{Key: key, URL: url, Kind: kind, ContentType: contentType, Size: fh.Size}, nil
}
