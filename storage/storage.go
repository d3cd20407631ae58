// Package storage is the object-storage gateway for downloadable resources
// and uploaded images. Backends exist for S3-compatible services and the
// local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Backend is the contract to the object store.
type Backend interface {
	// Upload stores the reader's bytes under key.
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error

	// Download streams the object's bytes. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// DownloadURL returns a browser-followable URL for the object,
	// presigned where the backend requires it. filename sets the
	// suggested download name.
	DownloadURL(ctx context.Context, key, filename string) (string, error)
}

// Bucket names a storage area with its own MIME allow-list and size cap.
type Bucket struct {
	Name         string
	AllowedTypes []string
	MaxSize      int64
}

var (
	// Resources holds the downloadable worksheets and documents.
	Resources = Bucket{
		Name: "resources",
		AllowedTypes: []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"image/jpeg",
			"image/png",
			"image/gif",
		},
		MaxSize: 10 << 20,
	}

	// BlogImages holds images embedded in blog posts.
	BlogImages = Bucket{
		Name:         "blog-images",
		AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		MaxSize:      5 << 20,
	}

	// ProfilePictures holds avatar images.
	ProfilePictures = Bucket{
		Name:         "profile-pictures",
		AllowedTypes: []string{"image/jpeg", "image/png", "image/gif"},
		MaxSize:      2 << 20,
	}
)

// Validate checks an upload against the bucket's allow-list and size cap.
func (b Bucket) Validate(contentType string, size int64) error {
	if size > b.MaxSize {
		return fmt.Errorf("file too large for bucket %s: %d bytes (max %d)", b.Name, size, b.MaxSize)
	}
	for _, t := range b.AllowedTypes {
		if t == contentType {
			return nil
		}
	}
	return fmt.Errorf("file type %q is not allowed in bucket %s", contentType, b.Name)
}

// Key builds a unique object key inside the bucket from an original
// filename: bucket/name_timestamp_random.ext.
func (b Bucket) Key(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	name := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	var clean strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			clean.WriteRune(r)
		default:
			clean.WriteByte('_')
		}
	}
	random := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s/%s_%d_%s%s", b.Name, clean.String(), time.Now().Unix(), random, ext)
}
