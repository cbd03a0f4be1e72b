// Package storage uploads user supplied files (profile images, blog covers,
// message images, expert documents) to a remote object store and hands back
// a public URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/farmwise/internal/config"
)

// Folders group uploads by what they belong to.
const (
	FolderProfiles = "profiles"
	FolderBlogs    = "blogs"
	FolderMessages = "messages"
	FolderExperts  = "experts"
)

var (
	ErrDisabled = errors.New("uploads are disabled")
	ErrTooLarge = errors.New("file too large")
)

// File is one upload.  Body is read once.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader stores a file under folder and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, folder string, f File) (string, error)
}

// New picks the backend named by cfg.Backend.
func New(ctx context.Context, cfg config.UploadConfig) (Uploader, error) {
	switch cfg.Backend {
	case "cloudinary":
		return NewCloudinary(cfg)
	case "s3":
		return NewS3(ctx, cfg)
	case "memory":
		return NewMemory(), nil
	case "none", "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.Backend)
	}
}

// Disabled rejects every upload.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, File) (string, error) { return "", ErrDisabled }

// UploadMultipart opens fh, enforces maxBytes (0 means no limit) and sends
// it to u.
func UploadMultipart(ctx context.Context, u Uploader, folder string, fh *multipart.FileHeader, maxBytes int64) (string, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return "", ErrTooLarge
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	return u.Upload(ctx, folder, File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        src,
	})
}

// objectKey builds "<folder>/<uuid><ext>"; the client file name only
// contributes its extension.
func objectKey(folder, name string) string {
	ext := strings.ToLower(path.Ext(name))
	if len(ext) > 10 {
		ext = ""
	}
	return path.Join(folder, uuid.NewString()+ext)
}
