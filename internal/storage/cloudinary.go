package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/iliyamo/farmwise/internal/config"
)

// Cloudinary uploads through the Cloudinary upload API.  Resource type is
// "auto" so PDFs (expert documents) and images share one code path.
type Cloudinary struct {
	cld  *cloudinary.Cloudinary
	root string
}

func NewCloudinary(cfg config.UploadConfig) (*Cloudinary, error) {
	var (
		cld *cloudinary.Cloudinary
		err error
	)
	if cfg.CloudinaryURL != "" {
		cld, err = cloudinary.NewFromURL(cfg.CloudinaryURL)
	} else {
		cld, err = cloudinary.NewFromParams(cfg.CloudinaryName, cfg.CloudinaryKey, cfg.CloudinarySecret)
	}
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Cloudinary{cld: cld, root: cfg.CloudinaryFolder}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, folder string, f File) (string, error) {
	key := objectKey(folder, f.Name)
	resp, err := c.cld.Upload.Upload(ctx, f.Body, uploader.UploadParams{
		PublicID:     strings.TrimSuffix(path.Base(key), path.Ext(key)),
		Folder:       path.Join(c.root, folder),
		ResourceType: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", resp.Error.Message)
	}
	return resp.SecureURL, nil
}
