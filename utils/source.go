package utils

import (
	"context"
	"image"
	"path/filepath"

	"github.com/setanarut/backdrop"
)

// FileSource loads images from disk. Identities are paths relative to Root,
// or absolute paths.
type FileSource struct {
	Root string
}

func (s FileSource) Load(ctx context.Context, id backdrop.ImageID) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := string(id)
	if !filepath.IsAbs(path) && s.Root != "" {
		path = filepath.Join(s.Root, path)
	}
	return ReadImage(path)
}
