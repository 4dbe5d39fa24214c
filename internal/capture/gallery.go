package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// GalleryPicker selects a named image from a gallery directory.
type GalleryPicker struct {
	Dir  string
	Name string
}

func (g GalleryPicker) Pick(ctx context.Context) (CapturedImage, error) {
	if err := ctx.Err(); err != nil {
		return CapturedImage{}, err
	}
	if g.Name == "" {
		return CapturedImage{}, errors.New("no image selected")
	}
	if !filepath.IsLocal(g.Name) {
		return CapturedImage{}, fmt.Errorf("image %q is outside the gallery", g.Name)
	}

	path := filepath.Join(g.Dir, g.Name)
	info, err := os.Stat(path)
	if err != nil {
		return CapturedImage{}, fmt.Errorf("open gallery image: %w", err)
	}
	if info.IsDir() {
		return CapturedImage{}, fmt.Errorf("gallery image %q is a directory", g.Name)
	}

	mtype, err := sniffImage(path)
	if err != nil {
		return CapturedImage{}, err
	}
	return CapturedImage{Path: path, MimeType: mtype}, nil
}
