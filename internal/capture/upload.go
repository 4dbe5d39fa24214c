package capture

import (
	"context"
	"fmt"
	"io"
	"os"
)

// UploadPicker stages an uploaded image to disk so it can be treated like a
// gallery selection.
type UploadPicker struct {
	Source io.Reader
	// Dir is where the staged file is written; empty means os.TempDir.
	Dir string
}

func (u UploadPicker) Pick(ctx context.Context) (CapturedImage, error) {
	if err := ctx.Err(); err != nil {
		return CapturedImage{}, err
	}

	tmp, err := os.CreateTemp(u.Dir, "upload-*")
	if err != nil {
		return CapturedImage{}, fmt.Errorf("stage upload: %w", err)
	}
	img := CapturedImage{Path: tmp.Name(), Ephemeral: true}

	_, copyErr := io.Copy(tmp, u.Source)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = img.Discard()
		if copyErr != nil {
			return CapturedImage{}, fmt.Errorf("stage upload: %w", copyErr)
		}
		return CapturedImage{}, fmt.Errorf("stage upload: %w", closeErr)
	}

	mtype, err := sniffImage(img.Path)
	if err != nil {
		_ = img.Discard()
		return CapturedImage{}, err
	}
	img.MimeType = mtype
	return img, nil
}
