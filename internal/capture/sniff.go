package capture

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffImage detects the MIME type of path from its content and rejects
// anything that is not an image.
func sniffImage(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect type of %s: %w", path, err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mtype.String())
	}
	return mtype.String(), nil
}
