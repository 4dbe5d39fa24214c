//go:build gocv

package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
)

// Webcam captures stills from a local video device through OpenCV.
type Webcam struct {
	DeviceID int
	// Dir receives captured PNG files; empty means os.TempDir.
	Dir string

	mu sync.Mutex
}

// NewWebcam returns the OpenCV-backed camera for deviceID.
func NewWebcam(deviceID int, dir string) Camera {
	return &Webcam{DeviceID: deviceID, Dir: dir}
}

func (w *Webcam) Probe(ctx context.Context) (Availability, *Device) {
	w.mu.Lock()
	defer w.mu.Unlock()

	webcam, err := gocv.OpenVideoCapture(w.DeviceID)
	if err != nil {
		return Unavailable, nil
	}
	defer webcam.Close()
	if !webcam.IsOpened() {
		return Unavailable, nil
	}
	// Host webcams have no facing metadata; a single device is treated as the
	// back camera.
	return Available, &Device{ID: w.DeviceID, Name: fmt.Sprintf("video%d", w.DeviceID), Position: PositionBack}
}

func (w *Webcam) TakePhoto(ctx context.Context) (CapturedImage, error) {
	if err := ctx.Err(); err != nil {
		return CapturedImage{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	webcam, err := gocv.OpenVideoCapture(w.DeviceID)
	if err != nil {
		return CapturedImage{}, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	defer webcam.Close()

	frame := gocv.NewMat()
	defer frame.Close()
	if ok := webcam.Read(&frame); !ok || frame.Empty() {
		return CapturedImage{}, errors.New("camera returned an empty frame")
	}

	dir := w.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "capture-*.png")
	if err != nil {
		return CapturedImage{}, fmt.Errorf("create capture file: %w", err)
	}
	path := f.Name()
	f.Close()

	if ok := gocv.IMWrite(path, frame); !ok {
		_ = os.Remove(path)
		return CapturedImage{}, fmt.Errorf("write capture to %s", filepath.Base(path))
	}
	return CapturedImage{Path: path, MimeType: "image/png", Ephemeral: true}, nil
}
