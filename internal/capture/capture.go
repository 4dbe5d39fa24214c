// Package capture defines the camera and gallery capabilities the screen
// depends on, plus the implementations available on a server host.
package capture

import (
	"context"
	"errors"
	"os"
	"strings"
)

var (
	ErrCameraUnavailable = errors.New("no camera device available")
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrNotImage          = errors.New("file is not an image")
)

// Availability is what a camera provider reports about its device.
type Availability int

const (
	Unavailable Availability = iota
	Available
	Denied
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Denied:
		return "denied"
	default:
		return "unavailable"
	}
}

// Device describes a camera the provider can drive.
type Device struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

// IsBack reports whether the device faces away from the user.
func (d *Device) IsBack() bool {
	return d != nil && d.Position == PositionBack
}

const (
	PositionBack  = "back"
	PositionFront = "front"
)

// CapturedImage references an image on disk produced by a camera or picker.
type CapturedImage struct {
	Path     string
	MimeType string
	// Ephemeral images were created by this process and are removed by Discard.
	Ephemeral bool
}

// LocalPath strips the file:// scheme some capture paths carry.
func (img CapturedImage) LocalPath() string {
	return strings.TrimPrefix(img.Path, "file://")
}

// Discard removes the file if it was produced by this process.
func (img CapturedImage) Discard() error {
	if !img.Ephemeral || img.Path == "" {
		return nil
	}
	if err := os.Remove(img.LocalPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Camera takes photos from a device.
type Camera interface {
	Probe(ctx context.Context) (Availability, *Device)
	TakePhoto(ctx context.Context) (CapturedImage, error)
}

// Picker yields an image the user selected.
type Picker interface {
	Pick(ctx context.Context) (CapturedImage, error)
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(ctx context.Context) (CapturedImage, error)

func (f PickerFunc) Pick(ctx context.Context) (CapturedImage, error) {
	return f(ctx)
}
