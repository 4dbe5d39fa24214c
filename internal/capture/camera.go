package capture

import "context"

// NoCamera is the provider for hosts without a capture device.
type NoCamera struct{}

func (NoCamera) Probe(context.Context) (Availability, *Device) {
	return Unavailable, nil
}

func (NoCamera) TakePhoto(context.Context) (CapturedImage, error) {
	return CapturedImage{}, ErrCameraUnavailable
}

// PermissionGate reports Denied, and refuses to capture, unless Allowed.
type PermissionGate struct {
	Camera  Camera
	Allowed bool
}

func (g PermissionGate) Probe(ctx context.Context) (Availability, *Device) {
	availability, device := g.Camera.Probe(ctx)
	if availability == Available && !g.Allowed {
		return Denied, device
	}
	return availability, device
}

func (g PermissionGate) TakePhoto(ctx context.Context) (CapturedImage, error) {
	if !g.Allowed {
		return CapturedImage{}, ErrPermissionDenied
	}
	return g.Camera.TakePhoto(ctx)
}
