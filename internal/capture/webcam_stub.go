//go:build !gocv

package capture

// NewWebcam returns NoCamera; build with -tags gocv for OpenCV capture.
func NewWebcam(deviceID int, dir string) Camera {
	return NoCamera{}
}
