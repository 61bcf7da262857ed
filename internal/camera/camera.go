package camera

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when the device yields no image.
var ErrNoFrame = errors.New("can't read camera")

// Camera grabs single frames from a local video device. The device is opened
// and released on every capture so nothing holds it between button presses.
type Camera struct {
	device int
}

func New(device int) *Camera {
	return &Camera{device: device}
}

// Capture returns one BGR frame. The caller owns the returned Mat and must
// Close it.
func (c *Camera) Capture() (gocv.Mat, error) {
	video, err := gocv.OpenVideoCapture(c.device)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to open camera %d: %w", c.device, err)
	}
	defer video.Close()

	img := gocv.NewMat()
	if ok := video.Read(&img); !ok || img.Empty() {
		img.Close()
		return gocv.Mat{}, ErrNoFrame
	}
	return img, nil
}
