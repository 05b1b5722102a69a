package vision

import (
	"fmt"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"github.com/BrandonDHaskell/facegate/internal/facegate/service"
)

// DeviceSource opens a camera by index ("0") or a stream URL / video file.
type DeviceSource struct {
	Device string
}

func (s DeviceSource) Open() (service.Camera, error) {
	dev := strings.TrimSpace(s.Device)
	if dev == "" {
		dev = "0"
	}

	var (
		vc  *gocv.VideoCapture
		err error
	)
	if idx, convErr := strconv.Atoi(dev); convErr == nil {
		vc, err = gocv.OpenVideoCapture(idx)
	} else {
		vc, err = gocv.OpenVideoCapture(dev)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", service.ErrCameraUnavailable, dev, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: %s not opened", service.ErrCameraUnavailable, dev)
	}
	return &camera{vc: vc}, nil
}

type camera struct {
	vc *gocv.VideoCapture
}

func (c *camera) Read() (service.CapturedFrame, bool) {
	img := gocv.NewMat()
	if ok := c.vc.Read(&img); !ok || img.Empty() {
		_ = img.Close()
		return nil, false
	}
	f, err := NewFrame(img)
	if err != nil {
		_ = img.Close()
		return nil, false
	}
	return f, true
}

func (c *camera) Close() error {
	return c.vc.Close()
}
