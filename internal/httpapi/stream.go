package httpapi

import (
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
)

// handleStream serves frames as MJPEG.  The latest frame goes out first so
// a new viewer sees something even while capture is stopped.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	frames, cancel := s.display.Subscribe()
	defer cancel()

	rc := http.NewResponseController(w)
	mw := multipart.NewWriter(w)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if jpeg, seq := s.display.Latest(); seq > 0 {
		if err := writeJPEGPart(mw, rc, jpeg); err != nil {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case jpeg, ok := <-frames:
			if !ok {
				return
			}
			if err := writeJPEGPart(mw, rc, jpeg); err != nil {
				s.logger.Debug("stream client gone", "from", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

func writeJPEGPart(mw *multipart.Writer, rc *http.ResponseController, jpeg []byte) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Length", strconv.Itoa(len(jpeg)))

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(jpeg); err != nil {
		return err
	}
	return rc.Flush()
}
