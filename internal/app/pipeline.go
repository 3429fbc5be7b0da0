package app

import (
	"context"
	"time"

	"github.com/ayusman/handmark/internal/capture"
	"github.com/ayusman/handmark/internal/log"
)

// RunCamera feeds frames from cam into Detect at fps frames per second until
// ctx is done. The camera is opened and closed here.
//
// Each frame is JPEG encoded first so that local frames take the same path
// as frames from remote callers.
func (a *App) RunCamera(ctx context.Context, cam capture.Camera, fps int) error {
	if fps <= 0 {
		fps = capture.DefaultFPS
	}

	if err := cam.Open(); err != nil {
		return err
	}
	defer func() {
		if err := cam.Close(); err != nil {
			log.Warn("error closing camera", "error", err)
		}
	}()
	cam.SetFPS(fps)

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	log.Info("camera feed started", "fps", fps)

	var failures int
	for {
		select {
		case <-ctx.Done():
			log.Info("camera feed stopped")
			return nil
		case <-ticker.C:
			frame, err := cam.ReadFrame()
			if err != nil {
				failures++
				// Log the first failure of a streak only.
				if failures == 1 {
					log.Warn("error reading frame", "error", err)
				}
				continue
			}
			failures = 0

			data, err := capture.EncodeJPEG(frame)
			frame.Close()
			if err != nil {
				log.Warn("error encoding frame", "error", err)
				continue
			}

			a.Detect(data)
		}
	}
}
