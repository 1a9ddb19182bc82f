package app

import (
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/stroke_classifier/internal/config"
	"github.com/relabs-tech/stroke_classifier/internal/imu"
	"github.com/relabs-tech/stroke_classifier/internal/sensors"
)

// mockSwingPeriod is the time between synthetic strokes from the mock source.
const mockSwingPeriod = 2.5 // seconds

// openSource selects the sample source named by IMU_SOURCE.
func openSource(cfg *config.Config) (imu.Source, error) {
	switch cfg.IMUSource {
	case "mpu9250":
		src, err := sensors.NewMPU9250Source(sensors.MPU9250Options{
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			AccelRange: cfg.IMUAccelRange,
			GyroRange:  cfg.IMUGyroRange,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	case "mock":
		rate := float64(time.Second) / float64(cfg.SampleInterval())
		log.Printf("imu: using mock source at %.0f Hz", rate)
		return imu.NewMockSource(rate, mockSwingPeriod), nil
	case "replay":
		src, err := imu.OpenReplay(cfg.IMUReplayFile, cfg.IMUReplayLoop)
		if err != nil {
			return nil, err
		}
		log.Printf("imu: replaying %s (loop=%v)", cfg.IMUReplayFile, cfg.IMUReplayLoop)
		return src, nil
	default:
		return nil, fmt.Errorf("unknown IMU source %q", cfg.IMUSource)
	}
}

// rateLimiter lets an event through at most once per interval.
type rateLimiter struct {
	interval time.Duration
	last     time.Time
	dropped  int
}

// allow reports whether the event at now may be logged, and how many were
// suppressed since the last one that was.
func (r *rateLimiter) allow(now time.Time) (bool, int) {
	if !r.last.IsZero() && now.Sub(r.last) < r.interval {
		r.dropped++
		return false, 0
	}
	r.last = now
	n := r.dropped
	r.dropped = 0
	return true, n
}
