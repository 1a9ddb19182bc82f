package imu

import (
	"errors"
	"fmt"
)

// Channels is the number of scalar channels carried by one Sample.
const Channels = 6

// Channel indices inside a Sample.
const (
	AX = iota // accel, g
	AY
	AZ
	GX // gyro, °/s
	GY
	GZ
)

// ErrUnavailable is returned by a Source when no reading is ready this tick.
// Callers skip the tick; it is never fatal.
var ErrUnavailable = errors.New("imu: sample unavailable")

// Sample is one calibrated 6-axis reading: acceleration in g followed by
// angular rate in °/s.
type Sample [Channels]float64

// NewSample builds a Sample from its six channel values.
func NewSample(ax, ay, az, gx, gy, gz float64) Sample {
	return Sample{ax, ay, az, gx, gy, gz}
}

// AccelNormSq returns ax²+ay²+az² in g².
func (s Sample) AccelNormSq() float64 {
	return s[AX]*s[AX] + s[AY]*s[AY] + s[AZ]*s[AZ]
}

func (s Sample) String() string {
	return fmt.Sprintf("a=(%.3f %.3f %.3f)g w=(%.1f %.1f %.1f)dps",
		s[AX], s[AY], s[AZ], s[GX], s[GY], s[GZ])
}

// Source is anything that can provide samples over time: the MPU-9250,
// a synthetic generator, a replayed recording.
type Source interface {
	Next() (Sample, error)
}
