package imu

import "fmt"

// IMURaw represents a single raw accel+gyro sample in sensor counts.
type IMURaw struct {
	Source string `json:"source"`

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// Scale converts raw counts to physical units.
type Scale struct {
	AccelLSBPerG  float64
	GyroLSBPerDPS float64
}

// ScaleForRanges returns the MPU-9250 sensitivity for the full scale
// selectors used in config.
// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
func ScaleForRanges(accelRange, gyroRange byte) (Scale, error) {
	if accelRange > 3 {
		return Scale{}, fmt.Errorf("accel range must be 0-3, got %d", accelRange)
	}
	if gyroRange > 3 {
		return Scale{}, fmt.Errorf("gyro range must be 0-3, got %d", gyroRange)
	}
	return Scale{
		AccelLSBPerG:  16384.0 / float64(int(1)<<accelRange),
		GyroLSBPerDPS: 131.0 / float64(int(1)<<gyroRange),
	}, nil
}

// ToSample converts raw counts into a calibrated Sample.
func (r IMURaw) ToSample(sc Scale) Sample {
	return Sample{
		float64(r.Ax) / sc.AccelLSBPerG,
		float64(r.Ay) / sc.AccelLSBPerG,
		float64(r.Az) / sc.AccelLSBPerG,
		float64(r.Gx) / sc.GyroLSBPerDPS,
		float64(r.Gy) / sc.GyroLSBPerDPS,
		float64(r.Gz) / sc.GyroLSBPerDPS,
	}
}
