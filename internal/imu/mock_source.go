// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "math"

// swing shapes used by the mock source, one per synthetic stroke:
// peak accel (g), dominant gyro axis, peak gyro (°/s).
var mockSwings = []struct {
	peakG   float64
	gyroAx  int
	peakDPS float64
}{
	{3.5, GZ, 600},
	{2.8, GX, 450},
	{4.2, GY, 800},
	{2.6, GZ, -500},
	{5.0, GX, -900},
}

type mockSource struct {
	n          int
	rateHz     float64
	periodSamp int
	swingSamp  int
}

// NewMockSource creates a synthetic source sampled at rateHz that holds the
// paddle still (1g on Z with a little hand tremor) and inserts a short swing
// every period seconds, cycling through a few swing shapes.
func NewMockSource(rateHz, period float64) Source {
	if rateHz <= 0 {
		rateHz = 50
	}
	if period <= 0 {
		period = 3
	}
	return &mockSource{
		rateHz:     rateHz,
		periodSamp: int(period * rateHz),
		swingSamp:  int(0.2 * rateHz),
	}
}

func (m *mockSource) Next() (Sample, error) {
	i := m.n
	m.n++
	t := float64(i) / m.rateHz

	s := Sample{
		0.02 * math.Sin(2*math.Pi*1.3*t),
		0.02 * math.Cos(2*math.Pi*0.9*t),
		1.0,
		2 * math.Sin(2*math.Pi*0.5*t),
		2 * math.Cos(2*math.Pi*0.7*t),
		0,
	}

	phase := i % m.periodSamp
	if phase < m.swingSamp && m.swingSamp > 0 {
		sw := mockSwings[(i/m.periodSamp)%len(mockSwings)]
		env := math.Sin(math.Pi * float64(phase) / float64(m.swingSamp))
		s[AX] += sw.peakG * env
		s[sw.gyroAx] += sw.peakDPS * env
	}
	return s, nil
}
