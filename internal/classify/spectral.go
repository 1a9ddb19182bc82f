package classify

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/relabs-tech/stroke_classifier/internal/imu"
)

// Prototype is the feature signature of one label for the Spectral
// classifier.
type Prototype struct {
	PeakG    float64    // peak |a| in the window, g
	Gyro     [3]float64 // signed peak angular rate per axis, °/s
	Centroid float64    // spectral centroid of |a|, cycles/sample (0..0.5)
}

// DefaultPrototypes covers the default table tennis label set.
var DefaultPrototypes = map[string]Prototype{
	"BHdrive": {PeakG: 2.8, Gyro: [3]float64{450, 0, 0}, Centroid: 0.12},
	"BHpush":  {PeakG: 2.6, Gyro: [3]float64{0, 0, -500}, Centroid: 0.10},
	"FHdrive": {PeakG: 3.5, Gyro: [3]float64{0, 0, 600}, Centroid: 0.12},
	"FHloop":  {PeakG: 4.2, Gyro: [3]float64{0, 800, 0}, Centroid: 0.14},
	"FHsmash": {PeakG: 5.0, Gyro: [3]float64{-900, 0, 0}, Centroid: 0.15},
	"idle":    {PeakG: 1.0, Gyro: [3]float64{0, 0, 0}, Centroid: 0.25},
}

const (
	gyroFeatureScale     = 100.0 // °/s per feature unit
	centroidFeatureScale = 10.0
)

// Spectral is a small nearest-prototype classifier over a handful of
// window features, one of which is the FFT centroid of the acceleration
// magnitude. It is the stand-in used when no trained model is deployed.
type Spectral struct {
	window      int
	protos      [][5]float64
	temperature float64

	mag []float64
}

// NewSpectral builds a classifier for windows of w samples over the label
// space l, looking up one prototype per label.
func NewSpectral(w int, l Labels, protos map[string]Prototype) (*Spectral, error) {
	if w < 4 {
		return nil, fmt.Errorf("spectral classifier needs a window of at least 4 samples, got %d", w)
	}
	s := &Spectral{
		window:      w,
		temperature: 1.0,
		mag:         make([]float64, w),
	}
	for _, name := range l.Names {
		p, ok := protos[name]
		if !ok {
			return nil, fmt.Errorf("no prototype for label %q", name)
		}
		s.protos = append(s.protos, features(p))
	}
	return s, nil
}

func (s *Spectral) InputSize() int { return s.window * imu.Channels }

// Classify returns the closest prototype with a softmax confidence.
func (s *Spectral) Classify(frame []float64) Result {
	if len(frame) != s.InputSize() || !Finite(frame) {
		return Failure
	}

	var p Prototype
	var gyroAbs [3]float64
	for i := 0; i < s.window; i++ {
		row := frame[i*imu.Channels : (i+1)*imu.Channels]
		m := math.Sqrt(row[imu.AX]*row[imu.AX] + row[imu.AY]*row[imu.AY] + row[imu.AZ]*row[imu.AZ])
		s.mag[i] = m
		if m > p.PeakG {
			p.PeakG = m
		}
		for ax := 0; ax < 3; ax++ {
			v := row[imu.GX+ax]
			if a := math.Abs(v); a > gyroAbs[ax] {
				gyroAbs[ax] = a
				p.Gyro[ax] = v
			}
		}
	}
	p.Centroid = centroid(s.mag)
	f := features(p)

	// softmax over negative squared distances
	best, bestScore := 0, math.Inf(-1)
	scores := make([]float64, len(s.protos))
	for i, proto := range s.protos {
		var d float64
		for k := range f {
			diff := f[k] - proto[k]
			d += diff * diff
		}
		scores[i] = -d / s.temperature
		if scores[i] > bestScore {
			best, bestScore = i, scores[i]
		}
	}
	var sum float64
	for _, sc := range scores {
		sum += math.Exp(sc - bestScore)
	}
	if sum == 0 || math.IsNaN(sum) {
		return Failure
	}
	return Result{Label: best, Confidence: 1 / sum}
}

func features(p Prototype) [5]float64 {
	return [5]float64{
		p.PeakG,
		p.Gyro[0] / gyroFeatureScale,
		p.Gyro[1] / gyroFeatureScale,
		p.Gyro[2] / gyroFeatureScale,
		p.Centroid * centroidFeatureScale,
	}
}

// centroid returns the power-weighted mean frequency of x, in cycles per
// sample, ignoring DC.
func centroid(x []float64) float64 {
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	centered := make([]float64, len(x))
	for i, v := range x {
		centered[i] = v - mean
	}

	spec := fft.FFTReal(centered)
	var num, den float64
	for k := 1; k <= len(x)/2; k++ {
		pw := cmplx.Abs(spec[k])
		pw *= pw
		num += float64(k) * pw
		den += pw
	}
	if den == 0 {
		return 0
	}
	return num / den / float64(len(x))
}
