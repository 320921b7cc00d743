package audio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	analysisSize   = 512
	smoothing      = 0.3
	minDecibels    = -100.0
	maxDecibels    = -30.0
	speechLowHz    = 300.0
	speechHighHz   = 3000.0
	speechWeight   = 3.0
	otherWeight    = 0.5
	levelBoost     = 2.5
	levelFloor     = 0.05
	LevelBarCount  = 6
	loudBarMinimum = 5
)

// Level is a visual loudness estimate.
type Level struct {
	Value float64 // bars / LevelBarCount
	Bars  int
}

// Loud reports whether the signal is near the top of the meter.
func (l Level) Loud() bool { return l.Bars >= loudBarMinimum }

// LevelMeter estimates loudness from a speech-weighted magnitude spectrum of
// the most recent analysisSize samples.
type LevelMeter struct {
	nyquist  float64
	fft      *fourier.FFT
	window   []float64
	history  []float64
	seq      []float64
	coeffs   []complex128
	smoothed []float64
	bytes    []float64
}

// NewLevelMeter builds a meter for the given capture rate.
func NewLevelMeter(sampleRate int) *LevelMeter {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	w := make([]float64, analysisSize)
	for n := range w {
		x := float64(n) / analysisSize
		w[n] = 0.42 - 0.5*math.Cos(2*math.Pi*x) + 0.08*math.Cos(4*math.Pi*x)
	}
	bins := analysisSize / 2
	return &LevelMeter{
		nyquist:  float64(sampleRate) / 2,
		fft:      fourier.NewFFT(analysisSize),
		window:   w,
		history:  make([]float64, analysisSize),
		seq:      make([]float64, analysisSize),
		smoothed: make([]float64, bins),
		bytes:    make([]float64, bins),
	}
}

// Push appends a block to the analysis history and returns the new level.
func (m *LevelMeter) Push(block []float32) Level {
	if len(block) >= analysisSize {
		for i := range m.history {
			m.history[i] = float64(block[len(block)-analysisSize+i])
		}
	} else {
		copy(m.history, m.history[len(block):])
		off := analysisSize - len(block)
		for i, s := range block {
			m.history[off+i] = float64(s)
		}
	}
	m.spectrum()
	return levelFromSpectrum(m.bytes, m.nyquist)
}

// spectrum fills m.bytes with per-bin magnitudes on a 0-255 decibel scale.
func (m *LevelMeter) spectrum() {
	for i, s := range m.history {
		m.seq[i] = s * m.window[i]
	}
	m.coeffs = m.fft.Coefficients(m.coeffs, m.seq)
	for k := range m.smoothed {
		mag := cmplx.Abs(m.coeffs[k]) / analysisSize
		m.smoothed[k] = smoothing*m.smoothed[k] + (1-smoothing)*mag
		db := 20 * math.Log10(m.smoothed[k])
		v := math.Floor(255 / (maxDecibels - minDecibels) * (db - minDecibels))
		switch {
		case math.IsNaN(v) || v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		m.bytes[k] = v
	}
}

func levelFromSpectrum(bins []float64, nyquist float64) Level {
	if len(bins) == 0 {
		return Level{}
	}
	var sum, weights float64
	for i, v := range bins {
		freq := float64(i) / float64(len(bins)) * nyquist
		w := otherWeight
		if freq > speechLowHz && freq < speechHighHz {
			w = speechWeight
		}
		sum += v * w
		weights += w
	}
	raw := sum / weights / 255 * levelBoost
	if raw <= levelFloor {
		raw = 0
	}
	bars := int(math.Floor(raw * LevelBarCount))
	if bars > LevelBarCount {
		bars = LevelBarCount
	}
	return Level{Value: float64(bars) / LevelBarCount, Bars: bars}
}
