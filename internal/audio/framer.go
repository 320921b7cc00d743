package audio

// FrameKind distinguishes speech frames from the single silence marker.
type FrameKind int

const (
	Voiced FrameKind = iota
	Silence
)

func (k FrameKind) String() string {
	if k == Silence {
		return "silence"
	}
	return "voiced"
}

// Frame is one encoded window ready for the wire. PCM is freshly allocated
// per frame and not retained by the framer.
type Frame struct {
	Kind FrameKind
	PCM  []byte
	RMS  float64
}

// FramerConfig tunes the framing pipeline.
type FramerConfig struct {
	FrameSamples     int
	Gain             float64
	SilenceThreshold float64
}

// DefaultFramerConfig is 100 ms windows at 16 kHz.
func DefaultFramerConfig() FramerConfig {
	return FramerConfig{
		FrameSamples:     1600,
		Gain:             1.5,
		SilenceThreshold: 0.001,
	}
}

// Framer turns capture blocks of any size into fixed windows. A window whose
// RMS exceeds the threshold is emitted as a voiced frame. After voiced audio,
// the second consecutive quiet window produces one all-zero silence frame and
// nothing more is sent until audio resumes.
//
// Framer is not safe for concurrent use.
type Framer struct {
	cfg    FramerConfig
	emit   func(Frame)
	window []float32
	idx    int

	lowEnergy    int
	recentlySent bool
	muted        bool
}

// NewFramer returns a framer that hands every produced frame to emit.
// Zero fields in cfg take their defaults.
func NewFramer(cfg FramerConfig, emit func(Frame)) *Framer {
	def := DefaultFramerConfig()
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = def.FrameSamples
	}
	if cfg.Gain == 0 {
		cfg.Gain = def.Gain
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = def.SilenceThreshold
	}
	return &Framer{
		cfg:    cfg,
		emit:   emit,
		window: make([]float32, cfg.FrameSamples),
	}
}

// Push feeds one capture block. Blocks that arrive while muted are dropped
// before framing.
func (f *Framer) Push(block []float32) {
	if f.muted {
		return
	}
	gain := float32(f.cfg.Gain)
	for _, s := range block {
		f.window[f.idx] = Clamp(s * gain)
		f.idx++
		if f.idx == len(f.window) {
			f.flush()
			f.idx = 0
		}
	}
}

func (f *Framer) flush() {
	rms := RMS(f.window)
	if rms > f.cfg.SilenceThreshold {
		f.lowEnergy = 0
		f.recentlySent = true
		f.emit(Frame{Kind: Voiced, PCM: EncodePCM16(f.window), RMS: rms})
		return
	}
	f.lowEnergy++
	if f.lowEnergy == 2 && f.recentlySent {
		f.recentlySent = false
		f.emit(Frame{Kind: Silence, PCM: make([]byte, len(f.window)*2), RMS: rms})
	}
}

// SetMuted gates framing. Any partial window is discarded on change.
func (f *Framer) SetMuted(v bool) {
	if f.muted == v {
		return
	}
	f.muted = v
	f.Reset()
}

// Muted reports the gate state.
func (f *Framer) Muted() bool { return f.muted }

// Reset clears the accumulator and silence debounce for a new capture cycle.
func (f *Framer) Reset() {
	f.idx = 0
	f.lowEnergy = 0
	f.recentlySent = false
}

// Pending returns how many samples are buffered toward the next window.
func (f *Framer) Pending() int { return f.idx }
