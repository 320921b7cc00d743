package audio

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return out
}

type sink struct{ frames []Frame }

func (s *sink) emit(f Frame) { s.frames = append(s.frames, f) }

func (s *sink) kinds() []FrameKind {
	out := make([]FrameKind, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Kind
	}
	return out
}

func TestQuantizeScaling(t *testing.T) {
	assert.Equal(t, int16(-32768), Quantize(-1))
	assert.Equal(t, int16(32767), Quantize(1))
	assert.Equal(t, int16(32767), Quantize(3))
	assert.Equal(t, int16(0), Quantize(0))
	assert.Equal(t, int16(-16384), Quantize(-0.5))

	pcm := EncodePCM16([]float32{1, -1})
	require.Len(t, pcm, 4)
	assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(pcm[0:])))
	assert.Equal(t, int16(-32768), int16(binary.LittleEndian.Uint16(pcm[2:])))
}

func TestFramerDemultiplexesArbitraryBlocks(t *testing.T) {
	s := &sink{}
	f := NewFramer(DefaultFramerConfig(), s.emit)
	sig := tone(1600*3+100, 0.2)
	for i := 0; i < len(sig); i += 2048 {
		f.Push(sig[i:min(i+2048, len(sig))])
	}
	require.Len(t, s.frames, 3)
	assert.Equal(t, 100, f.Pending())
	for _, fr := range s.frames {
		assert.Equal(t, Voiced, fr.Kind)
		assert.Len(t, fr.PCM, 3200)
	}
	first := int16(binary.LittleEndian.Uint16(s.frames[0].PCM[2:]))
	assert.Equal(t, Quantize(sig[1]*1.5), first, "gain is applied before quantizing")
}

func TestFramerSilenceMarkerOnSecondQuietWindow(t *testing.T) {
	s := &sink{}
	f := NewFramer(DefaultFramerConfig(), s.emit)
	f.Push(tone(1600, 0.3))
	silence := make([]float32, 1600)
	f.Push(silence)
	assert.Equal(t, []FrameKind{Voiced}, s.kinds(), "first quiet window is held back")
	f.Push(silence)
	assert.Equal(t, []FrameKind{Voiced, Silence}, s.kinds())
	for i := 0; i < 5; i++ {
		f.Push(silence)
	}
	assert.Len(t, s.frames, 2, "only one marker per voiced-to-silent transition")
	for _, b := range s.frames[1].PCM {
		require.Zero(t, b)
	}

	f.Push(tone(1600, 0.3))
	f.Push(silence)
	f.Push(silence)
	assert.Equal(t, []FrameKind{Voiced, Silence, Voiced, Silence}, s.kinds())
}

func TestFramerNoMarkerWithoutPriorAudio(t *testing.T) {
	s := &sink{}
	f := NewFramer(DefaultFramerConfig(), s.emit)
	f.Push(make([]float32, 1600*4))
	assert.Empty(t, s.frames)
}

func TestFramerMuteIsHardGate(t *testing.T) {
	s := &sink{}
	f := NewFramer(DefaultFramerConfig(), s.emit)
	f.Push(tone(1600, 0.4))
	f.Push(tone(800, 0.4))
	f.SetMuted(true)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		block := make([]float32, 2048)
		for j := range block {
			block[j] = float32(r.Float64()*2 - 1)
		}
		f.Push(block)
		f.Push(make([]float32, 2048))
	}
	assert.Len(t, s.frames, 1, "no voiced or silence frames while muted")
	assert.Zero(t, f.Pending())

	f.SetMuted(false)
	f.Push(make([]float32, 3200))
	assert.Len(t, s.frames, 1, "debounce restarts after unmute")
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(make([]float32, 1600)))
	assert.InDelta(t, 0.5, RMS([]float32{0.5, -0.5, 0.5, -0.5}), 1e-9)
	assert.Zero(t, RMS(nil))
}
