package audio

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"captionjoin/internal/fault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, dir string, frames ...Frame) string {
	t.Helper()
	a, err := CreateArchive(dir, "fixture", 16000)
	require.NoError(t, err)
	for _, f := range frames {
		require.NoError(t, a.Write(f))
	}
	require.NoError(t, a.Close())
	return a.Path()
}

func TestArchiveRoundTripsThroughLoadWAV(t *testing.T) {
	voiced := EncodePCM16(tone(1600, 0.5))
	path := writeArchive(t, t.TempDir(), Frame{Kind: Voiced, PCM: voiced}, Frame{Kind: Silence, PCM: make([]byte, 3200)})

	samples, err := LoadWAV(path, 16000)
	require.NoError(t, err)
	require.Len(t, samples, 3200)
	assert.InDelta(t, tone(1600, 0.5)[100], samples[100], 1e-3)
	assert.Zero(t, samples[2000])
}

func TestLoadWAVRejectsWrongRate(t *testing.T) {
	path := writeArchive(t, t.TempDir(), Frame{PCM: make([]byte, 320)})
	_, err := LoadWAV(path, 44100)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Capture))

	bad := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(bad, []byte("not a wav"), 0o644))
	_, err = LoadWAV(bad, 16000)
	assert.True(t, fault.Is(err, fault.Capture))
}

func TestFileSourceReplaysBlocks(t *testing.T) {
	path := writeArchive(t, t.TempDir(), Frame{Kind: Voiced, PCM: EncodePCM16(tone(1600, 0.5))})
	var mu sync.Mutex
	total := 0
	done := make(chan struct{})
	src := FileSource{}
	stream, err := src.Open(FilePrefix+path, StreamConfig{SampleRate: 16000, BlockSize: 400}, func(b []float32) {
		mu.Lock()
		defer mu.Unlock()
		total += len(b)
		if total == 1600 {
			close(done)
		}
	})
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("replay did not finish")
	}
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
}

func TestRouterSendsFileIDsToFileSource(t *testing.T) {
	r := Router{Files: FileSource{}}
	_, err := r.Open(FilePrefix+"/does/not/exist.wav", DefaultStreamConfig(), func([]float32) {})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Capture))
	assert.True(t, SameDevice("", "default"))
	assert.True(t, SameDevice(" Default ", ""))
	assert.False(t, SameDevice("USB Mic", ""))
}

type staticCapturer []Device

func (c staticCapturer) Devices() ([]Device, error) { return c, nil }

func (c staticCapturer) Open(string, StreamConfig, func([]float32)) (Stream, error) {
	return nil, nil
}

func TestRouterMergesDevicesAndGuardsMissingSource(t *testing.T) {
	r := Router{
		Device: staticCapturer{{ID: "USB Mic", Name: "USB Mic"}},
		Files:  staticCapturer{{ID: FilePrefix + "talk.wav", Name: "talk.wav"}},
	}
	devs, err := r.Devices()
	require.NoError(t, err)
	require.Len(t, devs, 2)
	assert.Equal(t, "USB Mic", devs[0].ID)
	assert.Equal(t, FilePrefix+"talk.wav", devs[1].ID)

	files := Router{Files: FileSource{}}
	devs, err = files.Devices()
	require.NoError(t, err)
	assert.Empty(t, devs)
	_, err = files.Open("USB Mic", DefaultStreamConfig(), func([]float32) {})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Capture))

	_, err = Router{}.Open(FilePrefix+"talk.wav", DefaultStreamConfig(), func([]float32) {})
	assert.True(t, fault.Is(err, fault.Capture))
}
