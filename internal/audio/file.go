package audio

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"captionjoin/internal/fault"

	"github.com/go-audio/wav"
)

// FilePrefix marks device ids that replay a WAV file instead of a microphone.
const FilePrefix = "file:"

// IsFileDevice reports whether id names a WAV replay source.
func IsFileDevice(id string) bool {
	return strings.HasPrefix(id, FilePrefix)
}

// FileSource replays mono WAV files at real-time pace. The file's sample rate
// must match the stream config.
type FileSource struct {
	// Loop restarts playback at end of file.
	Loop bool
}

// LoadWAV decodes a mono PCM file into float32 samples in [-1, 1].
func LoadWAV(path string, sampleRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.CaptureErr("open file", "cannot open audio file", err)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fault.CaptureErr("open file", fmt.Sprintf("%s is not a valid WAV file", path), nil)
	}
	if d.NumChans != 1 {
		return nil, fault.CaptureErr("open file", fmt.Sprintf("%s has %d channels, want mono", path, d.NumChans), nil)
	}
	if int(d.SampleRate) != sampleRate {
		return nil, fault.CaptureErr("open file", fmt.Sprintf("%s is %d Hz, want %d Hz", path, d.SampleRate, sampleRate), nil)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fault.CaptureErr("open file", "cannot decode audio file", err)
	}
	depth := int(d.BitDepth)
	if depth == 0 {
		depth = 16
	}
	scale := float32(int(1) << (depth - 1))
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = Clamp(float32(v) / scale)
	}
	return out, nil
}

func (s FileSource) Devices() ([]Device, error) { return nil, nil }

func (s FileSource) Open(deviceID string, cfg StreamConfig, onBlock func([]float32)) (Stream, error) {
	path := strings.TrimPrefix(deviceID, FilePrefix)
	samples, err := LoadWAV(path, cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultStreamConfig().BlockSize
	}
	fs := &fileStream{stop: make(chan struct{})}
	interval := time.Duration(float64(time.Second) * float64(cfg.BlockSize) / float64(cfg.SampleRate))
	fs.wg.Add(1)
	go fs.play(samples, cfg.BlockSize, interval, s.Loop, onBlock)
	return fs, nil
}

type fileStream struct {
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (fs *fileStream) play(samples []float32, block int, interval time.Duration, loop bool, onBlock func([]float32)) {
	defer fs.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	pos := 0
	for {
		select {
		case <-fs.stop:
			return
		case <-ticker.C:
		}
		if pos >= len(samples) {
			if !loop || len(samples) == 0 {
				return
			}
			pos = 0
		}
		end := min(pos+block, len(samples))
		chunk := make([]float32, end-pos)
		copy(chunk, samples[pos:end])
		onBlock(chunk)
		pos = end
	}
}

func (fs *fileStream) Close() error {
	fs.once.Do(func() { close(fs.stop) })
	fs.wg.Wait()
	return nil
}
