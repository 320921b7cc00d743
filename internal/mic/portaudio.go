//go:build !noportaudio

// Package mic captures from system input devices through PortAudio. Build
// with -tags noportaudio to link without libportaudio.
package mic

import (
	"errors"
	"fmt"
	"sync"

	"captionjoin/internal/audio"
	"captionjoin/internal/fault"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// PortAudio captures from system input devices. Device ids are device names;
// "" selects the default input.
type PortAudio struct {
	logger *logrus.Logger

	mu          sync.Mutex
	initialized bool
}

func New(logger *logrus.Logger) *PortAudio {
	return &PortAudio{logger: logger}
}

func (p *PortAudio) ensureInit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fault.CaptureErr("portaudio", "audio subsystem unavailable", err)
	}
	p.initialized = true
	return nil
}

// Close terminates portaudio if it was initialized.
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}

func (p *PortAudio) Devices() ([]audio.Device, error) {
	if err := p.ensureInit(); err != nil {
		return nil, err
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fault.CaptureErr("list devices", "cannot enumerate input devices", err)
	}
	def, _ := portaudio.DefaultInputDevice()
	out := make([]audio.Device, 0, len(devs))
	for _, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, audio.Device{
			ID:        d.Name,
			Name:      d.Name,
			Channels:  d.MaxInputChannels,
			LatencyMs: d.DefaultLowInputLatency.Seconds() * 1000,
			Default:   def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}

func (p *PortAudio) selectDevice(id string) (*portaudio.DeviceInfo, error) {
	id = audio.NormalizeDeviceID(id)
	if id == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fault.CaptureErr("open device", "no default input device", err)
		}
		return dev, nil
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fault.CaptureErr("open device", "cannot enumerate input devices", err)
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 && d.Name == id {
			return d, nil
		}
	}
	return nil, fault.CaptureErr("open device", fmt.Sprintf("input device %q not found", id), nil)
}

func (p *PortAudio) Open(deviceID string, cfg audio.StreamConfig, onBlock func([]float32)) (audio.Stream, error) {
	if err := p.ensureInit(); err != nil {
		return nil, err
	}
	dev, err := p.selectDevice(deviceID)
	if err != nil {
		return nil, err
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.BlockSize,
	}
	stream, err := portaudio.OpenStream(params, func(in []float32) {
		block := make([]float32, len(in))
		copy(block, in)
		onBlock(block)
	})
	if err != nil {
		return nil, fault.CaptureErr("open device", fmt.Sprintf("cannot open %q", dev.Name), err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fault.CaptureErr("open device", fmt.Sprintf("cannot start %q", dev.Name), err)
	}
	if p.logger != nil {
		p.logger.Debugf("capture started on %q (%d Hz, %d frames/buffer)", dev.Name, cfg.SampleRate, cfg.BlockSize)
	}
	return &paStream{stream: stream}, nil
}

type paStream struct {
	once   sync.Once
	stream *portaudio.Stream
}

func (s *paStream) Close() error {
	var err error
	s.once.Do(func() {
		err = errors.Join(s.stream.Stop(), s.stream.Close())
	})
	return err
}

// DefaultInput names the default input device. PortAudio is initialized
// for the call only.
func DefaultInput() (string, error) {
	if err := portaudio.Initialize(); err != nil {
		return "", fault.CaptureErr("portaudio", "audio subsystem unavailable", err)
	}
	defer func() {
		_ = portaudio.Terminate()
	}()
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return "", fault.CaptureErr("portaudio", "no default input device", err)
	}
	return dev.Name, nil
}
