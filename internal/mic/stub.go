//go:build noportaudio

package mic

import (
	"captionjoin/internal/audio"
	"captionjoin/internal/fault"

	"github.com/sirupsen/logrus"
)

var errUnavailable = fault.CaptureErr("portaudio", "built without PortAudio support", nil)

// PortAudio stands in for the device backend when built without it. Only
// file: sources can be captured.
type PortAudio struct{}

func New(*logrus.Logger) *PortAudio { return &PortAudio{} }

func (p *PortAudio) Close() error { return nil }

func (p *PortAudio) Devices() ([]audio.Device, error) { return nil, nil }

func (p *PortAudio) Open(string, audio.StreamConfig, func([]float32)) (audio.Stream, error) {
	return nil, errUnavailable
}

func DefaultInput() (string, error) { return "", errUnavailable }
