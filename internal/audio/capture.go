package audio

import (
	"fmt"
	"strings"

	"captionjoin/internal/fault"
)

// Device is one selectable input.
type Device struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Channels  int     `json:"channels"`
	LatencyMs float64 `json:"latency_ms"`
	Default   bool    `json:"default"`
}

// StreamConfig describes the capture format. Samples are mono float32.
type StreamConfig struct {
	SampleRate int
	BlockSize  int
}

// DefaultStreamConfig is 16 kHz mono in 2048-sample blocks.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{SampleRate: 16000, BlockSize: 2048}
}

// Stream is a live capture. Close releases the device handle.
type Stream interface {
	Close() error
}

// Capturer lists and opens input devices. onBlock may be called from a
// driver thread and must not retain the slice beyond the call.
type Capturer interface {
	Devices() ([]Device, error)
	Open(deviceID string, cfg StreamConfig, onBlock func([]float32)) (Stream, error)
}

// NormalizeDeviceID maps every spelling of the system default to "".
func NormalizeDeviceID(id string) string {
	id = strings.TrimSpace(id)
	if strings.EqualFold(id, "default") {
		return ""
	}
	return id
}

// SameDevice reports whether two device ids resolve to the same input.
func SameDevice(a, b string) bool {
	return NormalizeDeviceID(a) == NormalizeDeviceID(b)
}

// Router sends file: ids to Files and everything else to Device. Either may
// be nil.
type Router struct {
	Device Capturer
	Files  Capturer
}

// Devices lists the system inputs followed by any file sources.
func (r Router) Devices() ([]Device, error) {
	var out []Device
	for _, c := range []Capturer{r.Device, r.Files} {
		if c == nil {
			continue
		}
		devs, err := c.Devices()
		if err != nil {
			return nil, err
		}
		out = append(out, devs...)
	}
	return out, nil
}

func (r Router) Open(deviceID string, cfg StreamConfig, onBlock func([]float32)) (Stream, error) {
	target := r.Device
	if IsFileDevice(deviceID) {
		target = r.Files
	}
	if target == nil {
		return nil, fault.CaptureErr("open device", fmt.Sprintf("no capture source for %q", deviceID), nil)
	}
	return target.Open(deviceID, cfg, onBlock)
}
