package session

import (
	"errors"
	"time"

	"captionjoin/internal/audio"
	"captionjoin/internal/loop"
	"captionjoin/internal/metrics"
	"captionjoin/internal/transport"

	"github.com/sirupsen/logrus"
)

// Status is the externally visible state of a recorder.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
	StatusEnded        Status = "ended"
)

// NoticeKind grades session-wide notifications.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeInfo    NoticeKind = "info"
	NoticeError   NoticeKind = "error"
)

// ErrDeviceInUse is returned by Join while another connected recorder holds
// the same input device.
var ErrDeviceInUse = errors.New("this input device is already in use by another recorder")

// LogLine is one entry of a recorder's message log.
type LogLine struct {
	Time  time.Time `json:"time"`
	Text  string    `json:"text"`
	Error bool      `json:"error,omitempty"`
}

// FinalPhrase is delivered once per phrase when it becomes final.
type FinalPhrase struct {
	RecorderID string
	Speaker    string
	Language   string
	PhraseID   string
	Text       string
	Time       time.Time
}

// Presenter renders session state. All methods are called from the
// scheduler goroutine.
type Presenter interface {
	RecorderStatus(id string, status Status, message string)
	RecorderLog(id string, line LogLine)
	RecorderChanged(view RecorderView)
	RecorderRemoved(id string)
	Transcript(id string, entry Entry)
	Level(id string, level audio.Level)
	JoinState(id string, enabled bool)
	Notify(kind NoticeKind, message string)
}

// NopPresenter discards everything.
type NopPresenter struct{}

func (NopPresenter) RecorderStatus(string, Status, string) {}
func (NopPresenter) RecorderLog(string, LogLine)           {}
func (NopPresenter) RecorderChanged(RecorderView)          {}
func (NopPresenter) RecorderRemoved(string)                {}
func (NopPresenter) Transcript(string, Entry)              {}
func (NopPresenter) Level(string, audio.Level)             {}
func (NopPresenter) JoinState(string, bool)                {}
func (NopPresenter) Notify(NoticeKind, string)             {}

// Options are the tunables of a session.
type Options struct {
	Endpoint        string
	ConnectionCode  string
	ConnectTimeout  time.Duration
	GateInterval    time.Duration
	EndSessionGrace time.Duration
	Stream          audio.StreamConfig
	Framer          audio.FramerConfig
	TranscriptLimit int
	LogLimit        int

	// AutoJoin joins recorders as they are added unless their config says
	// otherwise.
	AutoJoin bool

	// ArchiveDir, when set, receives one WAV file per capture cycle with
	// every frame sent to the backend.
	ArchiveDir string
}

// DefaultOptions matches the production backend.
func DefaultOptions() Options {
	return Options{
		Endpoint:        "wss://dev-endpoint.wordly.ai/present",
		ConnectionCode:  "wordly-join-app",
		ConnectTimeout:  10 * time.Second,
		GateInterval:    time.Second,
		EndSessionGrace: 500 * time.Millisecond,
		Stream:          audio.DefaultStreamConfig(),
		Framer:          audio.DefaultFramerConfig(),
		TranscriptLimit: 50,
		LogLimit:        50,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Endpoint == "" {
		o.Endpoint = def.Endpoint
	}
	if o.ConnectionCode == "" {
		o.ConnectionCode = def.ConnectionCode
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.GateInterval <= 0 {
		o.GateInterval = def.GateInterval
	}
	if o.EndSessionGrace <= 0 {
		o.EndSessionGrace = def.EndSessionGrace
	}
	if o.Stream.SampleRate <= 0 {
		o.Stream.SampleRate = def.Stream.SampleRate
	}
	if o.Stream.BlockSize <= 0 {
		o.Stream.BlockSize = def.Stream.BlockSize
	}
	if o.TranscriptLimit <= 0 {
		o.TranscriptLimit = def.TranscriptLimit
	}
	if o.LogLimit <= 0 {
		o.LogLimit = def.LogLimit
	}
	return o
}

// Deps are the collaborators a session talks to.
type Deps struct {
	Scheduler loop.Scheduler
	Dialer    transport.Dialer
	Capturer  audio.Capturer
	Presenter Presenter
	Logger    *logrus.Logger
	Metrics   *metrics.Collector
	OnFinal   func(FinalPhrase)
}
