package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"captionjoin/internal/audio"
	"captionjoin/internal/credentials"
	"captionjoin/internal/loop"
	"captionjoin/internal/transport"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	sockets []*fakeSocket
	err     error
}

func (d *fakeDialer) Open(_ context.Context, url string, h transport.Handler) (transport.Socket, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeSocket{url: url, h: h, state: transport.Connecting}
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) last(t *testing.T) *fakeSocket {
	t.Helper()
	require.NotEmpty(t, d.sockets, "no socket dialed")
	return d.sockets[len(d.sockets)-1]
}

type fakeSocket struct {
	url         string
	h           transport.Handler
	state       transport.ReadyState
	text        []string
	binary      [][]byte
	closeCode   int
	closeReason string
	sendErr     error
}

func (s *fakeSocket) State() transport.ReadyState { return s.state }

func (s *fakeSocket) SendText(data []byte) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	if s.state != transport.Open {
		return errors.New("socket not open")
	}
	s.text = append(s.text, string(data))
	return nil
}

func (s *fakeSocket) SendBinary(data []byte) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	if s.state != transport.Open {
		return errors.New("socket not open")
	}
	s.binary = append(s.binary, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) Close(code int, reason string) error {
	if s.state == transport.Closed {
		return nil
	}
	s.state = transport.Closed
	s.closeCode = code
	s.closeReason = reason
	s.h.OnClose(code, reason, true)
	return nil
}

func (s *fakeSocket) open() {
	s.state = transport.Open
	s.h.OnOpen()
}

func (s *fakeSocket) deliver(msg string) { s.h.OnText([]byte(msg)) }

// drop simulates the server going away.
func (s *fakeSocket) drop(code int, clean bool) {
	s.state = transport.Closed
	s.h.OnClose(code, "", clean)
}

// sentTypes returns the type field of every text message sent.
func (s *fakeSocket) sentTypes() []string {
	out := make([]string, 0, len(s.text))
	for _, t := range s.text {
		var m struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(t), &m)
		out = append(out, m.Type)
	}
	return out
}

func (s *fakeSocket) sent(i int) map[string]any {
	var m map[string]any
	_ = json.Unmarshal([]byte(s.text[i]), &m)
	return m
}

type fakeCapturer struct {
	devices []audio.Device
	streams []*fakeStream
	openErr error
}

func (c *fakeCapturer) Devices() ([]audio.Device, error) { return c.devices, nil }

func (c *fakeCapturer) Open(id string, _ audio.StreamConfig, onBlock func([]float32)) (audio.Stream, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	s := &fakeStream{id: id, onBlock: onBlock}
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *fakeCapturer) live() []*fakeStream {
	var out []*fakeStream
	for _, s := range c.streams {
		if !s.closed {
			out = append(out, s)
		}
	}
	return out
}

type fakeStream struct {
	id      string
	onBlock func([]float32)
	closed  bool
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func (s *fakeStream) push(v float32, n int) {
	block := make([]float32, n)
	for i := range block {
		block[i] = v
	}
	s.onBlock(block)
}

type notice struct {
	kind NoticeKind
	msg  string
}

type recordingPresenter struct {
	NopPresenter
	notices  []notice
	statuses map[string][]Status
	join     map[string]bool
	removed  []string
	entries  []Entry
}

func newRecordingPresenter() *recordingPresenter {
	return &recordingPresenter{statuses: map[string][]Status{}, join: map[string]bool{}}
}

func (p *recordingPresenter) RecorderStatus(id string, s Status, _ string) {
	p.statuses[id] = append(p.statuses[id], s)
}
func (p *recordingPresenter) JoinState(id string, enabled bool) { p.join[id] = enabled }
func (p *recordingPresenter) Notify(k NoticeKind, msg string) {
	p.notices = append(p.notices, notice{k, msg})
}
func (p *recordingPresenter) RecorderRemoved(id string) { p.removed = append(p.removed, id) }
func (p *recordingPresenter) Transcript(_ string, e Entry) {
	p.entries = append(p.entries, e)
}

func (p *recordingPresenter) lastNotice() notice {
	if len(p.notices) == 0 {
		return notice{}
	}
	return p.notices[len(p.notices)-1]
}

type harness struct {
	sched  *loop.Manual
	dialer *fakeDialer
	cap    *fakeCapturer
	pres   *recordingPresenter
	finals []FinalPhrase
	m      *Manager
}

var testCreds = credentials.Credentials{SessionID: "ABCD-1234", Passcode: "secret"}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sched:  loop.NewManual(),
		dialer: &fakeDialer{},
		cap: &fakeCapturer{devices: []audio.Device{
			{ID: "USB Mic", Name: "USB Mic", Channels: 1},
			{ID: "Headset", Name: "Headset", Channels: 1},
		}},
		pres: newRecordingPresenter(),
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m, err := NewManager(testCreds, Options{}, Deps{
		Scheduler: h.sched,
		Dialer:    h.dialer,
		Capturer:  h.cap,
		Presenter: h.pres,
		Logger:    logger,
		OnFinal:   func(p FinalPhrase) { h.finals = append(h.finals, p) },
	})
	require.NoError(t, err)
	h.m = m
	return h
}

func (h *harness) add(t *testing.T, cfg RecorderConfig) *Recorder {
	t.Helper()
	r, err := h.m.AddRecorder(cfg)
	require.NoError(t, err)
	h.sched.Drain()
	return r
}

// connect joins r and completes the handshake on a fresh socket.
func (h *harness) connect(t *testing.T, r *Recorder) *fakeSocket {
	t.Helper()
	require.NoError(t, r.Join())
	s := h.dialer.last(t)
	s.open()
	h.sched.Drain()
	s.deliver(`{"type":"status","success":true}`)
	h.sched.Drain()
	require.Equal(t, StatusConnected, r.Status())
	return s
}
