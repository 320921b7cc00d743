package session

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"captionjoin/internal/audio"
	"captionjoin/internal/credentials"
	"captionjoin/internal/fault"
	"captionjoin/internal/loop"
	"captionjoin/internal/protocol"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrNotLoggedIn is returned by operations that need stored credentials.
var ErrNotLoggedIn = errors.New("not logged in to a session")

// Manager owns the recorders of one session. It keeps the credentials,
// enforces that no two connected recorders share an input device and runs
// the session-wide operations. All methods must run on deps.Scheduler.
type Manager struct {
	opts Options
	deps Deps
	log  *logrus.Entry

	creds     credentials.Credentials
	recorders []*Recorder
	devices   []audio.Device

	gate   loop.Timer
	ending *endSession
	closed bool
}

// NewManager builds a manager for creds. Nothing connects until recorders are
// added and joined.
func NewManager(creds credentials.Credentials, opts Options, deps Deps) (*Manager, error) {
	if deps.Scheduler == nil || deps.Dialer == nil || deps.Capturer == nil {
		return nil, errors.New("session: scheduler, dialer and capturer are required")
	}
	if deps.Presenter == nil {
		deps.Presenter = NopPresenter{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
		deps.Logger.SetOutput(io.Discard)
	}
	m := &Manager{
		opts: opts.withDefaults(),
		deps: deps,
		log:  deps.Logger.WithField("component", "session"),
	}
	if err := m.Login(creds); err != nil {
		return nil, err
	}
	m.RefreshDevices()
	return m, nil
}

// Login stores credentials. It re-activates a manager after DisconnectAll.
func (m *Manager) Login(creds credentials.Credentials) error {
	if !creds.Complete() {
		return fault.Validationf("Missing Session ID or Passcode")
	}
	m.creds = creds
	m.closed = false
	return nil
}

// Start arms the periodic device gate.
func (m *Manager) Start() {
	if m.gate != nil || m.closed {
		return
	}
	m.gate = m.deps.Scheduler.AfterFunc(m.opts.GateInterval, m.gateTick)
}

func (m *Manager) gateTick() {
	m.gate = nil
	if m.closed {
		return
	}
	m.refreshGate()
	m.Start()
}

func (m *Manager) stopGate() {
	if m.gate != nil {
		m.gate.Stop()
		m.gate = nil
	}
}

// Credentials returns the stored credentials.
func (m *Manager) Credentials() credentials.Credentials { return m.creds }

// Active reports whether the manager holds credentials.
func (m *Manager) Active() bool { return !m.closed && m.creds.Complete() }

// Options returns the effective options.
func (m *Manager) Options() Options { return m.opts }

// RefreshDevices re-reads the input device list.
func (m *Manager) RefreshDevices() []audio.Device {
	devices, err := m.deps.Capturer.Devices()
	if err != nil {
		m.log.Warnf("list input devices: %v", err)
		return m.devices
	}
	m.devices = devices
	return devices
}

// Devices returns the last known device list.
func (m *Manager) Devices() []audio.Device { return append([]audio.Device(nil), m.devices...) }

// DeviceName is the display name of a device id.
func (m *Manager) DeviceName(id string) string {
	if audio.NormalizeDeviceID(id) == "" {
		return "System Default"
	}
	for _, d := range m.devices {
		if d.ID == id {
			return d.Name
		}
	}
	return id
}

func (m *Manager) knownDevice(id string) bool {
	if audio.NormalizeDeviceID(id) == "" || audio.IsFileDevice(id) {
		return true
	}
	for _, d := range m.devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

// AddRecorder creates a recorder and joins it when configured to.
func (m *Manager) AddRecorder(cfg RecorderConfig) (*Recorder, error) {
	if !m.Active() {
		return nil, ErrNotLoggedIn
	}
	if cfg.DeviceID != "" && !m.knownDevice(cfg.DeviceID) {
		m.log.Warnf("input device %q not found, using system default", cfg.DeviceID)
		cfg.DeviceID = ""
	}
	id := "rec-" + uuid.NewString()[:8]
	r := newRecorder(m, id, "Speaker "+strconv.Itoa(len(m.recorders)+1), cfg)
	m.recorders = append(m.recorders, r)
	m.log.WithField("recorder", id).Infof("added %s", r.name)
	r.changed()
	m.refreshGate()

	join := m.opts.AutoJoin
	if cfg.Connected != nil {
		join = *cfg.Connected
	}
	if join {
		if err := r.Join(); err != nil {
			m.log.WithField("recorder", id).Warnf("join: %v", err)
		}
	}
	return r, nil
}

// Recorder returns the recorder with id.
func (m *Manager) Recorder(id string) (*Recorder, bool) {
	for _, r := range m.recorders {
		if r.id == id {
			return r, true
		}
	}
	return nil, false
}

// Find resolves ref as an id, a case-insensitive name or a 1-based index.
func (m *Manager) Find(ref string) (*Recorder, error) {
	ref = strings.TrimSpace(ref)
	if r, ok := m.Recorder(ref); ok {
		return r, nil
	}
	for _, r := range m.recorders {
		if strings.EqualFold(r.name, ref) {
			return r, nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(m.recorders) {
		return m.recorders[n-1], nil
	}
	return nil, fault.Validationf("no recorder %q", ref)
}

// Recorders returns the recorders in creation order.
func (m *Manager) Recorders() []*Recorder { return append([]*Recorder(nil), m.recorders...) }

// Remove tears the recorder down and forgets it.
func (m *Manager) Remove(ref string) error {
	r, err := m.Find(ref)
	if err != nil {
		return err
	}
	r.leave()
	for i, o := range m.recorders {
		if o == r {
			m.recorders = append(m.recorders[:i], m.recorders[i+1:]...)
			break
		}
	}
	m.deps.Presenter.RecorderRemoved(r.id)
	m.log.WithField("recorder", r.id).Infof("removed %s", r.name)
	m.statusChanged(nil)
	return nil
}

// MuteAll sets every recorder's mute flag.
func (m *Manager) MuteAll(v bool) {
	for _, r := range m.recorders {
		r.SetMuted(v)
	}
}

// AllMuted reports whether every recorder is muted. It is false with no
// recorders.
func (m *Manager) AllMuted() bool {
	if len(m.recorders) == 0 {
		return false
	}
	for _, r := range m.recorders {
		if !r.muted {
			return false
		}
	}
	return true
}

// CollapseAll collapses every recorder, or expands them all when they are
// already collapsed. It returns the new state.
func (m *Manager) CollapseAll() bool {
	all := len(m.recorders) > 0
	for _, r := range m.recorders {
		if !r.collapsed {
			all = false
			break
		}
	}
	for _, r := range m.recorders {
		r.SetCollapsed(!all)
	}
	return !all
}

// deviceInUse reports whether a recorder other than except streams from id.
func (m *Manager) deviceInUse(id string, except *Recorder) bool {
	for _, o := range m.recorders {
		if o == except {
			continue
		}
		if o.Status() == StatusConnected && o.conn.SocketOpen() && audio.SameDevice(o.deviceID, id) {
			return true
		}
	}
	return false
}

// refreshGate recomputes which idle recorders may join.
func (m *Manager) refreshGate() {
	for _, r := range m.recorders {
		if s := r.Status(); s == StatusConnected || s == StatusConnecting {
			continue
		}
		enabled := !m.deviceInUse(r.deviceID, r)
		if enabled == r.joinEnabled {
			continue
		}
		r.joinEnabled = enabled
		m.deps.Presenter.JoinState(r.id, enabled)
	}
}

func (m *Manager) statusChanged(*Recorder) {
	m.refreshGate()
	n := 0
	for _, r := range m.recorders {
		if r.Status() == StatusConnected {
			n++
		}
	}
	m.deps.Metrics.SetConnected(n)
}

func (m *Manager) notify(kind NoticeKind, msg string) {
	switch kind {
	case NoticeError:
		m.log.Warn(msg)
	default:
		m.log.Info(msg)
	}
	m.deps.Presenter.Notify(kind, msg)
}

// Snapshot returns a view of every recorder with at most tail transcript
// entries each.
func (m *Manager) Snapshot(tail int) []RecorderView {
	out := make([]RecorderView, 0, len(m.recorders))
	for _, r := range m.recorders {
		out = append(out, r.View(tail))
	}
	return out
}

// CapturePreset snapshots the recorder configuration.
func (m *Manager) CapturePreset() []RecorderConfig {
	out := make([]RecorderConfig, 0, len(m.recorders))
	for _, r := range m.recorders {
		out = append(out, r.config())
	}
	return out
}

// ApplyPreset replaces every recorder with cfgs. Recorders join unless their
// config says connected false.
func (m *Manager) ApplyPreset(cfgs []RecorderConfig) error {
	if !m.Active() {
		return ErrNotLoggedIn
	}
	m.teardown()
	for _, cfg := range cfgs {
		if cfg.Connected == nil {
			join := true
			cfg.Connected = &join
		}
		if _, err := m.AddRecorder(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) teardown() {
	for _, r := range m.recorders {
		r.leave()
		m.deps.Presenter.RecorderRemoved(r.id)
	}
	m.recorders = nil
	m.statusChanged(nil)
}

// DisconnectAll closes every recorder, forgets them and clears the
// credentials.
func (m *Manager) DisconnectAll() {
	if m.ending != nil {
		m.ending.cancel()
		m.ending = nil
	}
	m.teardown()
	m.stopGate()
	m.creds = credentials.Credentials{}
	m.closed = true
	m.notify(NoticeSuccess, "Disconnected from session")
}

// EndForAll ends the presentation for every participant. It reuses an open
// recorder connection when there is one, otherwise it opens a temporary
// connection just to send the request.
func (m *Manager) EndForAll() error {
	if !m.creds.Complete() {
		m.notify(NoticeError, "Cannot end session: Missing session credentials")
		return fault.Validationf("Cannot end session: Missing session credentials")
	}
	if m.ending != nil {
		m.notify(NoticeInfo, "Ending session already in progress")
		return nil
	}
	var active *Recorder
	for _, r := range m.recorders {
		if r.conn.SocketOpen() {
			active = r
			break
		}
	}
	if active == nil {
		return m.endViaTemporary()
	}
	if err := active.conn.SendDisconnect(true); err != nil {
		m.log.Errorf("end session: %v", err)
		m.notify(NoticeError, "Failed to end session. Please try again.")
		return fault.ConnectionErr("end session", "could not send request", err)
	}
	for _, r := range m.recorders {
		if r.conn.SocketOpen() {
			r.stopCapture()
			r.conn.Abort("Session ended")
		}
	}
	m.notify(NoticeSuccess, "Session ended for all participants")
	m.DisconnectAll()
	return nil
}

func (m *Manager) endViaTemporary() error {
	e := &endSession{m: m}
	e.conn = newConnection(&m.opts, &m.deps, e, m.log.WithField("recorder", tempSpeakerID), false)
	m.ending = e
	if err := e.conn.Open(m.creds, Identity{
		SpeakerID: tempSpeakerID,
		Name:      "Session Controller",
		Language:  "en",
	}); err != nil {
		e.fail(fault.Reason(err))
		return err
	}
	return nil
}

const tempSpeakerID = "temp-end-session"

// endSession drives the throwaway connection used when no recorder is
// connected. Its failures never touch recorder state.
type endSession struct {
	m     *Manager
	conn  *Connection
	timer loop.Timer
	sent  bool
	done  bool
}

func (e *endSession) stateChanged(to Status, line string, isError bool) {
	if e.done {
		return
	}
	switch to {
	case StatusConnected:
		if err := e.conn.SendDisconnect(true); err != nil {
			e.fail(err.Error())
			return
		}
		e.sent = true
		e.timer = e.m.deps.Scheduler.AfterFunc(e.m.opts.EndSessionGrace, e.finish)
	case StatusConnecting:
	default:
		if e.sent {
			e.finish()
			return
		}
		e.fail(line)
	}
}

func (e *endSession) finish() {
	if e.done {
		return
	}
	e.done = true
	if e.timer != nil {
		e.timer.Stop()
	}
	e.conn.Abort("Session ended")
	if e.m.ending == e {
		e.m.ending = nil
	}
	e.m.notify(NoticeSuccess, "Session ended for all participants")
	e.m.DisconnectAll()
}

func (e *endSession) fail(reason string) {
	if e.done {
		return
	}
	e.done = true
	if e.timer != nil {
		e.timer.Stop()
	}
	e.conn.Abort("End session failed")
	if e.m.ending == e {
		e.m.ending = nil
	}
	e.m.notify(NoticeError, fmt.Sprintf("Failed to end session: %s", reason))
}

func (e *endSession) cancel() {
	e.done = true
	if e.timer != nil {
		e.timer.Stop()
	}
	e.conn.Abort("Cancelled")
}

func (e *endSession) streamReady()   {}
func (e *endSession) streamStopped() {}

func (e *endSession) resultReceived(protocol.Inbound) {}

func (e *endSession) logLine(text string, isError bool) {
	e.m.log.WithField("recorder", tempSpeakerID).Debug(text)
}
