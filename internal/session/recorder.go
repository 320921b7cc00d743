package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"captionjoin/internal/audio"
	"captionjoin/internal/fault"
	"captionjoin/internal/language"
	"captionjoin/internal/protocol"

	"github.com/sirupsen/logrus"
)

// RecorderConfig seeds a new recorder. Connected nil means "use the
// manager's auto-join setting".
type RecorderConfig struct {
	Name      string
	Language  string
	DeviceID  string
	Muted     bool
	Collapsed bool
	Connected *bool
}

// RecorderView is a read-only snapshot for rendering and status replies.
type RecorderView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Language    string    `json:"language"`
	LanguageTag string    `json:"language_name"`
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	Status      Status    `json:"status"`
	Muted       bool      `json:"muted"`
	Collapsed   bool      `json:"collapsed"`
	JoinEnabled bool      `json:"join_enabled"`
	Capturing   bool      `json:"capturing"`
	Transcript  []Entry   `json:"transcript,omitempty"`
	Log         []LogLine `json:"log,omitempty"`
}

// Recorder is one speaker: an input device, a language and a connection.
// All methods must run on the manager's scheduler.
type Recorder struct {
	m   *Manager
	log *logrus.Entry

	id          string
	name        string
	defaultName string
	language    string
	deviceID    string
	muted       bool
	collapsed   bool
	joinEnabled bool
	context     json.RawMessage

	conn       *Connection
	framer     *audio.Framer
	meter      *audio.LevelMeter
	stream     audio.Stream
	captureGen int
	archive    *audio.Archive

	transcript *Transcript
	lines      []LogLine
}

func newRecorder(m *Manager, id, defaultName string, cfg RecorderConfig) *Recorder {
	r := &Recorder{
		m:           m,
		id:          id,
		defaultName: defaultName,
		name:        strings.TrimSpace(cfg.Name),
		language:    cfg.Language,
		deviceID:    cfg.DeviceID,
		muted:       cfg.Muted,
		collapsed:   cfg.Collapsed,
		joinEnabled: true,
		transcript:  NewTranscript(m.opts.TranscriptLimit),
		log:         m.deps.Logger.WithField("recorder", id),
	}
	if r.name == "" {
		r.name = defaultName
	}
	if !language.Valid(r.language) {
		r.language = language.Default
	}
	r.framer = audio.NewFramer(m.opts.Framer, r.sendFrame)
	r.framer.SetMuted(r.muted)
	r.meter = audio.NewLevelMeter(m.opts.Stream.SampleRate)
	r.conn = newConnection(&m.opts, &m.deps, r, r.log, true)
	return r
}

func (r *Recorder) ID() string               { return r.id }
func (r *Recorder) Name() string             { return r.name }
func (r *Recorder) Language() string         { return r.language }
func (r *Recorder) DeviceID() string         { return r.deviceID }
func (r *Recorder) Muted() bool              { return r.muted }
func (r *Recorder) Collapsed() bool          { return r.collapsed }
func (r *Recorder) JoinEnabled() bool        { return r.joinEnabled }
func (r *Recorder) Capturing() bool          { return r.stream != nil }
func (r *Recorder) Context() json.RawMessage { return r.context }
func (r *Recorder) Transcript() *Transcript  { return r.transcript }
func (r *Recorder) Connection() *Connection  { return r.conn }
func (r *Recorder) Log() []LogLine           { return append([]LogLine(nil), r.lines...) }
func (r *Recorder) Config() RecorderConfig   { return r.config() }
func (r *Recorder) String() string           { return fmt.Sprintf("%s (%s)", r.name, r.id) }

// Status maps the connection state onto the recorder's visible status.
func (r *Recorder) Status() Status {
	if s := r.conn.State(); s != StatusIdle {
		return s
	}
	return StatusDisconnected
}

func (r *Recorder) config() RecorderConfig {
	connected := r.Status() == StatusConnected || r.Status() == StatusConnecting
	return RecorderConfig{
		Name:      r.name,
		Language:  r.language,
		DeviceID:  r.deviceID,
		Muted:     r.muted,
		Collapsed: r.collapsed,
		Connected: &connected,
	}
}

// View snapshots the recorder with at most tail transcript entries.
func (r *Recorder) View(tail int) RecorderView {
	lines := r.lines
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return RecorderView{
		ID:          r.id,
		Name:        r.name,
		Language:    r.language,
		LanguageTag: language.Name(r.language),
		DeviceID:    r.deviceID,
		DeviceName:  r.m.DeviceName(r.deviceID),
		Status:      r.Status(),
		Muted:       r.muted,
		Collapsed:   r.collapsed,
		JoinEnabled: r.joinEnabled,
		Capturing:   r.stream != nil,
		Transcript:  r.transcript.Recent(tail),
		Log:         append([]LogLine(nil), lines...),
	}
}

func (r *Recorder) appendLog(text string, isError bool) {
	line := LogLine{Time: r.m.deps.Scheduler.Now(), Text: text, Error: isError}
	r.lines = append(r.lines, line)
	if over := len(r.lines) - r.m.opts.LogLimit; over > 0 {
		r.lines = append(r.lines[:0], r.lines[over:]...)
	}
	r.m.deps.Presenter.RecorderLog(r.id, line)
}

func (r *Recorder) changed() {
	r.m.deps.Presenter.RecorderChanged(r.View(0))
}

// Join connects the recorder to the session.
func (r *Recorder) Join() error {
	if r.conn.Busy() {
		msg := "Connection already in progress"
		if r.conn.State() == StatusConnected {
			msg = "Already connected to session"
		}
		r.m.notify(NoticeInfo, r.name+": "+msg)
		return nil
	}
	r.m.refreshGate()
	if !r.joinEnabled {
		r.m.notify(NoticeError, fmt.Sprintf("%s: input device %s is already in use", r.name, r.m.DeviceName(r.deviceID)))
		return ErrDeviceInUse
	}
	r.context = nil
	return r.conn.Open(r.m.creds, Identity{
		SpeakerID: r.id,
		Name:      r.name,
		Language:  r.language,
		Context:   r.context,
	})
}

// Leave disconnects and tells the operator.
func (r *Recorder) Leave() {
	if !r.conn.Busy() && r.Status() == StatusDisconnected {
		r.m.notify(NoticeInfo, r.name+": Not connected to session")
		return
	}
	r.leave()
	r.m.notify(NoticeSuccess, r.name+": Left the session")
}

// leave is the silent variant used for teardown.
func (r *Recorder) leave() {
	r.stopCapture()
	r.conn.Leave("Left session")
}

// ToggleMute flips the mute gate and returns the new value.
func (r *Recorder) ToggleMute() bool {
	r.SetMuted(!r.muted)
	return r.muted
}

// SetMuted gates frame emission.
func (r *Recorder) SetMuted(v bool) {
	if r.muted == v {
		return
	}
	r.muted = v
	r.framer.SetMuted(v)
	if v {
		r.appendLog("Audio muted", false)
	} else {
		r.appendLog("Audio unmuted", false)
	}
	r.changed()
}

// SetCollapsed toggles the display-only collapsed flag.
func (r *Recorder) SetCollapsed(v bool) {
	if r.collapsed == v {
		return
	}
	r.collapsed = v
	r.changed()
}

// SetName renames the recorder. Blank names fall back to the default.
func (r *Recorder) SetName(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.defaultName
	}
	if name == r.name {
		return
	}
	r.name = name
	r.changed()
}

// SetLanguage switches the captioning language, restarting the utterance
// stream when connected.
func (r *Recorder) SetLanguage(code string) error {
	if !language.Valid(code) {
		return fault.Validationf("unknown language %q", code)
	}
	if code == r.language {
		return nil
	}
	r.language = code
	if !r.conn.Streaming() {
		r.conn.SetLanguage(code)
		r.changed()
		return nil
	}
	r.stopCapture()
	if err := r.conn.Restart(code); err != nil {
		r.log.Errorf("language restart: %v", err)
		r.appendLog("Failed to change language: "+err.Error(), true)
		r.changed()
		return fault.ConnectionErr("set language", "could not restart stream", err)
	}
	if err := r.startCapture(); err != nil {
		r.log.Errorf("language restart: %v", err)
		r.changed()
		return err
	}
	r.appendLog("Language changed to "+language.Name(code)+".", false)
	r.changed()
	return nil
}

// SetDevice switches input device, restarting capture when streaming. A
// failed reopen leaves the recorder in error and is returned.
func (r *Recorder) SetDevice(id string) error {
	id = strings.TrimSpace(id)
	if id == r.deviceID {
		return nil
	}
	r.deviceID = id
	r.appendLog("Input device changed to: "+r.m.DeviceName(id), false)
	var err error
	if r.stream != nil {
		r.stopCapture()
		if r.conn.State() == StatusConnected {
			if err = r.startCapture(); err != nil {
				r.log.Errorf("device change: %v", err)
			}
		}
	}
	r.changed()
	r.m.refreshGate()
	return err
}

// startCapture opens the input device. On failure the connection is torn
// down into error before the capture fault is returned.
func (r *Recorder) startCapture() error {
	if r.stream != nil {
		return nil
	}
	r.framer.Reset()
	r.captureGen++
	gen := r.captureGen
	sched := r.m.deps.Scheduler
	stream, err := r.m.deps.Capturer.Open(r.deviceID, r.m.opts.Stream, func(block []float32) {
		if !sched.TryPost(func() { r.onBlock(gen, block) }) {
			r.m.deps.Metrics.BlockDropped()
		}
	})
	if err != nil {
		reason := fault.Reason(err)
		r.conn.Fail("Recording error: " + reason)
		return fault.CaptureErr("open input", reason, err)
	}
	r.stream = stream
	r.openArchive()
	r.log.Infof("capturing from %s", r.m.DeviceName(r.deviceID))
	return nil
}

func (r *Recorder) openArchive() {
	dir := r.m.opts.ArchiveDir
	if dir == "" {
		return
	}
	name := fmt.Sprintf("%s-%s", r.id, r.m.deps.Scheduler.Now().Format("20060102-150405"))
	a, err := audio.CreateArchive(dir, name, r.m.opts.Stream.SampleRate)
	if err != nil {
		r.log.Warnf("audio archive disabled: %v", err)
		return
	}
	r.archive = a
}

func (r *Recorder) stopCapture() {
	if r.stream == nil {
		return
	}
	r.captureGen++
	if err := r.stream.Close(); err != nil {
		r.log.Warnf("close capture: %v", err)
	}
	r.stream = nil
	r.framer.Reset()
	if r.archive != nil {
		if err := r.archive.Close(); err != nil {
			r.log.Warnf("close archive: %v", err)
		}
		r.archive = nil
	}
	r.m.deps.Presenter.Level(r.id, audio.Level{})
}

func (r *Recorder) onBlock(gen int, block []float32) {
	if gen != r.captureGen || r.stream == nil {
		return
	}
	r.m.deps.Presenter.Level(r.id, r.meter.Push(block))
	r.framer.Push(block)
}

func (r *Recorder) sendFrame(f audio.Frame) {
	if r.muted {
		return
	}
	if r.conn.SendFrame(f) && r.archive != nil {
		if err := r.archive.Write(f); err != nil {
			r.log.Warnf("archive write: %v", err)
		}
	}
}

// connectionEvents

func (r *Recorder) stateChanged(to Status, line string, isError bool) {
	r.appendLog(line, isError)
	r.m.deps.Presenter.RecorderStatus(r.id, r.Status(), line)
	r.m.statusChanged(r)
}

func (r *Recorder) streamReady() {
	if err := r.startCapture(); err != nil {
		r.log.Errorf("capture: %v", err)
	}
}

func (r *Recorder) streamStopped() { r.stopCapture() }

func (r *Recorder) logLine(text string, isError bool) { r.appendLog(text, isError) }

func (r *Recorder) resultReceived(in protocol.Inbound) {
	if len(in.Context) > 0 {
		r.context = in.Context
	}
	now := r.m.deps.Scheduler.Now()
	entry, becameFinal := r.transcript.Apply(in.PhraseID, r.name, in.Text, in.Final, now)
	r.m.deps.Presenter.Transcript(r.id, entry)
	if becameFinal && r.m.deps.OnFinal != nil {
		r.m.deps.OnFinal(FinalPhrase{
			RecorderID: r.id,
			Speaker:    entry.Speaker,
			Language:   r.language,
			PhraseID:   entry.PhraseID,
			Text:       entry.Text,
			Time:       now,
		})
	}
}
