package session

import (
	"context"
	"encoding/json"
	"fmt"

	"captionjoin/internal/audio"
	"captionjoin/internal/credentials"
	"captionjoin/internal/fault"
	"captionjoin/internal/loop"
	"captionjoin/internal/protocol"
	"captionjoin/internal/transport"

	"github.com/sirupsen/logrus"
)

// Identity is what a connection announces in its connect request.
type Identity struct {
	SpeakerID string
	Name      string
	Language  string
	Context   json.RawMessage
}

// connectionEvents is implemented by whatever owns a Connection.
type connectionEvents interface {
	stateChanged(to Status, line string, isError bool)
	streamReady()
	streamStopped()
	resultReceived(in protocol.Inbound)
	logLine(text string, isError bool)
}

// Connection is the socket state machine of one speaker. It owns at most one
// transport socket at a time. All methods must run on the scheduler.
type Connection struct {
	opts  *Options
	deps  *Deps
	owner connectionEvents
	log   *logrus.Entry

	// autoStart sends start and begins streaming once the handshake succeeds.
	autoStart bool

	state     Status
	creds     credentials.Credentials
	identity  Identity
	sock      transport.Socket
	timer     loop.Timer
	gen       int
	startSent bool
}

func newConnection(opts *Options, deps *Deps, owner connectionEvents, log *logrus.Entry, autoStart bool) *Connection {
	return &Connection{
		opts:      opts,
		deps:      deps,
		owner:     owner,
		log:       log,
		autoStart: autoStart,
		state:     StatusIdle,
	}
}

// State returns the connection state.
func (c *Connection) State() Status { return c.state }

// SocketOpen reports whether the transport is open.
func (c *Connection) SocketOpen() bool {
	return c.sock != nil && c.sock.State() == transport.Open
}

// Busy reports whether a join must be refused.
func (c *Connection) Busy() bool {
	if c.state == StatusConnecting {
		return true
	}
	return c.sock != nil && c.sock.State() != transport.Closed
}

func (c *Connection) transition(to Status, line string, isError bool) {
	c.state = to
	c.deps.Metrics.Transition(string(to))
	c.owner.stateChanged(to, line, isError)
}

// Open starts a connection attempt.
func (c *Connection) Open(creds credentials.Credentials, id Identity) error {
	if !creds.Complete() {
		c.transition(StatusError, "Missing Session ID or Passcode", true)
		return fault.Validationf("Missing Session ID or Passcode")
	}
	if c.Busy() {
		return nil
	}
	c.creds = creds
	c.identity = id
	c.startSent = false
	c.gen++
	gen := c.gen
	c.transition(StatusConnecting, "Connecting to session...", false)
	c.timer = c.deps.Scheduler.AfterFunc(c.opts.ConnectTimeout, func() { c.handleTimeout(gen) })

	sock, err := c.deps.Dialer.Open(context.Background(), c.opts.Endpoint, &socketEvents{c: c, gen: gen})
	if err != nil {
		c.release()
		c.transition(StatusError, "Connection error: "+err.Error(), true)
		return fault.ConnectionErr("open", "could not start connection", err)
	}
	c.sock = sock
	c.log.Debugf("dialing %s", c.opts.Endpoint)
	return nil
}

// release forgets the current socket so late events from it are ignored.
func (c *Connection) release() {
	c.stopTimer()
	c.sock = nil
	c.gen++
}

func (c *Connection) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Connection) closeSocket(code int, reason string) {
	if c.sock == nil {
		return
	}
	if err := c.sock.Close(code, reason); err != nil {
		c.log.Debugf("close socket: %v", err)
	}
}

func (c *Connection) sendJSON(data []byte, err error) error {
	if err != nil {
		return err
	}
	if c.sock == nil {
		return fmt.Errorf("no socket")
	}
	return c.sock.SendText(data)
}

func (c *Connection) handleOpen() {
	c.log.Debug("websocket open, sending connect")
	err := c.sendJSON(protocol.EncodeConnect(protocol.Connect{
		PresentationCode: c.creds.SessionID,
		AccessKey:        c.creds.Passcode,
		LanguageCode:     c.identity.Language,
		SpeakerID:        c.identity.SpeakerID,
		Name:             c.identity.Name,
		Context:          c.identity.Context,
		ConnectionCode:   c.opts.ConnectionCode,
	}))
	if err != nil {
		c.log.Errorf("send connect: %v", err)
		c.closeSocket(transport.CloseInternal, "Send failed")
		c.release()
		c.owner.streamStopped()
		c.transition(StatusError, "Connection error", true)
	}
}

func (c *Connection) handleText(data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		c.deps.Metrics.ProtocolError()
		c.log.Warnf("dropping server message: %v", err)
		return
	}
	switch in.Type {
	case protocol.TypeStatus:
		c.handleStatus(in)
	case protocol.TypeResult:
		c.deps.Metrics.Result(in.Final)
		c.owner.resultReceived(in)
	case protocol.TypeEnd:
		c.closeSocket(transport.CloseNormal, "Presentation ended")
		c.release()
		c.owner.streamStopped()
		c.transition(StatusEnded, "The presentation has ended.", false)
	case protocol.TypeError:
		msg := in.Message
		if msg == "" {
			msg = "Unknown error"
		}
		c.transition(StatusError, "Error: "+msg, true)
	case protocol.TypeEcho:
		c.log.Debug("echo")
	default:
		c.log.Warnf("ignoring unknown message type %q", in.Type)
	}
}

func (c *Connection) handleStatus(in protocol.Inbound) {
	c.stopTimer()
	if !in.Success {
		msg := in.Message
		if msg == "" {
			msg = "Connection failed"
		}
		c.closeSocket(transport.CloseNormal, "Connection failed")
		c.release()
		c.owner.streamStopped()
		c.transition(StatusError, "Connection error: "+msg, true)
		return
	}
	if c.state != StatusConnected {
		c.transition(StatusConnected, "Connected to session", false)
	}
	if !in.ReservedUntil.IsZero() {
		c.owner.logLine("Session reserved until "+in.ReservedUntil.Local().Format("15:04:05"), false)
	}
	if !c.autoStart || c.startSent || !c.SocketOpen() {
		return
	}
	c.startSent = true
	if err := c.sendJSON(protocol.EncodeStart(c.identity.Language, c.opts.Stream.SampleRate)); err != nil {
		c.log.Errorf("send start: %v", err)
		return
	}
	c.owner.streamReady()
}

func (c *Connection) handleClose(code int, reason string, clean bool) {
	c.release()
	c.owner.streamStopped()
	c.log.Infof("websocket closed (code %d, reason %q, clean %v)", code, reason, clean)
	if c.state == StatusError {
		return
	}
	if clean || code == transport.CloseNormal {
		c.transition(StatusDisconnected, fmt.Sprintf("Disconnected from session (Code: %d)", code), false)
		return
	}
	c.transition(StatusError, fmt.Sprintf("Connection lost (Code: %d)", code), true)
}

func (c *Connection) handleError(err error) {
	c.log.Warnf("websocket error: %v", err)
	c.closeSocket(transport.CloseInternal, "Transport error")
	c.release()
	c.owner.streamStopped()
	c.transition(StatusError, "Connection error", true)
}

func (c *Connection) handleTimeout(gen int) {
	if gen != c.gen || c.state != StatusConnecting {
		return
	}
	c.log.Warn(fault.TimeoutErr("connect", "no reply within "+c.opts.ConnectTimeout.String()))
	c.closeSocket(transport.CloseNormal, "Connection timeout")
	c.release()
	c.owner.streamStopped()
	c.transition(StatusError, "Connection timed out", true)
}

// SendFrame writes one audio frame. Frames are dropped unless connected, and
// a frame that fails to send is dropped without retry.
func (c *Connection) SendFrame(f audio.Frame) bool {
	if !c.Streaming() {
		return false
	}
	if err := c.sock.SendBinary(f.PCM); err != nil {
		c.deps.Metrics.FrameError()
		c.log.Debugf("drop %s frame: %v", f.Kind, err)
		return false
	}
	c.deps.Metrics.FrameSent(f.Kind.String())
	return true
}

// Streaming reports whether the handshake completed on an open socket.
func (c *Connection) Streaming() bool {
	return c.state == StatusConnected && c.SocketOpen()
}

// SetLanguage changes the language announced by the next connect or start.
func (c *Connection) SetLanguage(language string) { c.identity.Language = language }

// Restart ends the current utterance stream and starts a new one in
// language. It fails unless streaming.
func (c *Connection) Restart(language string) error {
	c.SetLanguage(language)
	if !c.Streaming() {
		return fault.ConnectionErr("restart", "not connected", nil)
	}
	if err := c.sendJSON(protocol.EncodeStop()); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}
	if err := c.sendJSON(protocol.EncodeStart(language, c.opts.Stream.SampleRate)); err != nil {
		return fmt.Errorf("send start: %w", err)
	}
	return nil
}

// SendDisconnect asks the backend to drop this speaker, or with end set, to
// end the presentation for everyone.
func (c *Connection) SendDisconnect(end bool) error {
	if !c.SocketOpen() {
		return fault.ConnectionErr("disconnect", "not connected", nil)
	}
	return c.sendJSON(protocol.EncodeDisconnect(end))
}

// Leave disconnects. An open socket gets a disconnect request and a normal
// close; otherwise the state simply becomes disconnected.
func (c *Connection) Leave(reason string) {
	if c.SocketOpen() {
		if err := c.SendDisconnect(false); err != nil {
			c.log.Debugf("send disconnect: %v", err)
		}
	}
	c.shutdown(reason, StatusDisconnected, "Left the session", false)
}

// Abort closes without a disconnect request.
func (c *Connection) Abort(reason string) {
	c.shutdown(reason, StatusDisconnected, "Left the session", false)
}

// Fail tears down like Leave but ends in error with line as the reason.
func (c *Connection) Fail(line string) {
	if c.SocketOpen() {
		if err := c.SendDisconnect(false); err != nil {
			c.log.Debugf("send disconnect: %v", err)
		}
	}
	c.shutdown("Recording error", StatusError, line, true)
}

func (c *Connection) shutdown(reason string, to Status, line string, isError bool) {
	c.closeSocket(transport.CloseNormal, reason)
	c.release()
	c.owner.streamStopped()
	if to == StatusDisconnected && (c.state == StatusDisconnected || c.state == StatusIdle) {
		return
	}
	c.transition(to, line, isError)
}

// socketEvents hops transport callbacks onto the scheduler and drops events
// from sockets the connection has already released.
type socketEvents struct {
	c   *Connection
	gen int
}

func (h *socketEvents) post(fn func()) {
	h.c.deps.Scheduler.Post(func() {
		if h.gen != h.c.gen {
			return
		}
		fn()
	})
}

func (h *socketEvents) OnOpen() { h.post(h.c.handleOpen) }

func (h *socketEvents) OnText(data []byte) { h.post(func() { h.c.handleText(data) }) }

func (h *socketEvents) OnClose(code int, reason string, clean bool) {
	h.post(func() { h.c.handleClose(code, reason, clean) })
}

func (h *socketEvents) OnError(err error) { h.post(func() { h.c.handleError(err) }) }
