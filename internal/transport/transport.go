package transport

import "context"

// ReadyState mirrors the lifecycle of a duplex socket.
type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "closed"
	}
}

// Close codes used by the client.
const (
	CloseNormal   = 1000
	CloseInternal = 1011
	CloseAbnormal = 1006
)

// Handler receives socket events. Implementations are called from transport
// goroutines and must hand work off to their own scheduler.
type Handler interface {
	OnOpen()
	OnText(data []byte)
	OnClose(code int, reason string, clean bool)
	OnError(err error)
}

// Socket is one connection attempt. Sends are valid only while Open.
type Socket interface {
	SendText(data []byte) error
	SendBinary(data []byte) error
	// Close starts a closing handshake, or abandons a pending dial.
	Close(code int, reason string) error
	State() ReadyState
}

// Dialer starts connection attempts. Open returns immediately; the outcome
// is reported through h.
type Dialer interface {
	Open(ctx context.Context, url string, h Handler) (Socket, error)
}
