package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"captionjoin/internal/fault"
)

// Message types on the control channel.
const (
	TypeConnect    = "connect"
	TypeStart      = "start"
	TypeStop       = "stop"
	TypeDisconnect = "disconnect"

	TypeStatus = "status"
	TypeResult = "result"
	TypeEnd    = "end"
	TypeError  = "error"
	TypeEcho   = "echo"
)

// Connect opens a speaker stream within a presentation.
type Connect struct {
	Type             string          `json:"type"`
	PresentationCode string          `json:"presentationCode"`
	AccessKey        string          `json:"accessKey"`
	LanguageCode     string          `json:"languageCode"`
	SpeakerID        string          `json:"speakerId"`
	Name             string          `json:"name"`
	Context          json.RawMessage `json:"context"`
	ConnectionCode   string          `json:"connectionCode"`
}

// Start begins an utterance stream at the given sample rate.
type Start struct {
	Type         string `json:"type"`
	LanguageCode string `json:"languageCode"`
	SampleRate   int    `json:"sampleRate"`
}

type Stop struct {
	Type string `json:"type"`
}

// Disconnect leaves the presentation; End terminates it for everyone.
type Disconnect struct {
	Type string `json:"type"`
	End  bool   `json:"end"`
}

// EncodeConnect marshals a connect request. A nil context is sent as null.
func EncodeConnect(c Connect) ([]byte, error) {
	c.Type = TypeConnect
	if len(c.Context) == 0 {
		c.Context = nil
	}
	return json.Marshal(c)
}

func EncodeStart(language string, sampleRate int) ([]byte, error) {
	return json.Marshal(Start{Type: TypeStart, LanguageCode: language, SampleRate: sampleRate})
}

func EncodeStop() ([]byte, error) {
	return json.Marshal(Stop{Type: TypeStop})
}

func EncodeDisconnect(end bool) ([]byte, error) {
	return json.Marshal(Disconnect{Type: TypeDisconnect, End: end})
}

// Inbound is one decoded server message. Only the fields relevant to Type
// are populated.
type Inbound struct {
	Type string

	// status
	Success       bool
	Message       string
	ReservedUntil time.Time

	// result
	PhraseID string
	Text     string
	Final    bool
	Context  json.RawMessage
}

type wireInbound struct {
	Type          string          `json:"type"`
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	ReservedUntil json.RawMessage `json:"reservedUntil"`
	PhraseID      json.RawMessage `json:"phraseId"`
	Text          string          `json:"text"`
	Final         bool            `json:"final"`
	Context       json.RawMessage `json:"context"`
}

// Decode parses a server text frame. Unknown types decode successfully so
// the caller can log and ignore them.
func Decode(data []byte) (Inbound, error) {
	var w wireInbound
	if err := json.Unmarshal(data, &w); err != nil {
		return Inbound{}, fault.ProtocolErr("decode", "malformed server message", err)
	}
	if w.Type == "" {
		return Inbound{}, fault.ProtocolErr("decode", "server message without type", nil)
	}
	in := Inbound{
		Type:    w.Type,
		Success: w.Success,
		Message: w.Message,
		Text:    w.Text,
		Final:   w.Final,
	}
	switch w.Type {
	case TypeStatus:
		in.ReservedUntil = parseTime(w.ReservedUntil)
	case TypeResult:
		in.PhraseID = rawString(w.PhraseID)
		if in.PhraseID == "" {
			return Inbound{}, fault.ProtocolErr("decode", "result without phraseId", nil)
		}
		if !isNull(w.Context) {
			in.Context = append(json.RawMessage(nil), w.Context...)
		}
	}
	return in, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// rawString accepts either a JSON string or number.
func rawString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// parseTime accepts RFC 3339 strings or epoch milliseconds.
func parseTime(raw json.RawMessage) time.Time {
	if isNull(raw) {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
		return time.Time{}
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return time.UnixMilli(int64(n))
	}
	return time.Time{}
}
