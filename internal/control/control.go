package control

import (
	"time"

	"captionjoin/internal/session"
)

// Request is one line sent to the daemon's control socket.
type Request struct {
	Op       string `json:"op"`
	Recorder string `json:"recorder,omitempty"`
	Value    string `json:"value,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"`
	Force    bool   `json:"force,omitempty"`
	Tail     int    `json:"tail,omitempty"`

	// add
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
	Device   string `json:"device,omitempty"`

	// login
	SessionID string `json:"session_id,omitempty"`
	Passcode  string `json:"passcode,omitempty"`
}

type Status struct {
	Running     bool                   `json:"running"`
	UptimeSec   float64                `json:"uptime_sec"`
	LoggedIn    bool                   `json:"logged_in"`
	SessionID   string                 `json:"session_id,omitempty"`
	AllMuted    bool                   `json:"all_muted"`
	Recorders   []session.RecorderView `json:"recorders"`
	Transcripts []Transcript           `json:"transcripts"`
	Notices     []Notice               `json:"notices,omitempty"`
	Levels      map[string]int         `json:"levels,omitempty"` // meter bars by recorder id
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type Transcript struct {
	Speaker   string    `json:"speaker"`
	Language  string    `json:"language"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Notice is a session-wide notification kept for status replies.
type Notice struct {
	Kind      session.NoticeKind `json:"kind"`
	Message   string             `json:"message"`
	Timestamp time.Time          `json:"timestamp"`
}
