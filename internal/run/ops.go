package run

import (
	"context"
	"fmt"
	"time"

	"captionjoin/internal/audio"
	"captionjoin/internal/control"
	"captionjoin/internal/credentials"
	"captionjoin/internal/fault"
	"captionjoin/internal/preset"
	"captionjoin/internal/session"
)

// handle answers one control request. Everything except health runs on the
// loop.
func (s *Server) handle(ctx context.Context, req control.Request) any {
	if req.Op == "health" {
		return control.SimpleResponse{OK: true, Message: "ok"}
	}
	var resp any
	err := s.loop.Call(ctx, func() error {
		var err error
		resp, err = s.apply(req)
		return err
	})
	if err != nil {
		s.logger.WithField("op", req.Op).Debugf("control: %v", err)
		return control.SimpleResponse{OK: false, Message: fault.Reason(err)}
	}
	return resp
}

func ok(format string, args ...any) control.SimpleResponse {
	return control.SimpleResponse{OK: true, Message: fmt.Sprintf(format, args...)}
}

func (s *Server) apply(req control.Request) (any, error) {
	switch req.Op {
	case "status":
		return s.status(req.Tail), nil
	case "login":
		creds, err := credentials.New(req.SessionID, req.Passcode)
		if err != nil {
			return nil, err
		}
		if err := s.login(creds); err != nil {
			return nil, err
		}
		return ok("logged in to session %s", creds.SessionID), nil
	}

	if s.mgr == nil || !s.mgr.Active() {
		return nil, session.ErrNotLoggedIn
	}
	mgr := s.mgr

	switch req.Op {
	case "add":
		r, err := mgr.AddRecorder(session.RecorderConfig{
			Name:      req.Name,
			Language:  req.Language,
			DeviceID:  req.Device,
			Connected: req.Enabled,
		})
		if err != nil {
			return nil, err
		}
		return ok("added %s", r), nil
	case "remove":
		if err := mgr.Remove(req.Recorder); err != nil {
			return nil, err
		}
		return ok("removed %s", req.Recorder), nil
	case "mute-all":
		v := !mgr.AllMuted()
		if req.Enabled != nil {
			v = *req.Enabled
		}
		mgr.MuteAll(v)
		return ok("all recorders %s", onOff(v, "muted", "unmuted")), nil
	case "collapse-all":
		v := mgr.CollapseAll()
		return ok("all recorders %s", onOff(v, "collapsed", "expanded")), nil
	case "end-session":
		if err := mgr.EndForAll(); err != nil {
			return nil, err
		}
		return ok("end of session requested"), nil
	case "disconnect":
		mgr.DisconnectAll()
		return ok("disconnected from session"), nil
	case "preset-save":
		if err := s.presets.Save(req.Name, preset.FromConfigs(mgr.CapturePreset())); err != nil {
			return nil, err
		}
		return ok("preset %q saved", req.Name), nil
	case "preset-load":
		p, err := s.presets.Get(req.Name)
		if err != nil {
			return nil, err
		}
		if err := mgr.ApplyPreset(p.Configs()); err != nil {
			return nil, err
		}
		return ok("preset %q loaded with %d recorders", req.Name, len(p.Recorders)), nil
	case "join", "leave", "mute", "language", "device", "name", "collapse":
		r, err := mgr.Find(req.Recorder)
		if err != nil {
			return nil, err
		}
		return s.applyRecorder(r, req)
	default:
		return nil, fault.Validationf("unknown op %q", req.Op)
	}
}

func (s *Server) applyRecorder(r *session.Recorder, req control.Request) (any, error) {
	switch req.Op {
	case "join":
		if err := r.Join(); err != nil {
			return nil, err
		}
		return ok("%s joining", r.Name()), nil
	case "leave":
		r.Leave()
		return ok("%s left", r.Name()), nil
	case "mute":
		if req.Enabled != nil {
			r.SetMuted(*req.Enabled)
		} else {
			r.ToggleMute()
		}
		return ok("%s %s", r.Name(), onOff(r.Muted(), "muted", "unmuted")), nil
	case "language":
		if err := r.SetLanguage(req.Value); err != nil {
			return nil, err
		}
		return ok("%s language %s", r.Name(), r.Language()), nil
	case "device":
		id := audio.NormalizeDeviceID(req.Value)
		if id != "" && !audio.IsFileDevice(id) && !hasDevice(s.mgr.RefreshDevices(), id) {
			return nil, fault.Validationf("unknown input device %q", req.Value)
		}
		if err := r.SetDevice(id); err != nil {
			return nil, err
		}
		return ok("%s device %s", r.Name(), s.mgr.DeviceName(id)), nil
	case "name":
		r.SetName(req.Value)
		return ok("renamed to %s", r.Name()), nil
	default: // collapse
		v := !r.Collapsed()
		if req.Enabled != nil {
			v = *req.Enabled
		}
		r.SetCollapsed(v)
		return ok("%s %s", r.Name(), onOff(v, "collapsed", "expanded")), nil
	}
}

func (s *Server) status(tail int) control.Status {
	if tail <= 0 {
		tail = s.cfg.UI.StatusTail
	}
	st := control.Status{
		Running:     true,
		UptimeSec:   time.Since(s.startedAt).Seconds(),
		Recorders:   []session.RecorderView{},
		Transcripts: s.copyTranscripts(),
		Notices:     s.presenter.recentNotices(),
		Levels:      s.presenter.levelBars(),
	}
	if s.mgr != nil && s.mgr.Active() {
		st.LoggedIn = true
		st.SessionID = s.mgr.Credentials().SessionID
		st.AllMuted = s.mgr.AllMuted()
		st.Recorders = s.mgr.Snapshot(tail)
	}
	return st
}

func hasDevice(devices []audio.Device, id string) bool {
	for _, d := range devices {
		if d.ID == id {
			return true
		}
	}
	return false
}

func onOff(v bool, on, off string) string {
	if v {
		return on
	}
	return off
}
