package run

import (
	"time"

	"captionjoin/internal/audio"
	"captionjoin/internal/control"
	"captionjoin/internal/session"

	"github.com/sirupsen/logrus"
)

// presenter renders session events into the daemon log and keeps the recent
// notices and meter levels for status replies. It only runs on the loop.
type presenter struct {
	log     *logrus.Logger
	limit   int
	notices []control.Notice
	levels  map[string]int
}

func newPresenter(log *logrus.Logger, limit int) *presenter {
	if limit <= 0 {
		limit = 10
	}
	return &presenter{log: log, limit: limit, levels: map[string]int{}}
}

func (p *presenter) RecorderStatus(id string, status session.Status, message string) {
	if status != session.StatusConnected {
		delete(p.levels, id)
	}
	entry := p.log.WithFields(logrus.Fields{"recorder": id, "status": status})
	if status == session.StatusError {
		entry.Warn(message)
		return
	}
	entry.Info(message)
}

func (p *presenter) RecorderLog(id string, line session.LogLine) {
	if line.Error {
		p.log.WithField("recorder", id).Warn(line.Text)
		return
	}
	p.log.WithField("recorder", id).Debug(line.Text)
}

func (p *presenter) RecorderChanged(view session.RecorderView) {
	p.log.WithFields(logrus.Fields{
		"recorder": view.ID,
		"name":     view.Name,
		"language": view.Language,
		"device":   view.DeviceName,
		"muted":    view.Muted,
	}).Debug("recorder updated")
}

func (p *presenter) RecorderRemoved(id string) {
	delete(p.levels, id)
	p.log.WithField("recorder", id).Debug("recorder removed")
}

func (p *presenter) Transcript(id string, entry session.Entry) {
	if !entry.Final {
		return
	}
	p.log.WithField("recorder", id).Infof("%s: %s", entry.Speaker, entry.Text)
}

func (p *presenter) Level(id string, level audio.Level) { p.levels[id] = level.Bars }

func (p *presenter) JoinState(id string, enabled bool) {
	p.log.WithField("recorder", id).Debugf("join enabled: %v", enabled)
}

func (p *presenter) Notify(kind session.NoticeKind, message string) {
	p.notices = append(p.notices, control.Notice{Kind: kind, Message: message, Timestamp: time.Now()})
	if len(p.notices) > p.limit {
		p.notices = p.notices[len(p.notices)-p.limit:]
	}
}

func (p *presenter) recentNotices() []control.Notice {
	return append([]control.Notice(nil), p.notices...)
}

func (p *presenter) levelBars() map[string]int {
	out := make(map[string]int, len(p.levels))
	for id, bars := range p.levels {
		out[id] = bars
	}
	return out
}
