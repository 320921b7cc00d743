package run

import (
	"context"
	"time"

	"captionjoin/internal/hook"
	"captionjoin/internal/session"
)

// enqueueHook hands a final phrase to the hook worker. It runs on the loop
// and never blocks it: a full queue drops the phrase.
func (s *Server) enqueueHook(p session.FinalPhrase) {
	if s.hook == nil || !s.hook.Enabled() {
		return
	}
	job := hook.Job{Speaker: p.Speaker, Language: p.Language, Text: p.Text, Timestamp: p.Time}
	if !s.hook.Accept(job) {
		return
	}
	if !s.hook.ShouldRun() {
		s.logger.Debugf("hook skipped for %s (cooldown)", p.Speaker)
		s.metrics.Hook("skipped")
		return
	}
	select {
	case s.hookCh <- job:
	default:
		s.metrics.Hook("dropped")
		s.logger.Warnf("hook queue full (%d), dropping phrase from %s", cap(s.hookCh), p.Speaker)
	}
}

// hookWorker runs queued hooks one at a time until ctx is done.
func (s *Server) hookWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.hookCh:
			started := time.Now()
			if err := s.hook.Run(ctx, job); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Errorf("hook for %s: %v", job.Speaker, err)
				s.metrics.Hook("failed")
				continue
			}
			s.logger.Debugf("hook for %s done in %s", job.Speaker, time.Since(started).Round(time.Millisecond))
			s.metrics.Hook("sent")
		}
	}
}
