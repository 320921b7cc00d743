package run

import (
	"captionjoin/internal/audio"
	"captionjoin/internal/config"
	"captionjoin/internal/hook"
	"captionjoin/internal/loop"
	"captionjoin/internal/metrics"
	"captionjoin/internal/preset"
	"captionjoin/internal/transport"

	"github.com/samber/do/v2"
	"github.com/sirupsen/logrus"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*loop.Loop, error) {
		return loop.New(0), nil
	})
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*logrus.Logger](i)
		return New(cfg, logger, Deps{
			Loop:     do.MustInvoke[*loop.Loop](i),
			Dialer:   do.MustInvoke[transport.Dialer](i),
			Capturer: do.MustInvoke[audio.Capturer](i),
			Presets:  do.MustInvoke[preset.Store](i),
			Hook:     do.MustInvoke[*hook.Runner](i),
			Metrics:  do.MustInvoke[*metrics.Collector](i),
		}), nil
	})
}
