// Package app wires the daemon's services together.
package app

import (
	"fmt"

	"captionjoin/internal/config"
	"captionjoin/internal/hook"
	"captionjoin/internal/metrics"
	"captionjoin/internal/mic"
	"captionjoin/internal/preset"
	"captionjoin/internal/run"
	"captionjoin/internal/transport"

	"github.com/samber/do/v2"
	"github.com/sirupsen/logrus"
)

// SetupDI registers every daemon service on a new injector.
func SetupDI(cfg *config.Config, logger *logrus.Logger) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)
	metrics.RegisterDI(injector)
	mic.RegisterDI(injector)
	transport.RegisterDI(injector)
	preset.RegisterDI(injector)
	hook.RegisterDI(injector)
	run.RegisterDI(injector)

	return injector
}

// Serve resolves the server and runs it until interrupted.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	injector := SetupDI(cfg, logger)
	srv, err := do.Invoke[*run.Server](injector)
	if err != nil {
		return fmt.Errorf("resolve server: %w", err)
	}
	defer func() {
		if pa, err := do.Invoke[*mic.PortAudio](injector); err == nil {
			if err := pa.Close(); err != nil {
				logger.Warnf("portaudio close: %v", err)
			}
		}
	}()
	return srv.Serve()
}
