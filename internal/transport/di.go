package transport

import (
	"time"

	"captionjoin/internal/config"

	"github.com/samber/do/v2"
	"github.com/sirupsen/logrus"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (Dialer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return &WebSocketDialer{
			HandshakeTimeout: time.Duration(cfg.Session.ConnectTimeoutSec * float64(time.Second)),
			Logger:           do.MustInvoke[*logrus.Logger](i),
		}, nil
	})
}
