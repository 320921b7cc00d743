package hook

import (
	"captionjoin/internal/config"

	"github.com/samber/do/v2"
	"github.com/sirupsen/logrus"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Runner, error) {
		return NewRunner(do.MustInvoke[*config.Config](i), do.MustInvoke[*logrus.Logger](i)), nil
	})
}
