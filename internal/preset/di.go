package preset

import (
	"captionjoin/internal/config"

	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewFileStore(cfg.Paths.PresetPath), nil
	})
}
