package mic

import (
	"captionjoin/internal/audio"

	"github.com/samber/do/v2"
	"github.com/sirupsen/logrus"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*PortAudio, error) {
		return New(do.MustInvoke[*logrus.Logger](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (audio.Capturer, error) {
		pa := do.MustInvoke[*PortAudio](i)
		return audio.Router{Device: pa, Files: audio.FileSource{Loop: true}}, nil
	})
}
