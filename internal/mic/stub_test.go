//go:build noportaudio

package mic

import (
	"testing"

	"captionjoin/internal/audio"
	"captionjoin/internal/fault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubOnlyServesFileSources(t *testing.T) {
	pa := New(nil)
	devs, err := pa.Devices()
	require.NoError(t, err)
	assert.Empty(t, devs)

	r := audio.Router{Device: pa, Files: audio.FileSource{}}
	_, err = r.Open("", audio.DefaultStreamConfig(), func([]float32) {})
	assert.True(t, fault.Is(err, fault.Capture))
	assert.Equal(t, "built without PortAudio support", fault.Reason(err))

	_, err = DefaultInput()
	assert.Error(t, err)
	assert.NoError(t, pa.Close())
}
