package preset

import (
	"path/filepath"
	"testing"
	"time"

	"captionjoin/internal/fault"
	"captionjoin/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Preset {
	return Preset{Recorders: []Recorder{
		{Name: "Alice", Language: "fr", DeviceID: "USB Mic"},
		{Name: "Bob", Language: "en", Muted: true, Collapsed: true},
	}}
}

func TestFileStoreCRUD(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state", "presets.toml"))

	names, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.Save("panel", sample()))
	require.NoError(t, s.Save("Keynote", Preset{}))
	names, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"Keynote", "panel"}, names)

	got, err := s.Get("panel")
	require.NoError(t, err)
	assert.Equal(t, sample(), got)

	empty, err := s.Get("Keynote")
	require.NoError(t, err)
	assert.Empty(t, empty.Recorders)

	require.NoError(t, s.Delete("panel"))
	_, err = s.Get("panel")
	assert.True(t, fault.Is(err, fault.Validation))
	assert.Error(t, s.Delete("panel"))

	err = s.Save("  ", sample())
	assert.True(t, fault.Is(err, fault.Validation))
}

func TestExportRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data, err := Marshal("Panel Talk", sample(), now)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exportDate": "2024-05-01T12:00:00Z"`)
	assert.Contains(t, string(data), `"version": "1.0"`)
	assert.Contains(t, string(data), `"deviceId": "USB Mic"`)

	name, p, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "Panel Talk", name)
	assert.Equal(t, sample(), p)
}

func TestUnmarshalRejects(t *testing.T) {
	cases := map[string]string{
		`{`:                                      "Error reading preset file. Please check the file format.",
		`{"preset":{"recorders":[]}}`:            "Invalid preset file format",
		`{"name":"x"}`:                           "Invalid preset file format",
		`{"name":"x","preset":{}}`:               "Invalid preset structure - missing recorders",
		`{"name":"x","preset":{"recorders":{}}}`: "Invalid preset structure - missing recorders",
	}
	for in, want := range cases {
		_, _, err := Unmarshal([]byte(in))
		require.Error(t, err, in)
		assert.True(t, fault.Is(err, fault.Validation), in)
		assert.Equal(t, want, fault.Reason(err), in)
	}
}

func TestImportRequiresForceToOverwrite(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "presets.toml"))
	data, err := Marshal("panel", sample(), time.Now())
	require.NoError(t, err)

	name, err := Import(s, data, false)
	require.NoError(t, err)
	assert.Equal(t, "panel", name)

	_, err = Import(s, data, false)
	assert.True(t, fault.Is(err, fault.Validation))
	_, err = Import(s, data, true)
	assert.NoError(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "captionjoin-preset-panel_talk__2024_.json", FileName("Panel Talk (2024)"))
}

func TestConfigConversion(t *testing.T) {
	on := true
	p := FromConfigs([]session.RecorderConfig{{Name: "Alice", Language: "de", DeviceID: "Headset", Muted: true, Connected: &on}})
	require.Len(t, p.Recorders, 1)
	assert.Nil(t, p.Recorders[0].Connected)
	assert.Equal(t, "Headset", p.Recorders[0].DeviceID)

	off := false
	p.Recorders[0].Connected = &off
	cfgs := p.Configs()
	require.Len(t, cfgs, 1)
	assert.Equal(t, "de", cfgs[0].Language)
	require.NotNil(t, cfgs[0].Connected)
	assert.False(t, *cfgs[0].Connected)
}
