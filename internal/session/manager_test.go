package session

import (
	"testing"
	"time"

	"captionjoin/internal/credentials"
	"captionjoin/internal/fault"
	"captionjoin/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerRequiresCredentials(t *testing.T) {
	h := newHarness(t)
	_, err := NewManager(credentials.Credentials{SessionID: "ABCD-1234"}, Options{}, h.m.deps)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Validation))
}

func TestDeviceExclusivity(t *testing.T) {
	h := newHarness(t)
	a := h.add(t, RecorderConfig{})
	b := h.add(t, RecorderConfig{DeviceID: "default"})
	c := h.add(t, RecorderConfig{DeviceID: "USB Mic"})

	h.connect(t, a)
	assert.False(t, b.JoinEnabled())
	assert.False(t, h.pres.join[b.ID()])
	assert.True(t, c.JoinEnabled())

	assert.ErrorIs(t, b.Join(), ErrDeviceInUse)
	assert.Len(t, h.dialer.sockets, 1)
	assert.Equal(t, NoticeError, h.pres.lastNotice().kind)

	a.Leave()
	assert.True(t, b.JoinEnabled())
	assert.True(t, h.pres.join[b.ID()])
}

func TestDeviceChangeRechecksGate(t *testing.T) {
	h := newHarness(t)
	a := h.add(t, RecorderConfig{DeviceID: "USB Mic"})
	b := h.add(t, RecorderConfig{})
	h.connect(t, a)
	assert.True(t, b.JoinEnabled())

	b.SetDevice("USB Mic")
	assert.False(t, b.JoinEnabled())
	b.SetDevice("Headset")
	assert.True(t, b.JoinEnabled())
}

func TestGateTickerRearms(t *testing.T) {
	h := newHarness(t)
	h.m.Start()
	h.m.Start()
	assert.Equal(t, 1, h.sched.Pending())
	h.sched.Advance(3500 * time.Millisecond)
	assert.Equal(t, 1, h.sched.Pending())

	h.m.DisconnectAll()
	assert.Equal(t, 0, h.sched.Pending())
}

func TestAddRecorderDefaults(t *testing.T) {
	h := newHarness(t)
	r := h.add(t, RecorderConfig{Language: "zz", DeviceID: "Missing Mic", Muted: true})
	assert.Equal(t, "en", r.Language())
	assert.Equal(t, "", r.DeviceID())
	assert.True(t, r.Muted())
	assert.Empty(t, h.dialer.sockets)

	join := true
	r2 := h.add(t, RecorderConfig{DeviceID: "Headset", Connected: &join})
	assert.Equal(t, "Speaker 2", r2.Name())
	assert.Equal(t, StatusConnecting, r2.Status())
	assert.NotEqual(t, r.ID(), r2.ID())
}

func TestAutoJoin(t *testing.T) {
	h := newHarness(t)
	h.m.opts.AutoJoin = true
	r := h.add(t, RecorderConfig{})
	assert.Equal(t, StatusConnecting, r.Status())

	off := false
	r2 := h.add(t, RecorderConfig{DeviceID: "USB Mic", Connected: &off})
	assert.Equal(t, StatusDisconnected, r2.Status())
}

func TestFind(t *testing.T) {
	h := newHarness(t)
	a := h.add(t, RecorderConfig{Name: "Alice"})
	b := h.add(t, RecorderConfig{Name: "Bob"})

	got, err := h.m.Find(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)
	got, err = h.m.Find("bob")
	require.NoError(t, err)
	assert.Same(t, b, got)
	got, err = h.m.Find("1")
	require.NoError(t, err)
	assert.Same(t, a, got)
	_, err = h.m.Find("3")
	assert.True(t, fault.Is(err, fault.Validation))
}

func TestRemoveTearsDown(t *testing.T) {
	h := newHarness(t)
	r := h.add(t, RecorderConfig{})
	s := h.connect(t, r)
	notices := len(h.pres.notices)

	require.NoError(t, h.m.Remove(r.ID()))
	assert.Empty(t, h.m.Recorders())
	assert.Empty(t, h.cap.live())
	assert.Equal(t, transport.Closed, s.State())
	assert.Equal(t, "disconnect", s.sentTypes()[len(s.text)-1])
	assert.Equal(t, []string{r.ID()}, h.pres.removed)
	assert.Len(t, h.pres.notices, notices, "remove leaves silently")
}

func TestMuteAllAndCollapseAll(t *testing.T) {
	h := newHarness(t)
	a := h.add(t, RecorderConfig{})
	b := h.add(t, RecorderConfig{Muted: true})

	assert.False(t, h.m.AllMuted())
	h.m.MuteAll(true)
	h.m.MuteAll(true)
	assert.True(t, a.Muted())
	assert.True(t, b.Muted())
	assert.True(t, h.m.AllMuted())
	h.m.MuteAll(false)
	assert.False(t, a.Muted())

	b.SetCollapsed(true)
	assert.True(t, h.m.CollapseAll())
	assert.True(t, a.Collapsed())
	assert.False(t, h.m.CollapseAll())
	assert.False(t, a.Collapsed())
	assert.False(t, b.Collapsed())
}

func TestDisconnectAll(t *testing.T) {
	h := newHarness(t)
	h.m.DisconnectAll()
	assert.False(t, h.m.Active())

	h2 := newHarness(t)
	a := h2.add(t, RecorderConfig{})
	h2.connect(t, a)
	h2.m.DisconnectAll()
	assert.Empty(t, h2.m.Recorders())
	assert.Empty(t, h2.cap.live())
	assert.False(t, h2.m.Credentials().Complete())
	assert.Equal(t, notice{NoticeSuccess, "Disconnected from session"}, h2.pres.lastNotice())

	_, err := h2.m.AddRecorder(RecorderConfig{})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	require.NoError(t, h2.m.Login(testCreds))
	_, err = h2.m.AddRecorder(RecorderConfig{})
	assert.NoError(t, err)
}

func TestEndForAllThroughActiveRecorder(t *testing.T) {
	h := newHarness(t)
	a := h.add(t, RecorderConfig{DeviceID: "USB Mic"})
	b := h.add(t, RecorderConfig{DeviceID: "Headset"})
	sa := h.connect(t, a)
	sb := h.connect(t, b)

	require.NoError(t, h.m.EndForAll())
	assert.Equal(t, "disconnect", sa.sentTypes()[len(sa.text)-1])
	assert.Equal(t, true, sa.sent(len(sa.text)-1)["end"])
	assert.NotContains(t, sb.sentTypes(), "disconnect")
	assert.Equal(t, "Session ended", sa.closeReason)
	assert.Equal(t, "Session ended", sb.closeReason)
	assert.Len(t, h.dialer.sockets, 2)
	assert.Contains(t, h.pres.notices, notice{NoticeSuccess, "Session ended for all participants"})
	assert.False(t, h.m.Active())
	assert.Empty(t, h.m.Recorders())
}

func TestEndForAllThroughTemporaryConnection(t *testing.T) {
	h := newHarness(t)
	r := h.add(t, RecorderConfig{})

	require.NoError(t, h.m.EndForAll())
	s := h.dialer.last(t)
	s.open()
	h.sched.Drain()
	connect := s.sent(0)
	assert.Equal(t, "temp-end-session", connect["speakerId"])
	assert.Equal(t, "Session Controller", connect["name"])
	assert.Equal(t, "en", connect["languageCode"])
	assert.Nil(t, connect["context"])

	s.deliver(`{"type":"status","success":true}`)
	h.sched.Drain()
	assert.Equal(t, []string{"connect", "disconnect"}, s.sentTypes())
	assert.Equal(t, true, s.sent(1)["end"])
	assert.Equal(t, transport.Open, s.State())
	assert.Equal(t, StatusDisconnected, r.Status())

	h.sched.Advance(500 * time.Millisecond)
	assert.Equal(t, transport.Closed, s.State())
	assert.Equal(t, "Session ended", s.closeReason)
	assert.Contains(t, h.pres.notices, notice{NoticeSuccess, "Session ended for all participants"})
	assert.False(t, h.m.Active())
}

func TestEndForAllTemporaryFailureLeavesRecorders(t *testing.T) {
	h := newHarness(t)
	r := h.add(t, RecorderConfig{Name: "Alice"})

	require.NoError(t, h.m.EndForAll())
	s := h.dialer.last(t)
	s.open()
	s.deliver(`{"type":"status","success":false,"message":"Invalid passcode"}`)
	h.sched.Drain()

	assert.Equal(t, notice{NoticeError, "Failed to end session: Connection error: Invalid passcode"}, h.pres.lastNotice())
	assert.True(t, h.m.Active())
	require.Len(t, h.m.Recorders(), 1)
	assert.Equal(t, StatusDisconnected, r.Status())
	assert.Empty(t, r.Log())

	// a second attempt times out
	require.NoError(t, h.m.EndForAll())
	h.sched.Advance(10 * time.Second)
	assert.Equal(t, notice{NoticeError, "Failed to end session: Connection timed out"}, h.pres.lastNotice())
	assert.True(t, h.m.Active())
}

func TestEndForAllTemporaryErrorReplyClosesSocket(t *testing.T) {
	h := newHarness(t)
	r := h.add(t, RecorderConfig{Name: "Alice"})

	require.NoError(t, h.m.EndForAll())
	s := h.dialer.last(t)
	s.open()
	h.sched.Drain()
	s.deliver(`{"type":"error","message":"nope"}`)
	h.sched.Drain()

	assert.Equal(t, notice{NoticeError, "Failed to end session: Error: nope"}, h.pres.lastNotice())
	assert.Equal(t, transport.Closed, s.State())
	assert.Equal(t, "End session failed", s.closeReason)
	assert.Nil(t, h.m.ending)
	assert.Equal(t, StatusDisconnected, r.Status())

	// nothing fires once the connect timeout would have elapsed
	before := len(h.pres.notices)
	h.sched.Advance(10 * time.Second)
	assert.Len(t, h.pres.notices, before)
}

func TestEndForAllInProgress(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.EndForAll())
	require.NoError(t, h.m.EndForAll())
	assert.Len(t, h.dialer.sockets, 1)
	assert.Equal(t, NoticeInfo, h.pres.lastNotice().kind)
}

func TestEndForAllWithoutCredentials(t *testing.T) {
	h := newHarness(t)
	h.m.DisconnectAll()
	err := h.m.EndForAll()
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Validation))
	assert.Equal(t, notice{NoticeError, "Cannot end session: Missing session credentials"}, h.pres.lastNotice())
	assert.Empty(t, h.dialer.sockets)
}

func TestPresetRoundTrip(t *testing.T) {
	h := newHarness(t)
	a := h.add(t, RecorderConfig{Name: "Alice", Language: "fr", DeviceID: "USB Mic"})
	h.add(t, RecorderConfig{Name: "Bob", Muted: true, Collapsed: true})
	h.connect(t, a)

	cfgs := h.m.CapturePreset()
	require.Len(t, cfgs, 2)
	assert.Equal(t, "fr", cfgs[0].Language)
	assert.True(t, *cfgs[0].Connected)
	assert.False(t, *cfgs[1].Connected)

	require.NoError(t, h.m.ApplyPreset(cfgs))
	got := h.m.Recorders()
	require.Len(t, got, 2)
	assert.Equal(t, "Alice", got[0].Name())
	assert.Equal(t, StatusConnecting, got[0].Status())
	assert.Equal(t, StatusDisconnected, got[1].Status())
	assert.True(t, got[1].Muted())
	assert.True(t, got[1].Collapsed())
	assert.Len(t, h.pres.removed, 2)
}
