package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounts(t *testing.T) {
	c := New()
	c.FrameSent("voiced")
	c.FrameSent("voiced")
	c.FrameSent("silence")
	c.Result(true)
	c.Transition("connected")
	c.SetConnected(2)
	c.Hook("sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.framesSent.WithLabelValues("voiced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.framesSent.WithLabelValues("silence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.results.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.connected))

	n, err := testutil.GatherAndCount(c.Registry())
	assert.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.FrameSent("voiced")
	c.FrameError()
	c.BlockDropped()
	c.Transition("error")
	c.Result(false)
	c.ProtocolError()
	c.SetConnected(1)
	c.Hook("failed")
}
