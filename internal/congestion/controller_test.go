// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package congestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_Controller_ModeProgression(t *testing.T) {
	assert := assert.New(t)

	c := New(DefaultParams())
	now := time.Unix(0, 0)

	seenDrain, seenProbeBW := false, false
	for i := 0; i < 100; i++ {
		now = now.Add(20 * time.Millisecond)
		snap := c.Snapshot()
		_ = snap

		_, _ = c.OnAck(Sample{
			RTT:           20 * time.Millisecond,
			DeliveryRate:  50e6,
			BytesInFlight: 1000 + i*100,
			Now:           now,
		})

		switch c.Snapshot().Mode {
		case Drain:
			seenDrain = true
		case ProbeBW:
			seenProbeBW = true
		}

		if seenProbeBW && i <= 50 {
			break
		}
	}

	assert.True(seenDrain, "expected a DRAIN phase before PROBE_BW")
	assert.True(seenProbeBW, "expected to reach PROBE_BW within 50 updates")
}

func Test_Controller_RTTClamping(t *testing.T) {
	assert := assert.New(t)

	f := newRTTFilter(defaultMinRTTWindow)
	ok := f.add(100*time.Microsecond, time.Unix(0, 0))
	assert.True(ok)
	assert.Equal(minRTTSample, f.value())

	ok = f.add(20*time.Second, time.Unix(1, 0))
	assert.False(ok, "samples above 15s must be discarded")
}

func Test_Controller_SingleModeAtAnyInstant(t *testing.T) {
	assert := assert.New(t)

	c := New(DefaultParams())
	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		now = now.Add(10 * time.Millisecond)
		c.OnAck(Sample{RTT: 10 * time.Millisecond, DeliveryRate: 10e6, BytesInFlight: 5000, Now: now})
		m := c.Snapshot().Mode
		assert.True(m == Startup || m == Drain || m == ProbeBW || m == ProbeRTT)
	}
}
