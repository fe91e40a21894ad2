// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package congestion implements the BBRv2 pacing and congestion-window
// controller: a bandwidth/RTT-probing state machine driven by ACK samples
// rather than loss-based additive increase.
//
// This follows the "fixed" bandwidth-filter behavior and the
// cycle_index > 0 && gain > 1 && filled_pipe probing predicate where the
// upstream reference carried two divergent BBRv2 variants.
package congestion

import (
	"sync"
	"time"
)

// minPipeCwndPackets is the minimum congestion window in MTU-sized packets;
// minPipeCwnd converts it to the byte floor the controller will ever report.
const minPipeCwndPackets = 4

var probeBWGainCycle = [8]float64{1.25, 0.75, 1, 1, 1, 1, 1, 1}

const (
	startupGain       = 2.885
	drainGain         = 0.75
	probeRTTGain      = 0.75
	probeRTTDuration  = 200 * time.Millisecond
	probeRTTInterval  = defaultProbeRTTPeriod
	startupFullBwCnt  = 3
	startupFullBwThr  = 1.25 // 25% growth required to not declare filled_pipe
)

// Sample is one ACK-driven observation fed to the controller.
type Sample struct {
	RTT           time.Duration
	DeliveryRate  float64 // bits/sec
	BytesInFlight int
	BytesAcked    int
	BytesLost     int
	Now           time.Time
}

// Params are the tunable constants of the controller; zero-value Params
// yields DefaultParams().
type Params struct {
	MTU            int
	MinRTTWindow   time.Duration
	ProbeRTTPeriod time.Duration
}

func DefaultParams() Params {
	return Params{
		MTU:            1452,
		MinRTTWindow:   defaultMinRTTWindow,
		ProbeRTTPeriod: defaultProbeRTTPeriod,
	}
}

// Snapshot is a read-copy of derived quantities, safe to read without
// holding the controller's lock.
type Snapshot struct {
	Mode             Mode
	PacingRate       float64 // bits/sec
	CongestionWindow int     // bytes
	BtlBw            float64
	MinRTT           time.Duration
	CycleIndex       int
	FilledPipe       bool
}

// Controller is a single BBRv2 state machine. All exported methods lock;
// callers must not hold any other connection-level lock while calling into
// it per the documented socket -> cc -> burst -> stats ordering.
type Controller struct {
	mu sync.Mutex

	params Params

	mode Mode
	bw   *bandwidthFilter
	rtt  *rttFilter

	pacingGain float64
	cwndGain   float64

	cycleIndex      int
	cycleStart      time.Time
	filledPipe      bool
	fullBwCount     int
	fullBwLastMax   float64

	nextProbeRTTTime   time.Time
	probeRTTDoneTime   time.Time
	probeRTTRoundDone  bool
	probeRTTEntered    bool

	bytesInFlight int
	round         uint64
}

func New(params Params) *Controller {
	if params.MTU == 0 {
		params.MTU = DefaultParams().MTU
	}
	if params.MinRTTWindow == 0 {
		params.MinRTTWindow = DefaultParams().MinRTTWindow
	}
	if params.ProbeRTTPeriod == 0 {
		params.ProbeRTTPeriod = DefaultParams().ProbeRTTPeriod
	}

	return &Controller{
		params:           params,
		mode:             Startup,
		bw:               newBandwidthFilter(params.MinRTTWindow),
		rtt:              newRTTFilter(params.MinRTTWindow),
		pacingGain:       startupGain,
		cwndGain:         startupGain,
		nextProbeRTTTime: time.Time{},
	}
}

// SetParams updates the controller's tunable constants in place; it does
// not reset the current mode or filters.
func (c *Controller) SetParams(params Params) {
	if params.MTU == 0 {
		params.MTU = DefaultParams().MTU
	}
	if params.MinRTTWindow == 0 {
		params.MinRTTWindow = DefaultParams().MinRTTWindow
	}
	if params.ProbeRTTPeriod == 0 {
		params.ProbeRTTPeriod = DefaultParams().ProbeRTTPeriod
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = params
}

// minPipeCwnd is the byte floor below which the congestion window never
// drops, regardless of mode.
func (c *Controller) minPipeCwnd() int {
	return minPipeCwndPackets * c.params.MTU
}

// bdp returns the bandwidth-delay product in bytes.
func (c *Controller) bdp() float64 {
	minRTT := c.rtt.value()
	if minRTT <= 0 {
		return float64(c.minPipeCwnd())
	}
	return c.bw.value() * minRTT.Seconds() / 8
}

// OnAck feeds one ACK-driven sample into the state machine and returns the
// resulting pacing rate (bits/sec) and congestion window (bytes).
func (c *Controller) OnAck(s Sample) (pacingRate float64, cwnd int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rtt.add(s.RTT, s.Now)
	if s.DeliveryRate > 0 {
		c.bw.add(s.DeliveryRate, s.Now)
	}
	c.bytesInFlight = s.BytesInFlight
	c.round++

	switch c.mode {
	case Startup:
		c.handleStartup()
	case Drain:
		c.handleDrain()
	case ProbeBW:
		c.handleProbeBW(s.Now)
	case ProbeRTT:
		c.handleProbeRTT(s.Now)
	}

	return c.computeOutputs()
}

func (c *Controller) handleStartup() {
	c.pacingGain = startupGain
	c.cwndGain = startupGain

	cur := c.bw.value()
	if cur > c.fullBwLastMax*startupFullBwThr {
		c.fullBwLastMax = cur
		c.fullBwCount = 0
	} else {
		c.fullBwCount++
	}

	if c.fullBwCount >= startupFullBwCnt {
		c.filledPipe = true
		c.mode = Drain
	}
}

func (c *Controller) handleDrain() {
	c.pacingGain = drainGain
	c.cwndGain = startupGain

	if float64(c.bytesInFlight) <= c.bdp() {
		c.enterProbeBW(time.Now())
	}
}

func (c *Controller) enterProbeBW(now time.Time) {
	c.mode = ProbeBW
	c.cycleIndex = 0
	c.cycleStart = now
	c.pacingGain = probeBWGainCycle[0]
	c.cwndGain = 2.0
	if c.nextProbeRTTTime.IsZero() {
		// First entry into PROBE_BW: schedule the first PROBE_RTT.
		c.nextProbeRTTTime = now.Add(c.params.ProbeRTTPeriod)
	}
}

func (c *Controller) handleProbeBW(now time.Time) {
	minRTT := c.rtt.value()
	if minRTT <= 0 {
		minRTT = time.Millisecond
	}

	if now.Sub(c.cycleStart) >= 2*minRTT {
		c.cycleIndex = (c.cycleIndex + 1) % len(probeBWGainCycle)
		c.cycleStart = now
	}
	c.pacingGain = probeBWGainCycle[c.cycleIndex]
	c.cwndGain = 2.0

	if c.probeRTTDue(now) {
		c.enterProbeRTT(now)
	}
}

// isProbingBandwidth matches the "fixed" variant's predicate per the
// documented design resolution.
func (c *Controller) isProbingBandwidth() bool {
	return c.cycleIndex > 0 && c.pacingGain > 1.0 && c.filledPipe
}

func (c *Controller) probeRTTDue(now time.Time) bool {
	if c.nextProbeRTTTime.IsZero() {
		return false
	}
	return now.Sub(c.nextProbeRTTTime) >= 0
}

func (c *Controller) enterProbeRTT(now time.Time) {
	c.mode = ProbeRTT
	c.pacingGain = probeRTTGain
	c.cwndGain = probeRTTGain
	c.probeRTTDoneTime = time.Time{}
	c.probeRTTRoundDone = false
	c.probeRTTEntered = false
}

func (c *Controller) probeRTTCwnd() int {
	floor := c.minPipeCwnd()
	half := int(0.5 * c.bdp())
	if half > floor {
		return half
	}
	return floor
}

func (c *Controller) handleProbeRTT(now time.Time) {
	c.pacingGain = probeRTTGain
	c.cwndGain = probeRTTGain

	target := c.probeRTTCwnd()

	if !c.probeRTTEntered {
		c.probeRTTEntered = true
		c.probeRTTDoneTime = now.Add(probeRTTDuration)
	}

	if c.bytesInFlight <= target {
		c.probeRTTRoundDone = true
	}

	if c.probeRTTRoundDone && !now.Before(c.probeRTTDoneTime) {
		c.nextProbeRTTTime = now.Add(c.params.ProbeRTTPeriod)
		c.enterProbeBW(now)
	}
}

func (c *Controller) computeOutputs() (float64, int) {
	minRTT := c.rtt.value()
	floorRate := float64(c.minPipeCwnd()) * 8
	if minRTT > 0 {
		floorRate = float64(c.minPipeCwnd()) * 8 / minRTT.Seconds()
	}

	pacingRate := c.pacingGain * c.bw.value()
	if pacingRate < floorRate {
		pacingRate = floorRate
	}

	var cwnd int
	if c.mode == ProbeRTT {
		cwnd = c.probeRTTCwnd()
	} else {
		cwnd = int(c.cwndGain * c.bdp())
		if cwnd < c.minPipeCwnd() {
			cwnd = c.minPipeCwnd()
		}
	}

	return pacingRate, cwnd
}

// Snapshot returns a read-copy of the controller's derived state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	rate, cwnd := c.computeOutputs()
	return Snapshot{
		Mode:             c.mode,
		PacingRate:       rate,
		CongestionWindow: cwnd,
		BtlBw:            c.bw.value(),
		MinRTT:           c.rtt.value(),
		CycleIndex:       c.cycleIndex,
		FilledPipe:       c.filledPipe,
	}
}
