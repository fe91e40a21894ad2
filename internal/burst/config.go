// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package burst implements the stealth traffic-shaping burst buffer (C6):
// application writes are batched into bursts whose size distribution,
// inter-arrival timing and byte framing mimic a chosen cover traffic
// class, adapting online to observed network conditions.
package burst

import "time"

// FrameType is the cover traffic class a burst's envelope mimics.
type FrameType int

const (
	HTTP3Chunked FrameType = iota
	WebSocket
	MediaStreaming
	Interactive
	RandomizedFrame
)

// MediaVariant selects MediaStreaming's concrete sub-format.
type MediaVariant int

const (
	HLSSegment MediaVariant = iota
	DASHFragment
	RTPPacket
	FLVStream
)

// InteractiveVariant selects Interactive's concrete sub-format.
type InteractiveVariant int

const (
	RDP InteractiveVariant = iota
	VNC
	Game
	VoIP
)

// Config holds the tunable shape parameters for one Buffer.
type Config struct {
	MinIntervalMs  int
	MaxIntervalMs  int
	MinSize        int
	MaxSize        int
	OptimalSize    int
	MaxBufferBytes int

	FrameType FrameType

	AdaptiveTiming        bool
	AdaptiveSizing        bool
	MimicRealisticPatterns bool

	JitterFactor    float64
	TargetLatencyMs int
}

func DefaultConfig() Config {
	return Config{
		MinIntervalMs:          20,
		MaxIntervalMs:          150,
		MinSize:                256,
		MaxSize:                16 * 1024,
		OptimalSize:            1400,
		MaxBufferBytes:         1 << 20,
		FrameType:              HTTP3Chunked,
		AdaptiveTiming:         true,
		AdaptiveSizing:         true,
		MimicRealisticPatterns: true,
		JitterFactor:           0.1,
		TargetLatencyMs:        50,
	}
}

// Metrics are the observed operating statistics of a Buffer.
type Metrics struct {
	ObservedLatencyMs     float64
	PacketLossRate        float64
	BandwidthEstimate     float64 // bits/sec
	TotalBursts           uint64
	TotalBytes            uint64
	BufferHighWatermark   int
	AverageBurstIntervalMs float64
	AdaptationScore       float64
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
