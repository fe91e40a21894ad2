// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package fec implements the adaptive forward-error-correction shim (C7):
// an optional redundancy layer over the datagram path, consuming
// klauspost/reedsolomon as the black-box encode/decode pair per the
// outer engine's design.
package fec

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/reedsolomon"
)

const (
	MinRedundancy = 0.1
	MaxRedundancy = 0.5

	// recomputeEvery is how often the redundancy rate is recomputed from
	// the observed loss rate.
	recomputeEvery = 50

	headerLen = 12 // group id (4) | shard index (2) | data shard count (2) | original length (4)
)

// Shim is one adaptive FEC encode/decode pipeline. It is safe for
// concurrent use.
type Shim struct {
	mu sync.Mutex

	dataShards int
	redundancy float64

	encoders map[shardKey]reedsolomon.Encoder

	packetsSinceRecompute int
	observedLoss          float64

	groupSeq uint32
	pending  map[uint32]*group
}

type shardKey struct {
	data, parity int
}

type group struct {
	dataShards  int
	totalShards int
	origLen     int
	shards      [][]byte
	have        int
}

// New creates a Shim with the given number of data shards per group
// (i.e. how many original packets are grouped before parity is computed)
// and an initial redundancy rate.
func New(dataShards int, initialRedundancy float64) *Shim {
	if dataShards < 1 {
		dataShards = 4
	}
	return &Shim{
		dataShards: dataShards,
		redundancy: clamp(initialRedundancy, MinRedundancy, MaxRedundancy),
		encoders:   make(map[shardKey]reedsolomon.Encoder),
		pending:    make(map[uint32]*group),
	}
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

// parityShards returns how many parity shards the current redundancy rate
// implies for the configured data-shard count.
func (s *Shim) parityShards() int {
	p := int(float64(s.dataShards)*s.redundancy + 0.999999) // ceil
	if p < 1 {
		p = 1
	}
	return p
}

func (s *Shim) encoderFor(dataShards, parityShards int) (reedsolomon.Encoder, error) {
	key := shardKey{dataShards, parityShards}
	if enc, ok := s.encoders[key]; ok {
		return enc, nil
	}

	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("build reed-solomon encoder (%d,%d): %w", dataShards, parityShards, err)
	}
	s.encoders[key] = enc
	return enc, nil
}

// Encode shards payload across s.dataShards data shards plus the current
// redundancy rate's worth of parity shards, and returns every shard as an
// independently transmittable packet, each carrying a small header so the
// receiver can group and reconstruct.
func (s *Shim) Encode(payload []byte) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parity := s.parityShards()
	enc, err := s.encoderFor(s.dataShards, parity)
	if err != nil {
		return nil, err
	}

	shards, err := enc.Split(payload)
	if err != nil {
		return nil, fmt.Errorf("reed-solomon split: %w", err)
	}

	full := make([][]byte, s.dataShards+parity)
	copy(full, shards)
	shardLen := len(shards[0])
	for i := s.dataShards; i < len(full); i++ {
		full[i] = make([]byte, shardLen)
	}

	if err := enc.Encode(full); err != nil {
		return nil, fmt.Errorf("reed-solomon encode: %w", err)
	}

	groupID := s.groupSeq
	s.groupSeq++

	packets := make([][]byte, len(full))
	for i, shard := range full {
		pkt := make([]byte, headerLen+len(shard))
		binary.BigEndian.PutUint32(pkt[0:4], groupID)
		binary.BigEndian.PutUint16(pkt[4:6], uint16(i))
		binary.BigEndian.PutUint16(pkt[6:8], uint16(s.dataShards))
		binary.BigEndian.PutUint32(pkt[8:12], uint32(len(payload)))
		copy(pkt[headerLen:], shard)
		packets[i] = pkt
	}

	s.trackPacketLocked()

	return packets, nil
}

// AddReceivedPacket ingests one shard packet. Once enough shards for its
// group have arrived, it reconstructs and returns the recovered payload;
// otherwise it returns (nil, false) and waits for more shards.
func (s *Shim) AddReceivedPacket(pkt []byte) (recovered []byte, ok bool, err error) {
	if len(pkt) < headerLen {
		return nil, false, fmt.Errorf("fec packet too short")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	groupID := binary.BigEndian.Uint32(pkt[0:4])
	idx := int(binary.BigEndian.Uint16(pkt[4:6]))
	dataShards := int(binary.BigEndian.Uint16(pkt[6:8]))
	origLen := int(binary.BigEndian.Uint32(pkt[8:12]))
	shard := pkt[headerLen:]

	g, exists := s.pending[groupID]
	if !exists {
		parity := s.parityShards()
		g = &group{
			dataShards:  dataShards,
			totalShards: dataShards + parity,
			origLen:     origLen,
			shards:      make([][]byte, dataShards+parity),
		}
		s.pending[groupID] = g
	}

	if idx >= len(g.shards) {
		grown := make([][]byte, idx+1)
		copy(grown, g.shards)
		g.shards = grown
		g.totalShards = len(grown)
	}

	if g.shards[idx] == nil {
		g.shards[idx] = shard
		g.have++
	}

	s.trackPacketLocked()

	if g.have < g.dataShards {
		return nil, false, nil
	}

	enc, err := s.encoderFor(g.dataShards, g.totalShards-g.dataShards)
	if err != nil {
		return nil, false, err
	}

	if err := enc.Reconstruct(g.shards); err != nil {
		return nil, false, fmt.Errorf("reed-solomon reconstruct: %w", err)
	}

	var out []byte
	for _, sh := range g.shards[:g.dataShards] {
		out = append(out, sh...)
	}
	if g.origLen > 0 && g.origLen <= len(out) {
		out = out[:g.origLen]
	}

	delete(s.pending, groupID)
	return out, true, nil
}

// trackPacketLocked recomputes the redundancy rate every recomputeEvery
// packets (each Encode call and each AddReceivedPacket call counts as one)
// from the observed loss rate reported via UpdateObservedLoss.
// Caller must hold s.mu.
func (s *Shim) trackPacketLocked() {
	s.packetsSinceRecompute++
	if s.packetsSinceRecompute < recomputeEvery {
		return
	}
	s.packetsSinceRecompute = 0
	s.redundancy = clamp(1.5*s.observedLoss, MinRedundancy, MaxRedundancy)
}

// UpdateObservedLoss feeds the latest observed packet loss rate (0..1),
// used at the next recompute boundary.
func (s *Shim) UpdateObservedLoss(loss float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observedLoss = loss
}

// Redundancy returns the currently active redundancy rate.
func (s *Shim) Redundancy() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redundancy
}
